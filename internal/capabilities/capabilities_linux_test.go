//go:build linux

package capabilities

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetHasReportsMaskedBits(t *testing.T) {
	s := Set(1<<CAP_DAC_READ_SEARCH | 1<<CAP_SYS_PTRACE)
	require.True(t, s.Has(CAP_DAC_READ_SEARCH))
	require.True(t, s.Has(CAP_SYS_PTRACE))
	require.False(t, s.Has(0)) // CAP_CHOWN not set
}

func TestSetHasEmpty(t *testing.T) {
	var s Set
	require.False(t, s.Has(CAP_DAC_READ_SEARCH))
}
