package procmon

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// reconnector retries a netlink resync with bounded exponential backoff.
// Grounded on gvisor's runsc/container/container.go usage of
// backoff.WithContext(backoff.NewConstantBackOff(...), ctx) +
// backoff.Retry(op, b), adapted to an exponential policy bounded to a
// handful of seconds since a stuck proc-connector socket should surface
// quickly rather than retry forever.
type reconnector struct {
	policy backoff.BackOff
}

func newReconnector() *reconnector {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return &reconnector{policy: b}
}

func (r *reconnector) retry(op func() error) error {
	r.policy.Reset()
	return backoff.Retry(op, r.policy)
}
