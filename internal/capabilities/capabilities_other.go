//go:build !linux

package capabilities

import "errors"

// Set is a bitmask over capability numbers, unused outside Linux.
type Set uint64

// Has always reports false off Linux.
func (s Set) Has(cap uint) bool { return false }

// Get is unsupported outside Linux.
func Get() (Set, error) {
	return 0, errors.New("capabilities: not supported on this platform")
}

// RetainOnly is unsupported outside Linux.
func RetainOnly(caps ...uint) error {
	return errors.New("capabilities: not supported on this platform")
}

// DropPrivileges is unsupported outside Linux.
func DropPrivileges(uid, gid int, retain ...uint) error {
	return errors.New("capabilities: privilege drop not supported on this platform")
}
