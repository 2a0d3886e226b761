package fdb

import (
	"errors"
)

var (
	// ErrInvalidAddress is returned when a local address is all-zero,
	// broadcast or has the multicast bit set.
	ErrInvalidAddress = errors.New("invalid unicast hardware address")
	// ErrOutOfMemory is returned when an entry could not be allocated.
	ErrOutOfMemory = errors.New("failed to allocate forwarding entry")
	// ErrNotFound is returned when no live entry exists for the address.
	ErrNotFound = errors.New("forwarding entry not found")
	// ErrLocalEntry is returned when an operation is not permitted on a
	// local entry.
	ErrLocalEntry = errors.New("operation not permitted on local entry")
)
