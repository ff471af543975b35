// Package rr holds the single retry-on-EINTR helper shared by the
// jobserver client (single-byte token reads and writes) and the subprocess
// supervisor (pipe reads and poll): each repeats one otherwise idempotent
// syscall when it is interrupted by a signal.
package rr

import "golang.org/x/sys/unix"

// Byte retries fn while it reports EINTR. fn should perform exactly one
// non-retrying attempt at the underlying syscall and return the number of
// bytes transferred and the error, following unix.Read/unix.Write
// conventions.
func Byte(fn func() (int, error)) (int, error) {
	for {
		n, err := fn()
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}
