//go:build windows

package jobserver

import "fmt"

// newPlatformPool: pool creation is not implemented for the Windows
// semaphore transport; a real pool owner on Windows would need
// CreateSemaphoreW plumbing into a child's inherited handle table, which
// is out of scope for this core (the spec's Pool component is specified
// for the POSIX Pipe/Fifo modes only; see spec 4.C).
func newPlatformPool(slotCount int, mode PoolMode, opts PoolOptions) (Pool, error) {
	return nil, fmt.Errorf("%w: pool creation is POSIX-only", ErrUnsupportedMode)
}
