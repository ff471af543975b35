package jobserver

// Client acquires and releases slots from a jobserver pool owned by some
// other process (typically the invoking `make`). It never blocks: a
// non-blocking TryAcquire is the only way to ask for more parallelism, and
// the caller is expected to fall back to its own event loop (the
// subprocess supervisor's DoWork) until a running job releases a slot.
type Client interface {
	// TryAcquire never blocks. It returns the implicit slot if still held
	// locally, otherwise attempts one non-blocking single-byte read from
	// the pool. Returns InvalidSlot if none is currently available.
	TryAcquire() Slot

	// Release returns slot to the pool (explicit) or reclaims the local
	// right to use it again (implicit). Releasing InvalidSlot is a no-op.
	Release(slot Slot)

	// Close releases the endpoint's own file descriptors. It does not
	// release any outstanding Slot.
	Close() error
}

// NewClient selects and constructs the platform Client implementation
// described by cfg, per the Client factory in spec 4.B.
func NewClient(cfg Config) (Client, error) {
	return newPlatformClient(cfg)
}
