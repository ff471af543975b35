//go:build !windows

package jobserver

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestFifoClientDrainsPool reproduces spec scenario 5: a FIFO seeded with
// five tokens ('0'..'4') serves the implicit slot first, then each token
// in turn, then reports Invalid once drained.
func TestFifoClientDrainsPool(t *testing.T) {
	path := t.TempDir() + "/test.fifo"
	require.NoError(t, unix.Mkfifo(path, 0666))

	writeFD, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(writeFD)

	for _, b := range []byte{'0', '1', '2', '3', '4'} {
		n, err := unix.Write(writeFD, []byte{b})
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	client, err := NewClient(Config{Mode: ModeFifo, Path: path})
	require.NoError(t, err)
	defer client.Close()

	slot := client.TryAcquire()
	require.True(t, slot.IsImplicit())

	for _, want := range []byte{'0', '1', '2', '3', '4'} {
		slot = client.TryAcquire()
		b, ok := slot.IsExplicit()
		require.True(t, ok)
		require.Equal(t, want, b)
	}

	slot = client.TryAcquire()
	require.False(t, slot.IsValid())
}

// TestPoolRoundTrip checks spec's round-trip property: parsing a pool's
// own GetEnvString yields a client that can drain exactly N-1 explicit
// slots plus the implicit one, and no more.
func TestPoolRoundTrip(t *testing.T) {
	const n = 4
	pool, err := NewPool(n, PoolModePipe, PoolOptions{})
	require.NoError(t, err)
	defer pool.Close()

	envFragment := pool.GetEnvString()
	require.Contains(t, envFragment, " -j4 ")

	cfg, err := ParseMakeFlagsValue(envFragment)
	require.NoError(t, err)
	require.Equal(t, ModeFileDescriptors, cfg.Mode)

	client, err := NewClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	slot := client.TryAcquire()
	require.True(t, slot.IsImplicit())

	drained := 0
	for {
		slot = client.TryAcquire()
		if !slot.IsValid() {
			break
		}
		_, ok := slot.IsExplicit()
		require.True(t, ok)
		drained++
	}
	require.Equal(t, n-1, drained)
}

func TestPool_InvalidSlotCount(t *testing.T) {
	_, err := NewPool(1, PoolModePipe, PoolOptions{})
	require.ErrorIs(t, err, ErrInvalidSlotCount)
}

func TestClient_ImplicitSlotDoubleReleasePanics(t *testing.T) {
	path := t.TempDir() + "/test2.fifo"
	require.NoError(t, unix.Mkfifo(path, 0666))
	writeFD, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(writeFD)

	client, err := NewClient(Config{Mode: ModeFifo, Path: path})
	require.NoError(t, err)
	defer client.Close()

	slot := client.TryAcquire()
	require.True(t, slot.IsImplicit())
	client.Release(slot)

	require.Panics(t, func() {
		client.Release(slot)
	})
}
