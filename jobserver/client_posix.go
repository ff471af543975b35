//go:build !windows

package jobserver

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/yawuliu/jobctl/internal/rr"
)

// posixClient implements Client over a pair of pipe/FIFO file descriptors,
// grounded directly on jobserver-posix.cc's PosixJobserverClient.
type posixClient struct {
	hasImplicit_ bool
	readFD_      int
	writeFD_     int
}

func newPlatformClient(cfg Config) (Client, error) {
	switch cfg.Mode {
	case ModeFileDescriptors:
		return newPosixClientFromFDs(cfg.ReadFD, cfg.WriteFD)
	case ModeFifo:
		return newPosixClientFromFifo(cfg.Path)
	default:
		return nil, ErrUnsupportedMode
	}
}

// isFifoDescriptor reports whether fd refers to a FIFO or pipe.
func isFifoDescriptor(fd int) bool {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFIFO
}

func setNonBlocking(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return err
	}
	if flags&unix.O_NONBLOCK != 0 {
		return nil
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_NONBLOCK)
	return err
}

func setCloseOnExec(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return err
	}
	if flags&unix.FD_CLOEXEC != 0 {
		return nil
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC)
	return err
}

// duplicateDescriptor dups fromFD and makes the copy non-blocking and
// close-on-exec, leaving fromFD itself untouched so subprocesses can still
// inherit the original, blocking, inheritable descriptor.
func duplicateDescriptor(fromFD int) (int, error) {
	newFD, err := unix.Dup(fromFD)
	if err != nil {
		return -1, err
	}
	if err := setNonBlocking(newFD); err != nil {
		unix.Close(newFD)
		return -1, err
	}
	if err := setCloseOnExec(newFD); err != nil {
		unix.Close(newFD)
		return -1, err
	}
	return newFD, nil
}

func newPosixClientFromFDs(readFD, writeFD int) (*posixClient, error) {
	if !isFifoDescriptor(readFD) || !isFifoDescriptor(writeFD) {
		return nil, fmt.Errorf("%w: descriptors %d,%d are not a fifo/pipe", ErrEndpointSetup, readFD, writeFD)
	}
	newRead, err := duplicateDescriptor(readFD)
	if err != nil {
		return nil, fmt.Errorf("%w: could not duplicate read descriptor: %v", ErrEndpointSetup, err)
	}
	newWrite, err := duplicateDescriptor(writeFD)
	if err != nil {
		unix.Close(newRead)
		return nil, fmt.Errorf("%w: could not duplicate write descriptor: %v", ErrEndpointSetup, err)
	}
	return &posixClient{hasImplicit_: true, readFD_: newRead, writeFD_: newWrite}, nil
}

func newPosixClientFromFifo(path string) (*posixClient, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty fifo path", ErrEndpointSetup)
	}
	readFD, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: opening fifo for reading: %v", ErrEndpointSetup, err)
	}
	if !isFifoDescriptor(readFD) {
		unix.Close(readFD)
		return nil, fmt.Errorf("%w: not a fifo path: %s", ErrEndpointSetup, path)
	}
	writeFD, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Close(readFD)
		return nil, fmt.Errorf("%w: opening fifo for writing: %v", ErrEndpointSetup, err)
	}
	return &posixClient{hasImplicit_: true, readFD_: readFD, writeFD_: writeFD}, nil
}

func (c *posixClient) TryAcquire() Slot {
	if c.hasImplicit_ {
		c.hasImplicit_ = false
		return implicitSlot()
	}

	var buf [1]byte
	n, _ := rr.Byte(func() (int, error) {
		return unix.Read(c.readFD_, buf[:])
	})
	if n == 1 {
		return explicitSlot(buf[0])
	}
	return InvalidSlot
}

func (c *posixClient) Release(slot Slot) {
	if !slot.IsValid() {
		return
	}
	if slot.IsImplicit() {
		if c.hasImplicit_ {
			panic("jobserver: implicit slot released twice")
		}
		c.hasImplicit_ = true
		return
	}

	b, _ := slot.IsExplicit()
	buf := [1]byte{b}
	// Write errors are swallowed: by protocol no remediation is possible.
	rr.Byte(func() (int, error) {
		return unix.Write(c.writeFD_, buf[:])
	})
}

func (c *posixClient) Close() error {
	var firstErr error
	if c.writeFD_ >= 0 {
		if err := unix.Close(c.writeFD_); err != nil {
			firstErr = err
		}
		c.writeFD_ = -1
	}
	if c.readFD_ >= 0 {
		if err := unix.Close(c.readFD_); err != nil && firstErr == nil {
			firstErr = err
		}
		c.readFD_ = -1
	}
	return firstErr
}
