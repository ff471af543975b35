//go:build !windows

package jobserver

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// posixPool implements Pool, grounded on jobserver-posix.cc's
// PosixJobserverPool.
type posixPool struct {
	jobCount_ int
	readFD_   int
	writeFD_  int
	fifoPath_ string
}

func newPlatformPool(slotCount int, mode PoolMode, opts PoolOptions) (Pool, error) {
	p := &posixPool{jobCount_: slotCount, readFD_: -1, writeFD_: -1}
	switch mode {
	case PoolModePipe:
		if err := p.initWithPipe(slotCount, opts.TokenByte); err != nil {
			return nil, err
		}
	case PoolModeFifo:
		if err := p.initWithFifo(slotCount, opts.TokenByte); err != nil {
			p.Close()
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown pool mode", ErrUnsupportedMode)
	}
	return p, nil
}

func (p *posixPool) initWithPipe(slotCount int, tokenByte byte) error {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return fmt.Errorf("%w: could not create anonymous pipe: %v", ErrEndpointSetup, err)
	}
	// The descriptors returned by pipe(2) are already inheritable and
	// blocking, which is exactly what child processes need.
	p.readFD_, p.writeFD_ = fds[0], fds[1]
	return p.fillSlots(slotCount, tokenByte)
}

func (p *posixPool) initWithFifo(slotCount int, tokenByte byte) error {
	tmpDir := os.Getenv("TMPDIR")
	if tmpDir == "" {
		tmpDir = "/tmp"
	}

	var suffix [4]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return fmt.Errorf("%w: could not generate fifo suffix: %v", ErrEndpointSetup, err)
	}
	p.fifoPath_ = fmt.Sprintf("%s/NinjaFIFO%d.%s", tmpDir, os.Getpid(), hex.EncodeToString(suffix[:]))

	if err := unix.Mknod(p.fifoPath_, unix.S_IFIFO|0666, 0); err != nil {
		return fmt.Errorf("%w: cannot create fifo: %v", ErrEndpointSetup, err)
	}

	var err error
	for {
		p.writeFD_, err = unix.Open(p.fifoPath_, unix.O_RDWR|unix.O_CLOEXEC, 0)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return fmt.Errorf("%w: could not open fifo: %v", ErrEndpointSetup, err)
	}

	return p.fillSlots(slotCount, tokenByte)
}

// fillSlots writes slotCount-1 token bytes to satisfy the implicit slot
// requirement (the owner itself never reads one back from the pool).
func (p *posixPool) fillSlots(slotCount int, tokenByte byte) error {
	buf := [1]byte{tokenByte}
	for remaining := slotCount - 1; remaining > 0; remaining-- {
		n, err := unix.Write(p.writeFD_, buf[:])
		if n == 1 {
			continue
		}
		if err == unix.EINTR {
			remaining++
			continue
		}
		return fmt.Errorf("%w: could not fill job slots pool: %v", ErrEndpointSetup, err)
	}
	return nil
}

func (p *posixPool) GetEnvString() string {
	if p.fifoPath_ != "" {
		return fmt.Sprintf(" -j%d --jobserver-auth=fifo:%s", p.jobCount_, p.fifoPath_)
	}
	return fmt.Sprintf(" -j%d --jobserver-fds=%d,%d --jobserver-auth=%d,%d",
		p.jobCount_, p.readFD_, p.writeFD_, p.readFD_, p.writeFD_)
}

func (p *posixPool) Close() error {
	var firstErr error
	if p.readFD_ >= 0 {
		if err := unix.Close(p.readFD_); err != nil {
			firstErr = err
		}
		p.readFD_ = -1
	}
	if p.writeFD_ >= 0 {
		if err := unix.Close(p.writeFD_); err != nil && firstErr == nil {
			firstErr = err
		}
		p.writeFD_ = -1
	}
	if p.fifoPath_ != "" {
		if err := unix.Unlink(p.fifoPath_); err != nil && firstErr == nil {
			firstErr = err
		}
		p.fifoPath_ = ""
	}
	return firstErr
}
