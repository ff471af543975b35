//go:build !windows

package subprocess

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edwingeng/deque"
	"github.com/tevino/abool/v2"
	"golang.org/x/sys/unix"

	"github.com/yawuliu/jobctl/internal/rr"
	"github.com/yawuliu/jobctl/jobserver"
)

// pipeEnd identifies which of a subprocess's two output streams an event
// belongs to.
type pipeEnd int

const (
	pipeStdout pipeEnd = iota
	pipeStderr
)

// posixSubprocess owns two output pipes (stdout, stderr), each drained
// into its own buffer as the owning Set's single poll loop reports them
// readable. Nothing here ever blocks independently of that loop: the child
// is started from posixSet.Add and reaped from posixSet.DoWork.
type posixSubprocess struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	pid        int
	useConsole bool

	stdoutR *os.File
	stderrR *os.File

	stdoutBuf    bytes.Buffer
	stderrBuf    bytes.Buffer
	stdoutClosed bool
	stderrClosed bool

	exitStatus ExitStatus
	exited     chan struct{}
	ioErr      error
}

func newPosixSubprocess(useConsole bool) *posixSubprocess {
	sp := &posixSubprocess{useConsole: useConsole, exited: make(chan struct{})}
	if useConsole {
		// No pipes to close in console mode: both endpoints are
		// vacuously closed from the start.
		sp.stdoutClosed = true
		sp.stderrClosed = true
	}
	return sp
}

func (s *posixSubprocess) start(command string) error {
	cmd := exec.Command("/bin/sh", "-c", command)
	if s.useConsole {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Stdin = os.Stdin
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("%w: %v", jobserver.ErrSpawn, err)
		}
		s.cmd = cmd
		s.pid = cmd.Process.Pid
		return nil
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", jobserver.ErrSpawn, err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return fmt.Errorf("%w: stderr pipe: %v", jobserver.ErrSpawn, err)
	}

	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return fmt.Errorf("%w: %v", jobserver.ErrSpawn, err)
	}
	outW.Close()
	errW.Close()

	if err := unix.SetNonblock(int(outR.Fd()), true); err != nil {
		outR.Close()
		errR.Close()
		return fmt.Errorf("%w: stdout O_NONBLOCK: %v", jobserver.ErrSpawn, err)
	}
	if err := unix.SetNonblock(int(errR.Fd()), true); err != nil {
		outR.Close()
		errR.Close()
		return fmt.Errorf("%w: stderr O_NONBLOCK: %v", jobserver.ErrSpawn, err)
	}

	s.stdoutR = outR
	s.stderrR = errR
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	return nil
}

func (s *posixSubprocess) fd(which pipeEnd) int {
	switch which {
	case pipeStdout:
		if s.stdoutR == nil {
			return -1
		}
		return int(s.stdoutR.Fd())
	default:
		if s.stderrR == nil {
			return -1
		}
		return int(s.stderrR.Fd())
	}
}

// onPipeReady drains whatever is immediately available on the given
// stream without blocking, closing and marking that stream done on EOF.
func (s *posixSubprocess) onPipeReady(which pipeEnd) {
	fd := s.fd(which)
	if fd < 0 {
		return
	}
	var chunk [4096]byte
	for {
		n, err := rr.Byte(func() (int, error) { return unix.Read(fd, chunk[:]) })
		if n > 0 {
			s.mu.Lock()
			if which == pipeStdout {
				s.stdoutBuf.Write(chunk[:n])
			} else {
				s.stderrBuf.Write(chunk[:n])
			}
			s.mu.Unlock()
		}
		if err != nil || n == 0 {
			if err != nil && err != unix.EAGAIN {
				s.mu.Lock()
				s.ioErr = fmt.Errorf("%w: read: %v", jobserver.ErrRuntimeIOFatal, err)
				s.mu.Unlock()
				s.closeStream(which)
			} else if n == 0 {
				s.closeStream(which)
			}
			return
		}
		if n < len(chunk) {
			return
		}
	}
}

func (s *posixSubprocess) closeStream(which pipeEnd) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if which == pipeStdout {
		if !s.stdoutClosed {
			if s.stdoutR != nil {
				s.stdoutR.Close()
			}
			s.stdoutClosed = true
		}
	} else {
		if !s.stderrClosed {
			if s.stderrR != nil {
				s.stderrR.Close()
			}
			s.stderrClosed = true
		}
	}
}

// reapIfExited performs one non-blocking wait4 check; returns true once
// the child has been reaped and its final status recorded.
func (s *posixSubprocess) reapIfExited() bool {
	var ws unix.WaitStatus
	pid, err := unix.Wait4(s.pid, &ws, unix.WNOHANG, nil)
	if err != nil || pid != s.pid {
		return false
	}
	if !s.useConsole {
		// Drain whatever trailing bytes are already buffered in the
		// kernel before declaring the streams closed.
		s.onPipeReady(pipeStdout)
		s.onPipeReady(pipeStderr)
		s.closeStream(pipeStdout)
		s.closeStream(pipeStderr)
	}
	s.finalize(ws)
	return true
}

func (s *posixSubprocess) finalize(ws unix.WaitStatus) {
	status := ExitSuccess
	switch {
	case ws.Signaled():
		switch ws.Signal() {
		case syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP:
			status = ExitInterrupted
		default:
			status = ExitFailure
		}
	case ws.ExitStatus() != 0:
		status = ExitFailure
	}

	s.mu.Lock()
	s.exitStatus = status
	s.mu.Unlock()
	close(s.exited)
}

func (s *posixSubprocess) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdoutClosed && s.stderrClosed
}

func (s *posixSubprocess) Finish() ExitStatus {
	<-s.exited
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitStatus
}

func (s *posixSubprocess) Stdout() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdoutBuf.String()
}

func (s *posixSubprocess) Stderr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stderrBuf.String()
}

func (s *posixSubprocess) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdoutBuf.String() + s.stderrBuf.String()
}

// posixSet multiplexes every running posixSubprocess's output pipes with a
// single poll(2) call per DoWork tick and reaps exited children with a
// non-blocking wait4 pass on the same turn -- the whole loop runs on the
// caller's goroutine, with no subprocess-tracking state touched from
// anywhere else. A SIGINT/SIGTERM/SIGHUP handler goroutine is the one
// exception, as it must be: POSIX delivers signals asynchronously, and it
// only ever sets a lock-free flag the loop reads.
type posixSet struct {
	mu          sync.Mutex
	running     map[*posixSubprocess]struct{}
	finished    deque.Deque
	interrupted *abool.AtomicBool
	sigCh       chan os.Signal
}

func newPlatformSet() Set {
	s := &posixSet{
		running:     make(map[*posixSubprocess]struct{}),
		finished:    deque.NewDeque(),
		interrupted: abool.NewBool(false),
		sigCh:       make(chan os.Signal, 1),
	}
	signal.Notify(s.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-s.sigCh
		s.interrupted.Set()
	}()
	return s
}

func (s *posixSet) Add(command string, useConsole bool) (Subprocess, error) {
	sp := newPosixSubprocess(useConsole)
	if err := sp.start(command); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.running[sp] = struct{}{}
	s.mu.Unlock()

	return sp, nil
}

func (s *posixSet) DoWork() (bool, error) {
	s.mu.Lock()
	subs := make([]*posixSubprocess, 0, len(s.running))
	for sp := range s.running {
		subs = append(subs, sp)
	}
	s.mu.Unlock()

	fds := make([]unix.PollFd, 0, 2*len(subs))
	fdSubs := make([]*posixSubprocess, 0, 2*len(subs))
	fdWhich := make([]pipeEnd, 0, 2*len(subs))
	for _, sp := range subs {
		if fd := sp.fd(pipeStdout); fd >= 0 {
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
			fdSubs = append(fdSubs, sp)
			fdWhich = append(fdWhich, pipeStdout)
		}
		if fd := sp.fd(pipeStderr); fd >= 0 {
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
			fdSubs = append(fdSubs, sp)
			fdWhich = append(fdWhich, pipeStderr)
		}
	}

	if len(fds) == 0 {
		time.Sleep(50 * time.Millisecond)
	} else if _, err := rr.Byte(func() (int, error) { return unix.Poll(fds, 100) }); err != nil {
		return s.interrupted.IsSet(), fmt.Errorf("%w: poll: %v", jobserver.ErrRuntimeIOFatal, err)
	} else {
		for i, pfd := range fds {
			if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
				fdSubs[i].onPipeReady(fdWhich[i])
			}
		}
	}

	var ioErr error
	for _, sp := range subs {
		sp.mu.Lock()
		if sp.ioErr != nil && ioErr == nil {
			ioErr = sp.ioErr
		}
		sp.mu.Unlock()
		if !sp.reapIfExited() {
			continue
		}
		s.mu.Lock()
		delete(s.running, sp)
		s.finished.PushBack(sp)
		s.mu.Unlock()
	}

	return s.interrupted.IsSet(), ioErr
}

func (s *posixSet) NextFinished() Subprocess {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished.Empty() {
		return nil
	}
	return s.finished.PopFront().(*posixSubprocess)
}

func (s *posixSet) Clear() {
	s.mu.Lock()
	subs := make([]*posixSubprocess, 0, len(s.running))
	for sp := range s.running {
		subs = append(subs, sp)
	}
	s.mu.Unlock()

	for _, sp := range subs {
		if pgid, err := unix.Getpgid(sp.pid); err == nil {
			unix.Kill(-pgid, unix.SIGINT)
		}
	}
}

func (s *posixSet) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}
