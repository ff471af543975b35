//go:build windows

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
	"unsafe"

	"github.com/edwingeng/deque"
	"github.com/tevino/abool/v2"

	"github.com/yawuliu/jobctl/jobserver"
)

var (
	modkernel32              = syscall.NewLazyDLL("kernel32.dll")
	procPeekNamedPipe        = modkernel32.NewProc("PeekNamedPipe")
	procOpenProcess          = modkernel32.NewProc("OpenProcess")
	procWaitForSingleObjectW = modkernel32.NewProc("WaitForSingleObject")
	procGetExitCodeProcess   = modkernel32.NewProc("GetExitCodeProcess")
)

const (
	winWaitObject0      = 0
	winWaitTimeout      = 0x102
	winProcessQueryInfo = 0x0400
	winSynchronize      = 0x00100000
)

type pipeEnd int

const (
	pipeStdout pipeEnd = iota
	pipeStderr
)

// windowsSubprocess owns two anonymous pipes (stdout, stderr), each
// checked for pending bytes with PeekNamedPipe -- the non-blocking
// equivalent of the POSIX side's O_NONBLOCK reads -- and drained without
// ever blocking the calling goroutine. Reaping uses WaitForSingleObject
// with a zero timeout plus GetExitCodeProcess, so a child that has not yet
// exited never stalls DoWork.
type windowsSubprocess struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	useConsole bool
	handle     syscall.Handle

	stdoutR *os.File
	stderrR *os.File

	stdoutBuf    bytes.Buffer
	stderrBuf    bytes.Buffer
	stdoutClosed bool
	stderrClosed bool

	exitStatus ExitStatus
	exited     chan struct{}
}

func newPosixSubprocess(useConsole bool) *windowsSubprocess {
	sp := &windowsSubprocess{useConsole: useConsole, exited: make(chan struct{})}
	if useConsole {
		sp.stdoutClosed = true
		sp.stderrClosed = true
	}
	return sp
}

func (s *windowsSubprocess) start(command string) error {
	cmd := exec.Command("cmd", "/C", command)
	if s.useConsole {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Stdin = os.Stdin
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("%w: %v", jobserver.ErrSpawn, err)
		}
		s.cmd = cmd
		return s.openHandle()
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
	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return fmt.Errorf("%w: %v", jobserver.ErrSpawn, err)
	}
	outW.Close()
	errW.Close()

	s.stdoutR = outR
	s.stderrR = errR
	s.cmd = cmd
	return s.openHandle()
}

// openHandle acquires a process handle by PID rather than relying on any
// unexported field of os.Process, the same way client_windows.go opens a
// named kernel object by name instead of reaching into a library's
// internals.
func (s *windowsSubprocess) openHandle() error {
	h, _, callErr := procOpenProcess.Call(
		uintptr(winProcessQueryInfo|winSynchronize), 0, uintptr(s.cmd.Process.Pid))
	if h == 0 {
		return fmt.Errorf("%w: OpenProcess(pid=%d): %v", jobserver.ErrSpawn, s.cmd.Process.Pid, callErr)
	}
	s.handle = syscall.Handle(h)
	return nil
}

func peekAvailable(f *os.File) (uint32, bool) {
	var avail uint32
	ok, _, _ := procPeekNamedPipe.Call(
		f.Fd(), 0, 0, 0, uintptr(unsafe.Pointer(&avail)), 0)
	return avail, ok != 0
}

// pollPipe drains whatever PeekNamedPipe reports as immediately
// available on one stream, closing it once the peek call itself fails
// (the child's write end has gone away).
func (s *windowsSubprocess) pollPipe(which pipeEnd) {
	var f *os.File
	if which == pipeStdout {
		f = s.stdoutR
	} else {
		f = s.stderrR
	}
	if f == nil {
		return
	}

	avail, ok := peekAvailable(f)
	if !ok {
		s.closeStream(which)
		return
	}
	if avail == 0 {
		return
	}
	chunk := make([]byte, avail)
	n, err := f.Read(chunk)
	if n > 0 {
		s.mu.Lock()
		if which == pipeStdout {
			s.stdoutBuf.Write(chunk[:n])
		} else {
			s.stderrBuf.Write(chunk[:n])
		}
		s.mu.Unlock()
	}
	if err != nil {
		s.closeStream(which)
	}
}

func (s *windowsSubprocess) closeStream(which pipeEnd) {
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

// reapIfExited issues a zero-timeout WaitForSingleObject; returns true
// once the process object signals and its exit code has been fetched.
func (s *windowsSubprocess) reapIfExited() bool {
	ret, _, _ := procWaitForSingleObjectW.Call(uintptr(s.handle), 0)
	if ret != winWaitObject0 {
		return false
	}

	var code uint32
	procGetExitCodeProcess.Call(uintptr(s.handle), uintptr(unsafe.Pointer(&code)))
	syscall.CloseHandle(s.handle)

	if !s.useConsole {
		s.pollPipe(pipeStdout)
		s.pollPipe(pipeStderr)
		s.closeStream(pipeStdout)
		s.closeStream(pipeStderr)
	}

	status := ExitSuccess
	if code != 0 {
		status = ExitFailure
	}
	s.mu.Lock()
	s.exitStatus = status
	s.mu.Unlock()
	close(s.exited)
	return true
}

func (s *windowsSubprocess) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdoutClosed && s.stderrClosed
}

func (s *windowsSubprocess) Finish() ExitStatus {
	<-s.exited
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitStatus
}

func (s *windowsSubprocess) Stdout() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdoutBuf.String()
}

func (s *windowsSubprocess) Stderr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stderrBuf.String()
}

func (s *windowsSubprocess) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdoutBuf.String() + s.stderrBuf.String()
}

// windowsSet multiplexes every running windowsSubprocess's pipes and
// process handles from a single DoWork tick: one sleep stands in for the
// platform wait primitive (PeekNamedPipe and WaitForSingleObject(0) are
// both non-blocking by construction, so pacing the loop is the caller's
// job rather than the kernel's), after which every tracked subprocess is
// polled and reaped synchronously on the calling goroutine. No background
// goroutine touches subprocess state except the SIGINT relay, which only
// sets a lock-free flag.
type windowsSet struct {
	mu          sync.Mutex
	running     map[*windowsSubprocess]struct{}
	finished    deque.Deque
	interrupted *abool.AtomicBool
}

func newPlatformSet() Set {
	s := &windowsSet{
		running:     make(map[*windowsSubprocess]struct{}),
		finished:    deque.NewDeque(),
		interrupted: abool.NewBool(false),
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		s.interrupted.Set()
	}()
	return s
}

func (s *windowsSet) Add(command string, useConsole bool) (Subprocess, error) {
	sp := newPosixSubprocess(useConsole)
	if err := sp.start(command); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.running[sp] = struct{}{}
	s.mu.Unlock()

	return sp, nil
}

func (s *windowsSet) DoWork() (bool, error) {
	s.mu.Lock()
	subs := make([]*windowsSubprocess, 0, len(s.running))
	for sp := range s.running {
		subs = append(subs, sp)
	}
	s.mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	for _, sp := range subs {
		if !sp.useConsole {
			sp.pollPipe(pipeStdout)
			sp.pollPipe(pipeStderr)
		}
	}

	for _, sp := range subs {
		if !sp.reapIfExited() {
			continue
		}
		s.mu.Lock()
		delete(s.running, sp)
		s.finished.PushBack(sp)
		s.mu.Unlock()
	}

	return s.interrupted.IsSet(), nil
}

func (s *windowsSet) NextFinished() Subprocess {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished.Empty() {
		return nil
	}
	return s.finished.PopFront().(*windowsSubprocess)
}

func (s *windowsSet) Clear() {
	s.mu.Lock()
	subs := make([]*windowsSubprocess, 0, len(s.running))
	for sp := range s.running {
		subs = append(subs, sp)
	}
	s.mu.Unlock()

	for _, sp := range subs {
		if sp.cmd != nil && sp.cmd.Process != nil {
			sp.cmd.Process.Kill()
		}
	}
}

func (s *windowsSet) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}
