// Package encoder drives the external encoder binary: it owns the
// subprocess, reports its output and exit through a Handler, and extracts
// progress tokens from what it prints.
package encoder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"unicode/utf8"
)

var (
	// ErrAlreadyRunning is returned by Start while a process is alive.
	ErrAlreadyRunning = errors.New("encoder process already running")
	// ErrNotRunning is returned by stop operations when no process is alive.
	ErrNotRunning = errors.New("encoder process not running")
)

// State of the supervised process.
type State int

const (
	NotRunning State = iota
	Starting
	Running
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	default:
		return "not running"
	}
}

// ExitStatus describes how the last process finished.
type ExitStatus struct {
	Code    int
	Crashed bool // killed by a signal or never reported an exit code
	Err     error
}

// Success reports a normal exit with code zero.
func (s ExitStatus) Success() bool {
	return !s.Crashed && s.Code == 0
}

// Handler receives the supervisor notifications. Both methods are called
// from the supervisor's reading goroutine; OnOutput is never called after
// OnExit for the same process.
type Handler interface {
	OnOutput(text string)
	OnExit(status ExitStatus)
}

// HandlerFuncs adapts a pair of closures to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Output func(text string)
	Exit   func(status ExitStatus)
}

func (h HandlerFuncs) OnOutput(text string) {
	if h.Output != nil {
		h.Output(text)
	}
}

func (h HandlerFuncs) OnExit(status ExitStatus) {
	if h.Exit != nil {
		h.Exit(status)
	}
}

const maxLogs = 100

// Supervisor runs one encoder process at a time with stdout and stderr
// merged into a single stream.
type Supervisor struct {
	mu       sync.Mutex // Protects every field below
	handler  Handler
	cmd      *exec.Cmd
	state    State
	status   ExitStatus
	pending  []byte
	logLines []string
	done     chan struct{}
}

// NewSupervisor returns an idle Supervisor notifying h.
func NewSupervisor(h Handler) *Supervisor {
	done := make(chan struct{})
	close(done)
	return &Supervisor{handler: h, done: done}
}

// Start launches binary with args. It returns once the process is running;
// output and exit are reported asynchronously.
func (s *Supervisor) Start(binary string, args []string) error {
	s.mu.Lock()
	if s.state != NotRunning {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = Starting
	s.status = ExitStatus{}
	s.pending = nil
	s.mu.Unlock()

	pr, pw, err := os.Pipe()
	if err != nil {
		s.setState(NotRunning)
		return fmt.Errorf("failed to create output pipe: %w", err)
	}

	cmd := exec.Command(binary, args...)
	cmd.Stdout = pw
	cmd.Stderr = pw

	s.addLog(fmt.Sprintf("Command: %s %s", binary, strings.Join(args, " ")))

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		s.setState(NotRunning)
		return fmt.Errorf("failed to start encoder: %w", err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	done := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.state = Running
	s.done = done
	s.mu.Unlock()

	go s.watch(cmd, pr, done)
	return nil
}

// watch forwards output until EOF, then reaps the process.
func (s *Supervisor) watch(cmd *exec.Cmd, r io.ReadCloser, done chan struct{}) {
	defer close(done)
	defer r.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.pending = append(s.pending, buf[:n]...)
			s.mu.Unlock()
			s.notifyOutput()
		}
		if err != nil {
			break
		}
	}

	status := exitStatus(cmd.Wait())

	s.mu.Lock()
	s.status = status
	s.state = NotRunning
	s.cmd = nil
	h := s.handler
	if status.Success() {
		s.appendLogLocked("Encoder exited normally")
	} else {
		s.appendLogLocked(fmt.Sprintf("Encoder exited: code %d, crashed %v", status.Code, status.Crashed))
	}
	s.mu.Unlock()

	if h != nil {
		h.OnExit(status)
	}
}

func (s *Supervisor) notifyOutput() {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return
	}
	text := s.ReadAllOutput()
	if text != "" {
		h.OnOutput(text)
	}
}

func exitStatus(err error) ExitStatus {
	if err == nil {
		return ExitStatus{}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		return ExitStatus{Code: code, Crashed: code < 0, Err: err}
	}
	return ExitStatus{Code: -1, Crashed: true, Err: err}
}

// ReadAllOutput drains and decodes the output accumulated since the last
// read.
func (s *Supervisor) ReadAllOutput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return ""
	}
	raw := s.pending
	s.pending = nil
	text := string(raw)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		if line = strings.TrimSpace(line); line != "" {
			s.appendLogLocked(line)
		}
	}
	return text
}

// State returns the current process state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExitStatus returns the status of the last finished process.
func (s *Supervisor) ExitStatus() ExitStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Done is closed when the current process has been reaped and OnExit has
// returned.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Terminate asks the process to exit and kills it if it is still alive
// right after the request.
func (s *Supervisor) Terminate() error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return ErrNotRunning
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return ErrNotRunning
		}
		return s.Kill()
	}
	if s.State() == Running {
		if err := s.Kill(); err != nil && !errors.Is(err, ErrNotRunning) {
			return err
		}
	}
	return nil
}

// Kill terminates the process immediately.
func (s *Supervisor) Kill() error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return ErrNotRunning
	}
	if err := cmd.Process.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return ErrNotRunning
		}
		return fmt.Errorf("failed to kill encoder: %w", err)
	}
	return nil
}

// Detach drops the handler so the exit of the current process is not
// reported, then kills it. Used when the application shuts down mid-run.
func (s *Supervisor) Detach() {
	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()
	_ = s.Kill()
}

// Close kills any running process and waits until it has been reaped.
func (s *Supervisor) Close() {
	_ = s.Kill()
	<-s.Done()
}

// LogLines returns a copy of the most recent output lines.
func (s *Supervisor) LogLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := make([]string, len(s.logLines))
	copy(logs, s.logLines)
	return logs
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) addLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLogLocked(line)
}

// appendLogLocked keeps at most maxLogs lines (must hold mutex).
func (s *Supervisor) appendLogLocked(line string) {
	s.logLines = append(s.logLines, line)
	if len(s.logLines) > maxLogs {
		s.logLines = s.logLines[len(s.logLines)-maxLogs:]
	}
}
