package encoder

import (
	"github.com/videomorph-dev/videomorph-sub000/progress"
)

// Library bundles what one batch needs from the encoder: the process
// supervisor, the output reader, the progress timer and the last fatal
// error the encoder reported.
type Library struct {
	Path   string
	Reader *Reader
	Timer  *progress.Timer

	sup *Supervisor
	err LibraryError
}

// NewLibrary returns a Library running the encoder at path and notifying h.
func NewLibrary(path string, h Handler) *Library {
	return &Library{
		Path:   path,
		Reader: NewReader(),
		Timer:  progress.NewTimer(),
		sup:    NewSupervisor(h),
	}
}

// Supervisor exposes the underlying process supervisor.
func (l *Library) Supervisor() *Supervisor {
	return l.sup
}

// Start runs the encoder with args.
func (l *Library) Start(args []string) error {
	return l.sup.Start(l.Path, args)
}

// CatchErrors records a fatal phrase from the reader buffer. Errors are
// only meaningful before the encoder reports progress, so a buffer holding
// a time= token is ignored.
func (l *Library) CatchErrors() bool {
	if l.Reader.HasTime() {
		return false
	}
	if phrase, ok := l.Reader.CatchErrors(); ok {
		l.err = phrase
		return true
	}
	return false
}

// Error returns the last recorded library error, or "" when none.
func (l *Library) Error() LibraryError {
	return l.err
}

// ClearError forgets the recorded library error.
func (l *Library) ClearError() {
	l.err = ""
}

func (l *Library) State() State           { return l.sup.State() }
func (l *Library) ExitStatus() ExitStatus { return l.sup.ExitStatus() }
func (l *Library) Terminate() error       { return l.sup.Terminate() }
func (l *Library) Kill() error            { return l.sup.Kill() }
func (l *Library) Detach()                { l.sup.Detach() }
func (l *Library) Close()                 { l.sup.Close() }
func (l *Library) LogLines() []string     { return l.sup.LogLines() }
func (l *Library) Done() <-chan struct{}  { return l.sup.Done() }
