// Package task models the files queued for conversion: one Task per input
// file and the ordered List the batch walks through.
package task

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"

	"github.com/videomorph-dev/videomorph-sub000/probe"
	"github.com/videomorph-dev/videomorph-sub000/profile"
)

var (
	ErrNotWritable     = errors.New("output directory is not writable")
	ErrInputNotFound   = errors.New("input file not found")
	ErrDeleteOutput    = errors.New("could not delete output file")
	ErrNoRunningTask   = errors.New("no task is running")
	ErrIndexOutOfRange = errors.New("task index out of range")
	ErrDeleteRunning   = errors.New("cannot delete the running task")
	ErrNoVideoFiles    = errors.New("no video files found")
)

// Status of a task within a batch.
type Status int

const (
	Todo Status = iota
	Running
	Done
	Stopped
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Done:
		return "done"
	case Stopped:
		return "stopped"
	default:
		return "todo"
	}
}

// subtitleExtensions are tried in order beside the input file.
var subtitleExtensions = []string{".srt", ".ssa", ".stl", ".SRT", ".SSA", ".STL"}

// Delete retry policy for the output file.
var (
	deleteAttempts = 3
	deleteBackoff  = 100 * time.Millisecond
	remove         = os.Remove
)

// BuildOptions are the per-run switches that shape the command.
type BuildOptions struct {
	Tagged    bool
	Subtitles bool
	Threads   int
}

// Task is one input file to convert.
type Task struct {
	ID      string
	Path    string
	Info    probe.Info
	Profile profile.Profile
	Status  Status

	// outputDir is shared with the owning List.
	outputDir *string
}

// New returns a Todo task for the file at path writing into outputDir.
func New(path string, info probe.Info, p profile.Profile, outputDir string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Path:      path,
		Info:      info,
		Profile:   p,
		outputDir: &outputDir,
	}
}

// OutputDir returns the directory outputs are written to.
func (t *Task) OutputDir() string {
	if t.outputDir == nil {
		return ""
	}
	return *t.outputDir
}

// Name returns the input base name, with or without its extension.
func (t *Task) Name(withExt bool) string {
	base := filepath.Base(t.Path)
	if withExt {
		return base
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Duration returns the source duration in seconds, 0 when unknown.
func (t *Task) Duration() float64 {
	return t.Info.Duration()
}

// OutputName derives the output file name from the current profile. It is
// recomputed on every call.
func (t *Task) OutputName(tagged bool) (string, error) {
	return t.nameFor(t.Profile, tagged)
}

// OutputPath joins the output directory and OutputName.
func (t *Task) OutputPath(tagged bool) (string, error) {
	return t.pathFor(t.Profile, tagged)
}

func (t *Task) nameFor(p profile.Profile, tagged bool) (string, error) {
	prefix := ""
	if tagged {
		tag, err := p.QualityTag()
		if err != nil {
			return "", err
		}
		prefix = tag
	}
	return prefix + t.Name(false) + p.Extension, nil
}

func (t *Task) pathFor(p profile.Profile, tagged bool) (string, error) {
	name, err := t.nameFor(p, tagged)
	if err != nil {
		return "", err
	}
	return filepath.Join(t.OutputDir(), name), nil
}

// SubtitlePath returns the first sidecar subtitle file beside the input.
func (t *Task) SubtitlePath() (string, bool) {
	stem := strings.TrimSuffix(t.Path, filepath.Ext(t.Path))
	for _, ext := range subtitleExtensions {
		candidate := stem + ext
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}

// BuildCommand checks the output directory and the input file, assigns p to
// the task and returns the encoder arguments:
//
//	-i INPUT [-vf subtitles=...] PRESET... -threads N -y OUTPUT
func (t *Task) BuildCommand(p profile.Profile, opts BuildOptions) ([]string, error) {
	if !writable(t.OutputDir()) {
		return nil, fmt.Errorf("%w: %s", ErrNotWritable, t.OutputDir())
	}
	if info, err := os.Stat(t.Path); err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, t.Path)
	}

	params, err := shlex.Split(p.Params)
	if err != nil {
		return nil, fmt.Errorf("split preset parameters %q: %w", p.Params, err)
	}

	output, err := t.pathFor(p, opts.Tagged)
	if err != nil {
		return nil, err
	}
	t.Profile = p

	args := []string{"-i", t.Path}
	if opts.Subtitles {
		if sub, ok := t.SubtitlePath(); ok {
			args = append(args, "-vf", subtitleFilter(sub))
		}
	}
	args = append(args, params...)
	threads := opts.Threads
	if threads < 0 {
		threads = 0
	}
	args = append(args, "-threads", strconv.Itoa(threads), "-y", output)
	return args, nil
}

func subtitleFilter(path string) string {
	escaped := strings.ReplaceAll(path, `'`, `'\''`)
	return fmt.Sprintf("subtitles='%s':force_style='Fontsize=24':charenc=cp1252", escaped)
}

// DeleteOutput removes the output file. A missing file is not an error; a
// permission error is retried a few times before giving up.
func (t *Task) DeleteOutput(tagged bool) error {
	path, err := t.OutputPath(tagged)
	if err != nil {
		return err
	}
	var last error
	for attempt := 1; attempt <= deleteAttempts; attempt++ {
		err := remove(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		last = err
		if !errors.Is(err, fs.ErrPermission) {
			break
		}
		if attempt < deleteAttempts {
			time.Sleep(deleteBackoff * time.Duration(attempt))
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrDeleteOutput, path, last)
}

// DeleteInput removes the input file and its sidecar subtitle, ignoring
// failures.
func (t *Task) DeleteInput() {
	if sub, ok := t.SubtitlePath(); ok {
		_ = os.Remove(sub)
	}
	_ = os.Remove(t.Path)
}

// Reset puts the task back in the queue.
func (t *Task) Reset() {
	t.Status = Todo
}
