package task

import (
	"context"
	"fmt"

	"github.com/videomorph-dev/videomorph-sub000/probe"
	"github.com/videomorph-dev/videomorph-sub000/profile"
)

// NoPosition is the cursor value while no task is running.
const NoPosition = -1

// List is the ordered conversion queue. Insertion order is conversion
// order. It is not safe for concurrent use; the converter event loop is its
// only writer while a batch runs.
type List struct {
	tasks     []*Task
	paths     map[string]bool
	notAdded  []string
	position  int
	outputDir *string
}

// NewList returns an empty list writing into outputDir.
func NewList(outputDir string) *List {
	return &List{
		paths:     make(map[string]bool),
		position:  NoPosition,
		outputDir: &outputDir,
	}
}

// OutputDir returns the output directory shared by every task.
func (l *List) OutputDir() string {
	return *l.outputDir
}

// SetOutputDir changes the output directory of every task in the list.
func (l *List) SetOutputDir(dir string) {
	*l.outputDir = dir
}

// Add appends a task for path unless the same path is already queued, in
// which case the path is recorded in NotAdded.
func (l *List) Add(path string, info probe.Info, p profile.Profile) (*Task, bool) {
	if l.paths[path] {
		l.notAdded = append(l.notAdded, path)
		return nil, false
	}
	t := New(path, info, p, "")
	t.outputDir = l.outputDir
	l.tasks = append(l.tasks, t)
	l.paths[path] = true
	return t, true
}

// Prober is the part of probe.Prober the list needs.
type Prober interface {
	Probe(ctx context.Context, file string) (probe.Info, error)
}

// Populate probes and adds every path. Files that fail to probe or have no
// positive duration are recorded in NotAdded. onEach, when set, is called
// with each path before it is probed.
func (l *List) Populate(ctx context.Context, paths []string, prober Prober, p profile.Profile, onEach func(path string)) (int, error) {
	added := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		if onEach != nil {
			onEach(path)
		}
		info, err := prober.Probe(ctx, path)
		if err != nil || !info.Valid() {
			l.notAdded = append(l.notAdded, path)
			continue
		}
		if _, ok := l.Add(path, info, p); ok {
			added++
		}
	}
	return added, nil
}

// NotAdded returns the paths rejected as duplicates or invalid.
func (l *List) NotAdded() []string {
	out := make([]string, len(l.notAdded))
	copy(out, l.notAdded)
	return out
}

// ClearNotAdded forgets the rejected paths.
func (l *List) ClearNotAdded() {
	l.notAdded = nil
}

// Len returns the number of tasks.
func (l *List) Len() int {
	return len(l.tasks)
}

// Tasks returns the tasks in order. The slice is a copy; the tasks are not.
func (l *List) Tasks() []*Task {
	out := make([]*Task, len(l.tasks))
	copy(out, l.tasks)
	return out
}

// Task returns the task at index.
func (l *List) Task(index int) (*Task, error) {
	if index < 0 || index >= len(l.tasks) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return l.tasks[index], nil
}

// Delete removes the task at index. The cursor keeps pointing at the same
// task. The task under the cursor cannot be removed; stop the run first.
func (l *List) Delete(index int) error {
	t, err := l.Task(index)
	if err != nil {
		return err
	}
	if index == l.position {
		return fmt.Errorf("%w: %d", ErrDeleteRunning, index)
	}
	delete(l.paths, t.Path)
	l.tasks = append(l.tasks[:index], l.tasks[index+1:]...)
	if l.position != NoPosition && index < l.position {
		l.position--
	}
	return nil
}

// Clear removes every task and resets the cursor.
func (l *List) Clear() {
	l.tasks = nil
	l.paths = make(map[string]bool)
	l.notAdded = nil
	l.position = NoPosition
}

// Position returns the index of the running task, or NoPosition.
func (l *List) Position() int {
	return l.position
}

// SetPosition moves the cursor to index, which must be NoPosition or valid.
func (l *List) SetPosition(index int) error {
	if index != NoPosition && (index < 0 || index >= len(l.tasks)) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	l.position = index
	return nil
}

// Advance moves the cursor to the next task. It reports false, leaving the
// cursor alone, when the list is exhausted.
func (l *List) Advance() bool {
	if l.IsExhausted() {
		return false
	}
	l.position++
	return true
}

// ResetPosition sets the cursor back to NoPosition.
func (l *List) ResetPosition() {
	l.position = NoPosition
}

// IsExhausted reports whether no task follows the cursor.
func (l *List) IsExhausted() bool {
	return l.position+1 >= len(l.tasks)
}

// Running returns the task at the cursor.
func (l *List) Running() (*Task, error) {
	if l.position == NoPosition {
		return nil, ErrNoRunningTask
	}
	return l.Task(l.position)
}

// RunningName returns the base name of the task at the cursor.
func (l *List) RunningName(withExt bool) (string, error) {
	t, err := l.Running()
	if err != nil {
		return "", err
	}
	return t.Name(withExt), nil
}

// RunningStatus returns the status of the task at the cursor.
func (l *List) RunningStatus() (Status, error) {
	t, err := l.Running()
	if err != nil {
		return Todo, err
	}
	return t.Status, nil
}

// BuildRunningCommand builds the command of the task at the cursor.
func (l *List) BuildRunningCommand(p profile.Profile, opts BuildOptions) ([]string, error) {
	t, err := l.Running()
	if err != nil {
		return nil, err
	}
	return t.BuildCommand(p, opts)
}

// Duration sums the source durations of the tasks not yet Done: those
// after the cursor while a run is active, otherwise all of them.
func (l *List) Duration() float64 {
	start := 0
	if l.position != NoPosition {
		start = l.position + 1
	}
	var total float64
	for _, t := range l.tasks[min(start, len(l.tasks)):] {
		if t.Status != Done {
			total += t.Duration()
		}
	}
	return total
}

// AllStopped reports whether every task is Stopped.
func (l *List) AllStopped() bool {
	return l.all(Stopped)
}

// AllDone reports whether every task is Done.
func (l *List) AllDone() bool {
	return l.all(Done)
}

func (l *List) all(s Status) bool {
	for _, t := range l.tasks {
		if t.Status != s {
			return false
		}
	}
	return true
}

// Count returns how many tasks have status s.
func (l *List) Count(s Status) int {
	n := 0
	for _, t := range l.tasks {
		if t.Status == s {
			n++
		}
	}
	return n
}
