// Package converter drives a task list through the encoder one file at a
// time. All list, timer and task mutations happen on the goroutine running
// Run; the encoder callbacks and the caller requests are posted to it as
// events.
package converter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/videomorph-dev/videomorph-sub000/encoder"
	"github.com/videomorph-dev/videomorph-sub000/logging"
	"github.com/videomorph-dev/videomorph-sub000/metrics"
	"github.com/videomorph-dev/videomorph-sub000/task"
)

// Options are the per-batch conversion switches.
type Options struct {
	Tagged      bool
	Subtitles   bool
	DeleteInput bool
	Threads     int
	Locale      string
}

// Kind tells what an Update reports.
type Kind int

const (
	Progress Kind = iota
	TaskStarted
	TaskFinished
	TaskFailed
	BatchFinished
	ListChanged
)

func (k Kind) String() string {
	switch k {
	case Progress:
		return "progress"
	case TaskStarted:
		return "task_started"
	case TaskFinished:
		return "task_finished"
	case TaskFailed:
		return "task_failed"
	case BatchFinished:
		return "batch_finished"
	case ListChanged:
		return "list_changed"
	default:
		return "unknown"
	}
}

// TaskView is a read-only copy of a task for display.
type TaskView struct {
	ID       string
	Name     string
	Quality  string
	Duration float64
	Status   task.Status
}

// Summary describes a finished batch.
type Summary struct {
	Done    int
	Stopped int
	// Failed counts tasks whose command could not be built or started.
	Failed       int
	Errors       []error
	LibraryError encoder.LibraryError
	// AllStopped is set when the user stopped every task.
	AllStopped bool
}

// Update is published by the event loop after every state change.
type Update struct {
	Kind   Kind
	Index  int
	Name   string
	Status task.Status

	Operation          int
	Process            int
	OperationRemaining string
	ProcessRemaining   string
	Bitrate            string

	Err     error
	Tasks   []TaskView
	Summary *Summary
}

type eventKind int

const (
	evOutput eventKind = iota
	evExit
	evStart
	evStopCurrent
	evStopAll
	evRequeue
)

type event struct {
	kind   eventKind
	text   string
	status encoder.ExitStatus
}

// Converter runs batches over a task list.
type Converter struct {
	list *task.List
	lib  *encoder.Library
	opts Options
	log  *logging.Logger

	events  chan event
	updates chan Update
	quit    chan struct{}

	running      bool
	listDuration float64
	taskStart    time.Time
	failed       int
	errs         []error
}

// New returns a Converter running the encoder at encoderPath over list.
// The list must not be touched by the caller once Run has been called.
func New(encoderPath string, list *task.List, opts Options, log *logging.Logger) *Converter {
	if log == nil {
		log = logging.Nop()
	}
	c := &Converter{
		list:    list,
		opts:    opts,
		log:     log.WithComponent("converter"),
		events:  make(chan event, 64),
		updates: make(chan Update, 64),
		quit:    make(chan struct{}),
	}
	c.lib = encoder.NewLibrary(encoderPath, encoder.HandlerFuncs{
		Output: func(text string) { c.post(event{kind: evOutput, text: text}) },
		Exit:   func(status encoder.ExitStatus) { c.post(event{kind: evExit, status: status}) },
	})
	return c
}

// Updates returns the channel updates are published on. It is closed when
// Run returns.
func (c *Converter) Updates() <-chan Update {
	return c.updates
}

// Library exposes the encoder library, mainly for its log lines.
func (c *Converter) Library() *encoder.Library {
	return c.lib
}

// LogLines returns the recent encoder output lines.
func (c *Converter) LogLines() []string {
	return c.lib.LogLines()
}

// Start begins converting every Todo task. Ignored while a batch runs.
func (c *Converter) Start() { c.post(event{kind: evStart}) }

// StopCurrent stops the running task and continues with the next one.
func (c *Converter) StopCurrent() { c.post(event{kind: evStopCurrent}) }

// StopAll stops the running task and every task still queued.
func (c *Converter) StopAll() { c.post(event{kind: evStopAll}) }

// Requeue puts every task that is not Done back to Todo. Ignored while a
// batch runs.
func (c *Converter) Requeue() { c.post(event{kind: evRequeue}) }

func (c *Converter) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.quit:
	}
}

// Run processes events until ctx is cancelled. A conversion still running
// at that point is killed and its partial output removed.
func (c *Converter) Run(ctx context.Context) error {
	defer close(c.updates)

	c.publish(ctx, Update{Kind: ListChanged, Index: task.NoPosition})

	for {
		select {
		case <-ctx.Done():
			close(c.quit)
			c.shutdown()
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

func (c *Converter) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evStart:
		c.startBatch(ctx)
	case evOutput:
		c.onOutput(ctx, ev.text)
	case evExit:
		c.onExit(ctx, ev.status)
	case evStopCurrent:
		c.stopCurrent(ctx)
	case evStopAll:
		c.stopAll(ctx)
	case evRequeue:
		c.requeue(ctx)
	}
}

func (c *Converter) startBatch(ctx context.Context) {
	if c.running {
		return
	}
	c.running = true
	c.failed = 0
	c.errs = nil
	c.list.ResetPosition()
	c.listDuration = c.list.Duration()
	c.lib.ClearError()
	metrics.SetBatchRunning(true)

	c.log.Infof("Starting batch of %d tasks (%.2fs of media)", c.list.Count(task.Todo), c.listDuration)
	c.next(ctx)
}

// next starts the first Todo task after the cursor, or finishes the batch.
func (c *Converter) next(ctx context.Context) {
	for c.list.Advance() {
		t, err := c.list.Running()
		if err != nil {
			break
		}
		if t.Status != task.Todo {
			continue
		}

		c.lib.Timer.OperationStart = time.Time{}
		c.lib.Reader.Update("")

		args, err := t.BuildCommand(t.Profile, task.BuildOptions{
			Tagged:    c.opts.Tagged,
			Subtitles: c.opts.Subtitles,
			Threads:   c.opts.Threads,
		})
		if err == nil {
			c.log.WithTaskID(t.ID).Zerolog().Debug().Strs("args", args).Msg("Command built")
			err = c.lib.Start(args)
		}
		if err != nil {
			c.fail(ctx, t, err)
			continue
		}

		t.Status = task.Running
		c.taskStart = time.Now()
		c.log.LogTaskEvent(t.ID, "started", t.Status.String(), map[string]interface{}{
			"file":    t.Path,
			"quality": t.Profile.Quality,
		})
		c.publish(ctx, Update{Kind: TaskStarted, Index: c.list.Position(), Name: t.Name(true), Status: t.Status})
		return
	}
	c.finishBatch(ctx)
}

// fail records a task that could not be started. The task stays Todo and
// the batch goes on.
func (c *Converter) fail(ctx context.Context, t *task.Task, err error) {
	c.failed++
	// The skipped task will never report progress.
	c.listDuration = max(c.listDuration-t.Duration(), 0)
	c.errs = append(c.errs, fmt.Errorf("%s: %w", t.Name(true), err))
	c.log.WithTaskID(t.ID).ErrorWithErr("Cannot convert "+t.Path, err)
	metrics.RecordBuildError(failReason(err))
	c.publish(ctx, Update{Kind: TaskFailed, Index: c.list.Position(), Name: t.Name(true), Status: t.Status, Err: err})
}

func failReason(err error) string {
	switch {
	case errors.Is(err, task.ErrNotWritable):
		return "not_writable"
	case errors.Is(err, task.ErrInputNotFound):
		return "input_not_found"
	case errors.Is(err, encoder.ErrAlreadyRunning):
		return "already_running"
	default:
		return "other"
	}
}

func (c *Converter) onOutput(ctx context.Context, text string) {
	if !c.running {
		return
	}
	t, err := c.list.Running()
	if err != nil {
		return
	}
	timer := c.lib.Timer
	if !timer.ProcessStarted() {
		timer.InitProcessStart()
	}
	if !timer.OperationStarted() {
		timer.InitOperationStart()
	}

	c.lib.Reader.Update(text)
	if !c.lib.Reader.HasTime() {
		if c.lib.CatchErrors() {
			c.log.WithTaskID(t.ID).Warnf("Encoder reported: %s", c.lib.Error())
			metrics.RecordLibraryError(string(c.lib.Error()))
		}
		return
	}
	seconds, ok := c.lib.Reader.TimeRead()
	if !ok {
		return
	}

	timer.UpdateTime(seconds)
	timer.UpdateCumTimes()
	op := min(timer.OperationProgress(t.Duration()), 100)
	total := min(timer.ProcessProgress(c.listDuration), 100)
	bitrate, _ := c.lib.Reader.BitrateRead()

	metrics.RecordProgress(op, total)
	c.log.LogConversionProgress(t.ID, op, total, bitrate)
	c.publish(ctx, Update{
		Kind:               Progress,
		Index:              c.list.Position(),
		Name:               t.Name(true),
		Status:             t.Status,
		Operation:          op,
		Process:            total,
		OperationRemaining: timer.OperationRemainingTime(t.Duration()),
		ProcessRemaining:   timer.ProcessRemainingTime(c.listDuration),
		Bitrate:            bitrate,
	})
}

func (c *Converter) onExit(ctx context.Context, status encoder.ExitStatus) {
	if !c.running {
		return
	}
	t, err := c.list.Running()
	if err != nil {
		c.finishBatch(ctx)
		return
	}
	if t.Status != task.Stopped {
		if status.Success() {
			t.Status = task.Done
			if c.opts.DeleteInput {
				t.DeleteInput()
			}
		} else {
			t.Status = task.Stopped
		}
		c.finished(ctx, t, status.Err)
	}
	c.next(ctx)
}

func (c *Converter) finished(ctx context.Context, t *task.Task, err error) {
	elapsed := time.Since(c.taskStart).Seconds()
	metrics.RecordTaskFinished(t.Status.String(), t.Profile.Family, elapsed)
	details := map[string]interface{}{"elapsed": elapsed}
	if err != nil {
		details["error"] = err.Error()
	}
	c.log.LogTaskEvent(t.ID, "finished", t.Status.String(), details)
	c.publish(ctx, Update{Kind: TaskFinished, Index: c.list.Position(), Name: t.Name(true), Status: t.Status, Err: err})
}

func (c *Converter) stopCurrent(ctx context.Context) {
	if !c.running {
		return
	}
	t, err := c.list.Running()
	if err != nil {
		return
	}
	// An exit already queued decides the task status itself.
	if err := c.lib.Terminate(); err != nil {
		if !errors.Is(err, encoder.ErrNotRunning) {
			c.log.WarnWithErr("Cannot stop encoder", err)
		}
		return
	}
	t.Status = task.Stopped
	c.deleteOutput(t)
	c.lib.Timer.ResetProgressTimes()
	c.listDuration = c.list.Duration()
	c.finished(ctx, t, nil)
}

func (c *Converter) stopAll(ctx context.Context) {
	if !c.running {
		return
	}
	current, _ := c.list.Running()
	terminated := c.lib.Terminate() == nil
	if terminated && current != nil {
		c.deleteOutput(current)
	}
	for _, t := range c.list.Tasks() {
		if t == current && !terminated {
			continue
		}
		if t.Status != task.Done {
			t.Status = task.Stopped
		}
	}
	c.lib.Timer.ResetProgressTimes()
	c.listDuration = c.list.Duration()
	c.log.Info("All tasks stopped by the user")
	if terminated && current != nil {
		c.finished(ctx, current, nil)
	}
}

func (c *Converter) deleteOutput(t *task.Task) {
	if err := t.DeleteOutput(c.opts.Tagged); err != nil {
		c.errs = append(c.errs, err)
		c.log.WithTaskID(t.ID).WarnWithErr("Cannot delete partial output", err)
	}
}

func (c *Converter) requeue(ctx context.Context) {
	if c.running {
		return
	}
	for _, t := range c.list.Tasks() {
		if t.Status != task.Done {
			t.Reset()
		}
	}
	c.listDuration = c.list.Duration()
	c.publish(ctx, Update{Kind: ListChanged, Index: task.NoPosition})
}

func (c *Converter) finishBatch(ctx context.Context) {
	summary := &Summary{
		Done:         c.list.Count(task.Done),
		Stopped:      c.list.Count(task.Stopped),
		Failed:       c.failed,
		Errors:       c.errs,
		LibraryError: c.lib.Error(),
		AllStopped:   c.list.Len() > 0 && c.list.AllStopped(),
	}
	if summary.LibraryError != "" {
		c.log.Error("The conversion library has failed with error: " + string(summary.LibraryError))
		c.lib.ClearError()
	}

	timer := c.lib.Timer
	timer.ResetProgressTimes()
	timer.ResetProcessStart()
	c.list.ResetPosition()
	c.listDuration = c.list.Duration()
	c.running = false
	metrics.SetBatchRunning(false)

	c.log.Zerolog().Info().
		Int("done", summary.Done).
		Int("stopped", summary.Stopped).
		Int("failed", summary.Failed).
		Bool("all_stopped", summary.AllStopped).
		Msg("Batch finished")
	c.publish(ctx, Update{Kind: BatchFinished, Index: task.NoPosition, Summary: summary})
}

// shutdown kills a running conversion without reporting its exit and
// removes the partial output.
func (c *Converter) shutdown() {
	if !c.running {
		return
	}
	t, err := c.list.Running()
	c.lib.Detach()
	select {
	case <-c.lib.Done():
	case <-time.After(5 * time.Second):
	}
	if err == nil && t.Status == task.Running {
		t.Status = task.Stopped
		c.deleteOutput(t)
	}
	c.running = false
	metrics.SetBatchRunning(false)
}

// publish sends u with a snapshot of the list. Progress updates are dropped
// when the consumer lags; everything else waits.
func (c *Converter) publish(ctx context.Context, u Update) {
	u.Tasks = c.snapshot()
	if u.Kind == Progress {
		select {
		case c.updates <- u:
		default:
		}
		return
	}
	select {
	case c.updates <- u:
	case <-ctx.Done():
	}
}

func (c *Converter) snapshot() []TaskView {
	tasks := c.list.Tasks()
	out := make([]TaskView, len(tasks))
	for i, t := range tasks {
		out[i] = TaskView{
			ID:       t.ID,
			Name:     t.Name(true),
			Quality:  t.Profile.Name(c.opts.Locale),
			Duration: t.Duration(),
			Status:   t.Status,
		}
	}
	return out
}
