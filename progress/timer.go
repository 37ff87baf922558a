// Package progress turns elapsed-time samples read from the encoder output
// into operation and batch progress percentages and remaining-time estimates.
package progress

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNegativeTime is returned by FormatTime for negative inputs.
var ErrNegativeTime = errors.New("time must be positive")

// Timer holds the bookkeeping needed to compute progress for the running
// file and for the whole batch. Times read from the encoder are expressed in
// seconds of source media; start markers and cumulative times are wall clock.
//
// A Timer is not safe for concurrent use. The converter event loop is its
// only writer.
type Timer struct {
	timeJump          float64
	partialTime       float64
	totalTime         float64
	operationTimeRead float64

	ProcessStart   time.Time
	ProcessCum     time.Duration
	OperationStart time.Time
	OperationCum   time.Duration

	now func() time.Time
}

// NewTimer returns a Timer using the wall clock.
func NewTimer() *Timer {
	return &Timer{now: time.Now}
}

// NewTimerWithClock returns a Timer reading time from now. Used by tests.
func NewTimerWithClock(now func() time.Time) *Timer {
	return &Timer{now: now}
}

func (t *Timer) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}

// UpdateTime records the elapsed seconds read from the encoder output.
func (t *Timer) UpdateTime(seconds float64) {
	t.operationTimeRead = seconds
}

// OperationTimeRead returns the last sample passed to UpdateTime.
func (t *Timer) OperationTimeRead() float64 {
	return t.operationTimeRead
}

// InitProcessStart marks the start of the batch.
func (t *Timer) InitProcessStart() {
	t.ProcessStart = t.clock()
}

// InitOperationStart marks the start of the current file.
func (t *Timer) InitOperationStart() {
	t.OperationStart = t.clock()
}

// ProcessStarted reports whether the batch start marker is set.
func (t *Timer) ProcessStarted() bool {
	return !t.ProcessStart.IsZero()
}

// OperationStarted reports whether the operation start marker is set.
func (t *Timer) OperationStarted() bool {
	return !t.OperationStart.IsZero()
}

// ResetProgressTimes clears the jump, partial and total accumulators and
// the operation start marker. Cumulative wall-clock counters and the process
// start marker are left alone; the caller owns their lifecycle.
func (t *Timer) ResetProgressTimes() {
	t.timeJump = 0
	t.partialTime = 0
	t.totalTime = 0
	t.OperationStart = time.Time{}
}

// ResetProcessStart clears the batch start marker.
func (t *Timer) ResetProcessStart() {
	t.ProcessStart = time.Time{}
}

// UpdateCumTimes refreshes the cumulative wall-clock times from the start
// markers.
func (t *Timer) UpdateCumTimes() {
	now := t.clock()
	t.OperationCum = now.Sub(t.OperationStart)
	t.ProcessCum = now.Sub(t.ProcessStart)
}

// OperationProgress returns the running file progress as a whole percentage.
func (t *Timer) OperationProgress(fileDuration float64) int {
	if fileDuration <= 0 {
		return 0
	}
	return int(math.Floor(100 * t.operationTimeRead / fileDuration))
}

// ProcessProgress returns the batch progress as a whole percentage.
//
// A sample smaller than the previous one means the encoder restarted its
// clock; the previous partial time is folded into the jump accumulator so
// the batch total never goes backwards.
func (t *Timer) ProcessProgress(listDuration float64) int {
	if t.partialTime > t.operationTimeRead {
		t.timeJump += t.partialTime
	}
	t.totalTime = t.timeJump + t.operationTimeRead
	t.partialTime = t.operationTimeRead

	if listDuration <= 0 {
		return 0
	}
	return int(math.Floor(100 * t.totalTime / listDuration))
}

// TotalTime returns the batch elapsed media time computed by the last call
// to ProcessProgress.
func (t *Timer) TotalTime() float64 {
	return t.totalTime
}

// OperationRemaining estimates the wall time left for the running file by
// linear extrapolation of the encoding speed. Never negative.
func (t *Timer) OperationRemaining(fileDuration float64) float64 {
	return remaining(fileDuration, t.OperationCum.Seconds(), t.operationTimeRead)
}

// ProcessRemaining estimates the wall time left for the batch.
func (t *Timer) ProcessRemaining(listDuration float64) float64 {
	return remaining(listDuration, t.ProcessCum.Seconds(), t.totalTime)
}

// OperationRemainingTime is OperationRemaining formatted with FormatTime.
func (t *Timer) OperationRemainingTime(fileDuration float64) string {
	s, _ := FormatTime(t.OperationRemaining(fileDuration))
	return s
}

// ProcessRemainingTime is ProcessRemaining formatted with FormatTime.
func (t *Timer) ProcessRemainingTime(listDuration float64) string {
	s, _ := FormatTime(t.ProcessRemaining(listDuration))
	return s
}

func remaining(duration, elapsedWall, elapsedMedia float64) float64 {
	if elapsedMedia <= 0 {
		return 0
	}
	estimate := duration * (elapsedWall / elapsedMedia)
	left := estimate - elapsedWall
	if left < 0 || math.IsNaN(left) || math.IsInf(left, 0) {
		return 0
	}
	return left
}

// FormatTime renders seconds as "00h:00m:00s", "00m:00s" or "00s",
// dropping leading zero units.
func FormatTime(seconds float64) (string, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "", fmt.Errorf("invalid time measure %v", seconds)
	}
	total := int64(math.Round(seconds))
	if total < 0 {
		return "", ErrNegativeTime
	}

	hours := total / 3600
	minutes := total/60 - hours*60
	secs := total - minutes*60 - hours*3600

	switch {
	case hours > 0:
		return fmt.Sprintf("%02dh:%02dm:%02ds", hours, minutes, secs), nil
	case minutes > 0:
		return fmt.Sprintf("%02dm:%02ds", minutes, secs), nil
	default:
		return fmt.Sprintf("%02ds", secs), nil
	}
}
