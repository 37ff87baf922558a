package progress

import (
	"errors"
	"math"
	"testing"
	"testing/quick"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestOperationProgress(t *testing.T) {
	timer := NewTimer()
	samples := []float64{0, 30, 60, 90}
	want := []int{0, 25, 50, 75}

	for i, s := range samples {
		timer.UpdateTime(s)
		if got := timer.OperationProgress(120); got != want[i] {
			t.Errorf("OperationProgress after %v = %d, want %d", s, got, want[i])
		}
	}
}

func TestOperationProgress_ZeroDuration(t *testing.T) {
	timer := NewTimer()
	timer.UpdateTime(10)
	if got := timer.OperationProgress(0); got != 0 {
		t.Errorf("OperationProgress(0) = %d, want 0", got)
	}
	if got := timer.ProcessProgress(0); got != 0 {
		t.Errorf("ProcessProgress(0) = %d, want 0", got)
	}
}

func TestProcessProgress_TimeJump(t *testing.T) {
	timer := NewTimer()
	listDuration := 200.0

	timer.UpdateTime(90)
	first := timer.ProcessProgress(listDuration)
	if first != 45 {
		t.Fatalf("ProcessProgress = %d, want 45", first)
	}

	timer.UpdateTime(10)
	second := timer.ProcessProgress(listDuration)
	if second < first {
		t.Errorf("ProcessProgress went backwards: %d -> %d", first, second)
	}
	if second != 50 {
		t.Errorf("ProcessProgress = %d, want 50", second)
	}
	if timer.TotalTime() != 100 {
		t.Errorf("TotalTime = %v, want 100", timer.TotalTime())
	}
}

// Property: process progress never decreases, whatever the sample order
func TestProcessProgress_Monotonic_Property(t *testing.T) {
	f := func(samples []uint16) bool {
		timer := NewTimer()
		last := math.MinInt
		for _, s := range samples {
			timer.UpdateTime(float64(s))
			p := timer.ProcessProgress(1000)
			if p < last {
				return false
			}
			last = p
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 1000}); err != nil {
		t.Error(err)
	}
}

func TestResetProgressTimes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	timer := NewTimerWithClock(clock.Now)

	timer.InitProcessStart()
	timer.InitOperationStart()
	timer.UpdateTime(50)
	timer.ProcessProgress(100)
	timer.UpdateTime(5)
	timer.ProcessProgress(100)
	clock.Advance(10 * time.Second)
	timer.UpdateCumTimes()

	timer.ResetProgressTimes()

	if timer.TotalTime() != 0 {
		t.Errorf("TotalTime after reset = %v", timer.TotalTime())
	}
	if timer.OperationStarted() {
		t.Error("operation start marker survived reset")
	}
	if !timer.ProcessStarted() {
		t.Error("process start marker cleared by reset")
	}
	if timer.ProcessCum != 10*time.Second || timer.OperationCum != 10*time.Second {
		t.Errorf("cumulative times changed by reset: %v %v", timer.ProcessCum, timer.OperationCum)
	}

	timer.UpdateTime(5)
	if got := timer.ProcessProgress(100); got != 5 {
		t.Errorf("ProcessProgress after reset = %d, want 5", got)
	}
}

func TestOperationRemaining(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	timer := NewTimerWithClock(clock.Now)
	timer.InitProcessStart()
	timer.InitOperationStart()

	// 30s of media encoded in 10s of wall time: 120s file needs 40s total.
	clock.Advance(10 * time.Second)
	timer.UpdateCumTimes()
	timer.UpdateTime(30)
	timer.ProcessProgress(240)

	if got := timer.OperationRemaining(120); math.Abs(got-30) > 1e-9 {
		t.Errorf("OperationRemaining = %v, want 30", got)
	}
	if got := timer.OperationRemainingTime(120); got != "30s" {
		t.Errorf("OperationRemainingTime = %q, want 30s", got)
	}
	if got := timer.ProcessRemainingTime(240); got != "01m:10s" {
		t.Errorf("ProcessRemainingTime = %q, want 01m:10s", got)
	}
}

func TestOperationRemaining_Clamped(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	timer := NewTimerWithClock(clock.Now)
	timer.InitProcessStart()
	timer.InitOperationStart()
	clock.Advance(100 * time.Second)
	timer.UpdateCumTimes()

	// No sample yet.
	if got := timer.OperationRemaining(120); got != 0 {
		t.Errorf("OperationRemaining with zero sample = %v, want 0", got)
	}

	// Sample beyond the file duration.
	timer.UpdateTime(200)
	if got := timer.OperationRemaining(120); got != 0 {
		t.Errorf("OperationRemaining past estimate = %v, want 0", got)
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		seconds  float64
		expected string
	}{
		{0, "00s"},
		{0.4, "00s"},
		{59, "59s"},
		{60, "01m:00s"},
		{61.6, "01m:02s"},
		{3600, "01h:00m:00s"},
		{3661, "01h:01m:01s"},
		{90061, "25h:01m:01s"},
	}

	for _, tc := range tests {
		got, err := FormatTime(tc.seconds)
		if err != nil {
			t.Errorf("FormatTime(%v) error: %v", tc.seconds, err)
			continue
		}
		if got != tc.expected {
			t.Errorf("FormatTime(%v) = %q, want %q", tc.seconds, got, tc.expected)
		}
	}
}

func TestFormatTime_Invalid(t *testing.T) {
	if _, err := FormatTime(-1); !errors.Is(err, ErrNegativeTime) {
		t.Errorf("FormatTime(-1) error = %v, want ErrNegativeTime", err)
	}
	if _, err := FormatTime(math.NaN()); err == nil {
		t.Error("FormatTime(NaN) returned no error")
	}
}
