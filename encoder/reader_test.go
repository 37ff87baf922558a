package encoder

import (
	"fmt"
	"math"
	"testing"
	"testing/quick"
)

// Property: the mixed-radix fold of h:m:s equals h*3600 + m*60 + s
func TestParseClock_Property(t *testing.T) {
	f := func(h, m, s uint8) bool {
		token := fmt.Sprintf("%02d:%02d:%02d.50", h, m%60, s%60)
		got, ok := parseClock(token)
		want := float64(h)*3600 + float64(m%60)*60 + float64(s%60) + 0.5
		return ok && math.Abs(got-want) < 1e-9
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 1000}); err != nil {
		t.Error(err)
	}
}

func TestParseClock_EdgeCases(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		ok       bool
	}{
		{"00:00:00.00", 0, true},
		{"00:01:30.50", 90.5, true},
		{"01:00:00.00", 3600, true},
		{"02:03.5", 123.5, true},
		{"42.25", 42.25, true},
		{"", 0, false},
		{"1::2", 0, false},
		{"aa:bb", 0, false},
	}

	for _, tc := range tests {
		got, ok := parseClock(tc.input)
		if ok != tc.ok {
			t.Errorf("parseClock(%q) ok = %v, want %v", tc.input, ok, tc.ok)
			continue
		}
		if math.Abs(got-tc.expected) > 0.001 {
			t.Errorf("parseClock(%q) = %f, want %f", tc.input, got, tc.expected)
		}
	}
}

func TestReaderTimeRead(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected float64
		ok       bool
	}{
		{
			name:     "single progress line",
			output:   "frame=  120 fps= 30 q=28.0 size=     256kB time=00:00:04.00 bitrate= 524.3kbits/s speed=1.0x",
			expected: 4,
			ok:       true,
		},
		{
			name:     "last token wins",
			output:   "time=00:00:01.00 bitrate=1.0kbits/s\rtime=00:01:02.50 bitrate=2.0kbits/s\r",
			expected: 62.5,
			ok:       true,
		},
		{
			name:   "banner only",
			output: "Input #0, matroska,webm, from 'in.mkv':\n  Duration: 00:02:00.72, start: 0.000000\n",
			ok:     false,
		},
		{
			name:   "token without trailing space",
			output: "time=00:00:04.00",
			ok:     false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReader()
			r.Update(tc.output)
			got, ok := r.TimeRead()
			if ok != tc.ok {
				t.Fatalf("TimeRead() ok = %v, want %v", ok, tc.ok)
			}
			if math.Abs(got-tc.expected) > 0.001 {
				t.Errorf("TimeRead() = %f, want %f", got, tc.expected)
			}
			if r.HasTime() != tc.ok {
				t.Errorf("HasTime() = %v, want %v", r.HasTime(), tc.ok)
			}
		})
	}
}

func TestReaderUpdateReplacesBuffer(t *testing.T) {
	r := NewReader()
	r.Update("time=00:00:10.00 bitrate= 100.0kbits/s")
	r.Update("Press [q] to stop")
	if _, ok := r.TimeRead(); ok {
		t.Error("TimeRead() found a token from a previous update")
	}
	if r.Output() != "Press [q] to stop" {
		t.Errorf("Output() = %q", r.Output())
	}
}

func TestReaderBitrateRead(t *testing.T) {
	tests := []struct {
		line string
		raw  string
		ok   bool
	}{
		{"bitrate=1234.5kbits/s speed=1x", "1234.5kbits/s", true},
		{"bitrate= 524.3kbits/s", "524.3kbits/s", true},
		{"bitrate=  5000kbits/s", "5000kbits/s", true},
		{"bitrate=1.2Mbits/s", "1.2Mbits/s", true},
		{"bitrate=N/A", "", false},
		{"no tokens here", "", false},
	}

	for _, tc := range tests {
		r := NewReader()
		r.Update(tc.line)
		raw, ok := r.BitrateRead()
		if ok != tc.ok {
			t.Errorf("BitrateRead(%q) ok = %v, want %v", tc.line, ok, tc.ok)
			continue
		}
		if raw != tc.raw {
			t.Errorf("BitrateRead(%q) = %q, want %q", tc.line, raw, tc.raw)
		}
	}
}

func TestReaderCatchErrors(t *testing.T) {
	tests := []struct {
		output   string
		expected LibraryError
		ok       bool
	}{
		{"Unknown encoder 'libfoo'", "Unknown encoder", true},
		{"Unrecognized option 'bogus'.\nError splitting the argument list: Option not found", "Unrecognized option", true},
		{"Error while opening encoder: Invalid argument", "Invalid argument", true},
		{"Unknown encoder 'x' ... Invalid argument", "Unknown encoder", true},
		{"Stream mapping:\n  Stream #0:0 -> #0:0 (h264 -> mpeg4)", "", false},
	}

	for _, tc := range tests {
		r := NewReader()
		r.Update(tc.output)
		got, ok := r.CatchErrors()
		if ok != tc.ok || got != tc.expected {
			t.Errorf("CatchErrors(%q) = (%q, %v), want (%q, %v)", tc.output, got, ok, tc.expected, tc.ok)
		}
	}
}

func TestLibraryCatchErrorsIgnoresProgress(t *testing.T) {
	lib := NewLibrary("ffmpeg", nil)

	lib.Reader.Update("time=00:00:01.00 bitrate=1.0kbits/s Invalid argument")
	if lib.CatchErrors() {
		t.Error("CatchErrors() recorded an error while progress was reported")
	}

	lib.Reader.Update("Unknown encoder 'libxyz'")
	if !lib.CatchErrors() {
		t.Fatal("CatchErrors() missed a fatal phrase")
	}
	if lib.Error() != "Unknown encoder" {
		t.Errorf("Error() = %q", lib.Error())
	}
	lib.ClearError()
	if lib.Error() != "" {
		t.Errorf("Error() after ClearError = %q", lib.Error())
	}
}
