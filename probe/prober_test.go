package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const formatOutput = `Input #0, matroska,webm, from 'sample.mkv':
  Duration: 00:02:00.72, start: 0.000000, bitrate: 1200 kb/s
[FORMAT]
filename=sample.mkv
nb_streams=2
nb_programs=0
format_name=matroska,webm
format_long_name=Matroska / WebM
start_time=0.000000
duration=120.720000
size=18110000
bit_rate=1200000
probe_score=100
[/FORMAT]
`

const videoOutput = `[STREAM]
index=0
codec_name=h264
codec_long_name=H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10
width=1280
height=720
bit_rate=N/A
[/STREAM]
`

const audioOutput = `[STREAM]
index=1
codec_name=aac
codec_long_name=AAC (Advanced Audio Coding)
sample_rate=48000
[/STREAM]
[STREAM]
index=2
codec_name=ac3
codec_long_name=ATSC A/52A (AC-3)
[/STREAM]
`

func fakeRunner(outputs map[string]string) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		key := strings.Join(args[:len(args)-1], " ")
		return []byte(outputs[key]), nil
	}
}

func sampleFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.mkv")
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0o644))
	return path
}

func TestParseFormat(t *testing.T) {
	got := Parse(Format, []byte(formatOutput))
	assert.Equal(t, map[string]string{
		"filename":         "sample.mkv",
		"nb_streams":       "2",
		"format_name":      "matroska,webm",
		"format_long_name": "Matroska / WebM",
		"duration":         "120.720000",
		"size":             "18110000",
		"bit_rate":         "1200000",
	}, got)
}

func TestParseRepeatedStreams(t *testing.T) {
	got := Parse(Audio, []byte(audioOutput))
	assert.Equal(t, "aac", got["codec_name"])
	assert.Equal(t, "ac3", got["codec_name_1"])
	assert.Equal(t, "ATSC A/52A (AC-3)", got["codec_long_name_1"])
	assert.NotContains(t, got, "sample_rate")
}

func TestParseSubtitleLanguage(t *testing.T) {
	out := "[STREAM]\ncodec_name=subrip\nTAG:language=spa\n[/STREAM]\n"
	got := Parse(Subtitle, []byte(out))
	assert.Equal(t, "spa", got["TAG:language"])
}

func TestProbeSampleFile(t *testing.T) {
	p := New("ffprobe")
	p.Run = fakeRunner(map[string]string{
		"-show_format":                    formatOutput,
		"-show_streams -select_streams v": videoOutput,
		"-show_streams -select_streams a": audioOutput,
		"-show_streams -select_streams s": "",
	})

	info, err := p.Probe(context.Background(), sampleFile(t))
	require.NoError(t, err)

	assert.NotEmpty(t, info.Format)
	assert.NotEmpty(t, info.Video)
	assert.NotEmpty(t, info.Audio)
	assert.Empty(t, info.Subtitle)
	assert.True(t, info.Valid())
	assert.InDelta(t, 120.72, info.Duration(), 1e-9)
	assert.Equal(t, "1280", info.Video["width"])
}

func TestProbeMissingFile(t *testing.T) {
	called := false
	p := New("ffprobe")
	p.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		called = true
		return nil, nil
	}

	info, err := p.Probe(context.Background(), filepath.Join(t.TempDir(), "gone.mkv"))
	require.NoError(t, err)
	assert.False(t, called)
	assert.Empty(t, info.Format)
	assert.Empty(t, info.Video)
	assert.Empty(t, info.Audio)
	assert.Empty(t, info.Subtitle)
	assert.False(t, info.Valid())
}

func TestProbeRunnerError(t *testing.T) {
	p := New("ffprobe")
	boom := errors.New("boom")
	p.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, boom
	}
	_, err := p.Probe(context.Background(), sampleFile(t))
	assert.ErrorIs(t, err, boom)
}

func TestInfoValid(t *testing.T) {
	tests := []struct {
		duration string
		valid    bool
	}{
		{"120.72", true},
		{"0.5", true},
		{"0", false},
		{"0.000000", false},
		{"-3", false},
		{"N/A", false},
		{"", false},
		{"NaN", false},
		{"Inf", false},
	}

	for _, tc := range tests {
		info := Info{Format: map[string]string{"duration": tc.duration}}
		if info.Valid() != tc.valid {
			t.Errorf("Valid() with duration %q = %v, want %v", tc.duration, info.Valid(), tc.valid)
		}
	}
}
