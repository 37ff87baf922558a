package task

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videomorph-dev/videomorph-sub000/probe"
	"github.com/videomorph-dev/videomorph-sub000/profile"
)

var dvd = profile.Profile{
	Family:    "DVD",
	Quality:   "DVD Fullscreen (4:3)",
	Params:    "-f dvd -target ntsc-dvd -vcodec mpeg2video -aspect 4:3",
	Extension: ".mpg",
}

var mp4 = profile.Profile{
	Family:    "MP4",
	Quality:   "MP4 Fullscreen (4:3)",
	Params:    `-vcodec libx264 -metadata title="My Movie"`,
	Extension: ".mp4",
}

func infoWithDuration(d string) probe.Info {
	return probe.Info{Format: map[string]string{"duration": d}}
}

// newTestTask creates an input file in a temp dir and a task writing into
// a second temp dir.
func newTestTask(t *testing.T, name string) *Task {
	t.Helper()
	in := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(in, []byte("video"), 0o644))
	return New(in, infoWithDuration("120.72"), dvd, t.TempDir())
}

func TestOutputName(t *testing.T) {
	task := New("/videos/holiday.mkv", probe.Info{}, mp4, "/out")

	name, err := task.OutputName(false)
	require.NoError(t, err)
	assert.Equal(t, "holiday.mp4", name)

	name, err = task.OutputName(true)
	require.NoError(t, err)
	assert.Equal(t, "[MP4F]-holiday.mp4", name)

	path, err := task.OutputPath(true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "[MP4F]-holiday.mp4"), path)

	// Recomputed when the profile changes.
	task.Profile = dvd
	path, err = task.OutputPath(true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "[DVDF]-holiday.mpg"), path)
}

func TestOutputNameEmptyTag(t *testing.T) {
	task := New("/videos/a.mkv", probe.Info{}, profile.Profile{Extension: ".mp4"}, "/out")
	_, err := task.OutputName(true)
	assert.ErrorIs(t, err, profile.ErrEmptyTag)
}

func TestName(t *testing.T) {
	task := New("/videos/my.movie.avi", probe.Info{}, dvd, "/out")
	assert.Equal(t, "my.movie.avi", task.Name(true))
	assert.Equal(t, "my.movie", task.Name(false))
}

func TestBuildCommand(t *testing.T) {
	task := newTestTask(t, "clip.avi")

	args, err := task.BuildCommand(mp4, BuildOptions{Tagged: true, Threads: 3})
	require.NoError(t, err)

	out := filepath.Join(task.OutputDir(), "[MP4F]-clip.mp4")
	assert.Equal(t, []string{
		"-i", task.Path,
		"-vcodec", "libx264", "-metadata", "title=My Movie",
		"-threads", "3",
		"-y", out,
	}, args)
	assert.Equal(t, mp4, task.Profile, "profile is reassigned by the build")
}

func TestBuildCommandSubtitles(t *testing.T) {
	task := newTestTask(t, "clip.avi")
	sub := filepath.Join(filepath.Dir(task.Path), "clip.SRT")
	require.NoError(t, os.WriteFile(sub, []byte("1\n00:00:01,000 --> 00:00:02,000\nhi\n"), 0o644))

	args, err := task.BuildCommand(dvd, BuildOptions{Subtitles: true})
	require.NoError(t, err)
	require.Greater(t, len(args), 4)
	assert.Equal(t, "-vf", args[2])
	assert.Equal(t, "subtitles='"+sub+"':force_style='Fontsize=24':charenc=cp1252", args[3])

	// Without the switch the sidecar is ignored.
	args, err = task.BuildCommand(dvd, BuildOptions{})
	require.NoError(t, err)
	assert.NotContains(t, args, "-vf")
}

func TestBuildCommandMissingSubtitleIsNotAnError(t *testing.T) {
	task := newTestTask(t, "clip.avi")
	args, err := task.BuildCommand(dvd, BuildOptions{Subtitles: true})
	require.NoError(t, err)
	assert.NotContains(t, args, "-vf")
}

func TestBuildCommandNotWritable(t *testing.T) {
	task := newTestTask(t, "clip.avi")
	missing := filepath.Join(t.TempDir(), "missing", "dir")
	task.outputDir = &missing

	args, err := task.BuildCommand(mp4, BuildOptions{})
	assert.ErrorIs(t, err, ErrNotWritable)
	assert.Nil(t, args)
	assert.Equal(t, dvd, task.Profile, "task is untouched on failure")
}

func TestBuildCommandReadOnlyDir(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced")
	}
	task := newTestTask(t, "clip.avi")
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })
	task.outputDir = &dir

	_, err := task.BuildCommand(mp4, BuildOptions{})
	assert.ErrorIs(t, err, ErrNotWritable)
}

func TestBuildCommandEmptyTagKeepsProfile(t *testing.T) {
	task := newTestTask(t, "clip.avi")
	blank := mp4
	blank.Quality = ""

	args, err := task.BuildCommand(blank, BuildOptions{Tagged: true})
	assert.ErrorIs(t, err, profile.ErrEmptyTag)
	assert.Nil(t, args)
	assert.Equal(t, dvd, task.Profile)
}

func TestBuildCommandInputNotFound(t *testing.T) {
	task := New(filepath.Join(t.TempDir(), "gone.avi"), probe.Info{}, dvd, t.TempDir())
	_, err := task.BuildCommand(mp4, BuildOptions{})
	assert.ErrorIs(t, err, ErrInputNotFound)
}

func TestBuildCommandBadParams(t *testing.T) {
	task := newTestTask(t, "clip.avi")
	bad := mp4
	bad.Params = `-metadata title="unterminated`
	_, err := task.BuildCommand(bad, BuildOptions{})
	assert.Error(t, err)
	assert.Equal(t, dvd, task.Profile)
}

func TestDeleteOutput(t *testing.T) {
	task := newTestTask(t, "clip.avi")
	out, err := task.OutputPath(false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(out, []byte("partial"), 0o644))

	require.NoError(t, task.DeleteOutput(false))
	_, err = os.Stat(out)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// Missing output is fine.
	assert.NoError(t, task.DeleteOutput(false))
}

func TestDeleteOutputGivesUp(t *testing.T) {
	task := newTestTask(t, "clip.avi")
	out, err := task.OutputPath(false)
	require.NoError(t, err)
	// A non-empty directory cannot be removed with os.Remove.
	require.NoError(t, os.MkdirAll(filepath.Join(out, "child"), 0o755))

	assert.ErrorIs(t, task.DeleteOutput(false), ErrDeleteOutput)
}

// stubRemove replaces the remove hook for the duration of the test.
func stubRemove(t *testing.T, fn func(string) error) {
	t.Helper()
	oldRemove, oldBackoff := remove, deleteBackoff
	remove, deleteBackoff = fn, time.Millisecond
	t.Cleanup(func() { remove, deleteBackoff = oldRemove, oldBackoff })
}

func TestDeleteOutputRetries(t *testing.T) {
	denied := func(path string) error {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrPermission}
	}
	tests := []struct {
		name      string
		succeedOn int // 0 never succeeds
		errFn     func(string) error
		wantCalls int
		wantErr   bool
	}{
		{"locked until the end", 0, denied, deleteAttempts, true},
		{"released on second try", 2, denied, 2, false},
		{"other errors are final", 0, func(p string) error {
			return &fs.PathError{Op: "remove", Path: p, Err: errors.New("device busy")}
		}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			stubRemove(t, func(path string) error {
				calls++
				if calls == tt.succeedOn {
					return nil
				}
				return tt.errFn(path)
			})
			task := New("/videos/clip.avi", probe.Info{}, dvd, t.TempDir())

			err := task.DeleteOutput(false)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDeleteOutput)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestDeleteInput(t *testing.T) {
	task := newTestTask(t, "clip.avi")
	sub := filepath.Join(filepath.Dir(task.Path), "clip.srt")
	require.NoError(t, os.WriteFile(sub, []byte("subs"), 0o644))

	task.DeleteInput()
	_, err := os.Stat(task.Path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(sub)
	assert.True(t, os.IsNotExist(err))

	// Already gone: no panic, no error.
	task.DeleteInput()
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "todo", Todo.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "stopped", Stopped.String())
}
