package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlatform(t *testing.T) Platform {
	dir := t.TempDir()
	return Platform{OS: Linux, ConfigDir: dir, ProfilesDir: filepath.Join(dir, "shipped"), BinDir: filepath.Join(dir, "bin")}
}

func TestLoadDefaults(t *testing.T) {
	p := testPlatform(t)
	s, err := Load(filepath.Join(p.ConfigDir, "missing.yaml"), p)
	require.NoError(t, err)

	assert.Equal(t, "MP4 Very High Quality", s.Quality)
	assert.False(t, s.Tagged)
	assert.Equal(t, p.UserProfilesDir(), s.ProfilesDir)
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, filepath.Join(p.ConfigDir, "videomorph.log"), s.Log.Output)
}

func TestLoadFileAndEnv(t *testing.T) {
	p := testPlatform(t)
	path := filepath.Join(p.ConfigDir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
outputDir: /data/out
quality: DVD Fullscreen (4:3)
tagged: true
log:
  level: debug
`), 0o644))

	t.Setenv("VIDEOMORPH_SUBTITLES", "true")
	t.Setenv("VIDEOMORPH_LOG_FORMAT", "json")

	s, err := Load(path, p)
	require.NoError(t, err)
	assert.Equal(t, "/data/out", s.OutputDir)
	assert.Equal(t, "DVD Fullscreen (4:3)", s.Quality)
	assert.True(t, s.Tagged)
	assert.True(t, s.Subtitles)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "json", s.Log.Format)
}

func TestLoadInvalidFile(t *testing.T) {
	p := testPlatform(t)
	path := filepath.Join(p.ConfigDir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tagged: [unclosed"), 0o644))

	_, err := Load(path, p)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	p := testPlatform(t)
	path := filepath.Join(p.ConfigDir, "nested", "settings.yaml")

	want := Settings{
		OutputDir:   "/videos/out",
		Quality:     "WMV Generic",
		Tagged:      true,
		DeleteInput: true,
		Locale:      "es_ES",
		ProfilesDir: p.UserProfilesDir(),
		Log:         LogSettings{Level: "warn", Format: "json", Output: "stderr"},
	}
	require.NoError(t, Save(path, want))

	got, err := Load(path, p)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestLookupBinaryPrefersBundled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bundled layout differs on windows")
	}
	p := testPlatform(t)
	require.NoError(t, os.MkdirAll(p.BinDir, 0o755))
	bundled := filepath.Join(p.BinDir, "ffmpeg")
	require.NoError(t, os.WriteFile(bundled, []byte("#!/bin/sh\n"), 0o755))

	got, err := p.LookupBinary("ffmpeg")
	require.NoError(t, err)
	assert.Equal(t, bundled, got)
}

func TestLookupBinaryFallsBackToPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bundled layout differs on windows")
	}
	p := testPlatform(t)
	pathDir := t.TempDir()
	onPath := filepath.Join(pathDir, "ffprobe")
	require.NoError(t, os.WriteFile(onPath, []byte("#!/bin/sh\n"), 0o755))
	t.Setenv("PATH", pathDir)

	got, err := p.LookupBinary("ffprobe")
	require.NoError(t, err)
	assert.Equal(t, onPath, got)

	_, err = p.LookupBinary("definitely-not-installed")
	assert.True(t, errors.Is(err, ErrBinaryNotFound))
}

func TestForOS(t *testing.T) {
	win := ForOS("windows")
	assert.Equal(t, Windows, win.OS)
	assert.Equal(t, ".exe", win.ExeSuffix)
	assert.Equal(t, "bin", filepath.Base(win.BinDir))

	linux := ForOS("plan9")
	assert.Equal(t, Linux, linux.OS)
	assert.Equal(t, "", linux.ExeSuffix)
	assert.Equal(t, "profiles", filepath.Base(linux.UserProfilesDir()))
	assert.Equal(t, "settings.yaml", filepath.Base(linux.SettingsPath()))
}

func TestThreadCount(t *testing.T) {
	assert.GreaterOrEqual(t, CPUCount(), 1)
	assert.Equal(t, max(CPUCount()-1, 0), ThreadCount())
}
