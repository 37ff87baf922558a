package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
)

// ErrBinaryNotFound is returned when neither the bundled directory nor the
// search path holds a required binary.
var ErrBinaryNotFound = errors.New("binary not found")

// OS identifies the host family the platform paths are chosen for.
type OS string

const (
	Linux   OS = "linux"
	Darwin  OS = "darwin"
	Windows OS = "windows"
)

// Platform holds the host-dependent locations, chosen once at startup.
type Platform struct {
	OS OS
	// ConfigDir holds settings.yaml and the user profiles.
	ConfigDir string
	// ProfilesDir holds the installed profile documents.
	ProfilesDir string
	// BinDir is searched for a bundled encoder before the PATH.
	BinDir    string
	ExeSuffix string
}

// DetectPlatform returns the Platform for the running host.
func DetectPlatform() Platform {
	return ForOS(runtime.GOOS)
}

// ForOS returns the Platform for goos. Unknown systems get the Linux
// layout.
func ForOS(goos string) Platform {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := executableDir()

	switch OS(goos) {
	case Windows:
		programFiles := os.Getenv("ProgramFiles")
		if programFiles == "" {
			programFiles = base
		}
		return Platform{
			OS:          Windows,
			ConfigDir:   filepath.Join(home, ".videomorph"),
			ProfilesDir: filepath.Join(programFiles, "VideoMorph", "profiles"),
			BinDir:      filepath.Join(base, "ffmpeg", "bin"),
			ExeSuffix:   ".exe",
		}
	case Darwin:
		return Platform{
			OS:          Darwin,
			ConfigDir:   filepath.Join(home, ".videomorph"),
			ProfilesDir: filepath.Join(base, "..", "Resources", "profiles"),
			BinDir:      filepath.Join(base, "ffmpeg"),
		}
	default:
		return Platform{
			OS:          Linux,
			ConfigDir:   filepath.Join(home, ".videomorph"),
			ProfilesDir: "/usr/share/videomorph/profiles",
			BinDir:      filepath.Join(base, "ffmpeg"),
		}
	}
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// UserProfilesDir is where the editable profile documents live.
func (p Platform) UserProfilesDir() string {
	return filepath.Join(p.ConfigDir, "profiles")
}

// SettingsPath is the default settings file.
func (p Platform) SettingsPath() string {
	return filepath.Join(p.ConfigDir, "settings.yaml")
}

// LookupBinary resolves name in BinDir first, then on the PATH.
func (p Platform) LookupBinary(name string) (string, error) {
	if p.BinDir != "" {
		local := filepath.Join(p.BinDir, name+p.ExeSuffix)
		if info, err := os.Stat(local); err == nil && !info.IsDir() {
			return local, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, name)
	}
	return path, nil
}

// CPUCount returns the number of logical cores.
func CPUCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// ThreadCount is the encoder thread count: one core is left to the rest of
// the system.
func ThreadCount() int {
	return max(CPUCount()-1, 0)
}
