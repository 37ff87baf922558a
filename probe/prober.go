// Package probe runs the external prober against a media file and collects
// the attributes the conversion engine needs from its key=value output.
package probe

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Section selects which part of the prober output to collect.
type Section int

const (
	Format Section = iota
	Video
	Audio
	Subtitle
)

var sectionKeys = map[Section][]string{
	Format:   {"filename", "nb_streams", "format_name", "format_long_name", "duration", "size", "bit_rate"},
	Video:    {"codec_name", "codec_long_name", "bit_rate", "width", "height"},
	Audio:    {"codec_name", "codec_long_name"},
	Subtitle: {"codec_name", "codec_long_name", "TAG:language"},
}

// args returns the prober flags for the section, without the file.
func (s Section) args() []string {
	switch s {
	case Video:
		return []string{"-show_streams", "-select_streams", "v"}
	case Audio:
		return []string{"-show_streams", "-select_streams", "a"}
	case Subtitle:
		return []string{"-show_streams", "-select_streams", "s"}
	default:
		return []string{"-show_format"}
	}
}

// Info holds the raw string attributes of one media file. Values are never
// coerced; callers parse numerics themselves.
type Info struct {
	Path     string
	Format   map[string]string
	Video    map[string]string
	Audio    map[string]string
	Subtitle map[string]string
}

func emptyInfo(path string) Info {
	return Info{
		Path:     path,
		Format:   map[string]string{},
		Video:    map[string]string{},
		Audio:    map[string]string{},
		Subtitle: map[string]string{},
	}
}

// Duration returns the format duration in seconds, or 0 when it is absent
// or not a positive number.
func (i Info) Duration() float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(i.Format["duration"]), 64)
	if err != nil || d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return d
}

// Valid reports whether the file has a positive numeric duration.
func (i Info) Valid() bool {
	return i.Duration() > 0
}

// Runner executes the prober and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Prober invokes the prober binary at Path.
type Prober struct {
	Path    string
	Timeout time.Duration
	Run     Runner
}

// New returns a Prober for the binary at path.
func New(path string) *Prober {
	return &Prober{Path: path, Timeout: 30 * time.Second, Run: execRunner}
}

// Probe collects the four attribute maps of file. A missing file yields
// empty maps without running the prober.
func (p *Prober) Probe(ctx context.Context, file string) (Info, error) {
	info := emptyInfo(file)
	if _, err := os.Stat(file); err != nil {
		return info, nil
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	for _, section := range []Section{Format, Video, Audio, Subtitle} {
		out, err := p.run(ctx, section, file)
		if err != nil {
			return info, err
		}
		parsed := Parse(section, out)
		switch section {
		case Format:
			info.Format = parsed
		case Video:
			info.Video = parsed
		case Audio:
			info.Audio = parsed
		case Subtitle:
			info.Subtitle = parsed
		}
	}
	return info, nil
}

func (p *Prober) run(ctx context.Context, section Section, file string) ([]byte, error) {
	run := p.Run
	if run == nil {
		run = execRunner
	}
	args := append(section.args(), file)
	out, err := run(ctx, p.Path, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("probe %q: %w", file, ctx.Err())
		}
		// The prober exits non-zero on unreadable media; whatever it printed
		// is still parsed and validity is left to the caller.
		if _, ok := err.(*exec.ExitError); ok {
			return out, nil
		}
		return nil, fmt.Errorf("probe %q: %w", file, err)
	}
	return out, nil
}

// Parse collects the allow-listed keys of section from prober output.
// Only lines containing '=' are considered. For stream sections a key that
// recurs in a later stream is stored as key_N, N being the zero-based
// stream index. Exported for testing without a real prober.
func Parse(section Section, output []byte) map[string]string {
	allowed := make(map[string]bool)
	for _, k := range sectionKeys[section] {
		allowed[k] = true
	}

	result := make(map[string]string)
	stream := -1
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "[STREAM]" {
			stream++
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || !allowed[key] {
			continue
		}
		if _, seen := result[key]; seen && section != Format {
			idx := stream
			if idx < 0 {
				idx = 0
			}
			result[fmt.Sprintf("%s_%d", key, idx)] = value
			continue
		}
		result[key] = value
	}
	return result
}
