// Package codec reads the codec, encoder and decoder listings of the
// encoder binary and answers whether a preset's codecs are installed.
package codec

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Kind is the stream kind a codec applies to.
type Kind int

const (
	Video Kind = iota
	Audio
	Subtitle
)

func (k Kind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Subtitle:
		return "subtitle"
	default:
		return "video"
	}
}

// Listing is the flag that selects one of the encoder's tables.
type Listing string

const (
	Codecs   Listing = "-codecs"
	Encoders Listing = "-encoders"
	Decoders Listing = "-decoders"
)

// Set groups codec names by stream kind.
type Set map[Kind]map[string]bool

// Has reports whether name is listed for kind.
func (s Set) Has(kind Kind, name string) bool {
	return s[kind][name]
}

// Len returns the number of names listed for kind.
func (s Set) Len(kind Kind) int {
	return len(s[kind])
}

// Parse reads the "flags name description" table printed by the encoder.
// The legend above the dashed separator is skipped. A V, A or S in the
// flags, checked in that order, gives the kind.
func Parse(output []byte) Set {
	set := Set{Video: {}, Audio: {}, Subtitle: {}}
	inTable := false
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "---") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		flags, name := fields[0], fields[1]
		switch {
		case strings.Contains(flags, "V"):
			set[Video][name] = true
		case strings.Contains(flags, "A"):
			set[Audio][name] = true
		case strings.Contains(flags, "S"):
			set[Subtitle][name] = true
		}
	}
	return set
}

// Runner executes the encoder and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Query runs binary with the listing flag and parses the table.
func Query(ctx context.Context, run Runner, binary string, listing Listing) (Set, error) {
	if run == nil {
		run = execRunner
	}
	out, err := run(ctx, binary, "-hide_banner", string(listing))
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", binary, listing, err)
	}
	return Parse(out), nil
}

// Availability is what the host can encode: the codec table and the
// encoder table.
type Availability struct {
	Codecs   Set
	Encoders Set
}

// Load queries the codec and encoder tables of binary.
func Load(ctx context.Context, run Runner, binary string) (*Availability, error) {
	codecs, err := Query(ctx, run, binary, Codecs)
	if err != nil {
		return nil, err
	}
	encoders, err := Query(ctx, run, binary, Encoders)
	if err != nil {
		return nil, err
	}
	return &Availability{Codecs: codecs, Encoders: encoders}, nil
}

// Available reports whether name is usable for kind. Stream copy needs no
// codec.
func (a *Availability) Available(kind Kind, name string) bool {
	if name == "copy" {
		return true
	}
	return a.Codecs.Has(kind, name) || a.Encoders.Has(kind, name)
}

var codecFlags = map[Kind]*regexp.Regexp{
	Video:    regexp.MustCompile(`-(?:vcodec|c:v|codec:v)\s+([^ ]+)`),
	Audio:    regexp.MustCompile(`-(?:acodec|c:a|codec:a)\s+([^ ]+)`),
	Subtitle: regexp.MustCompile(`-(?:scodec|c:s|codec:s)\s+([^ ]+)`),
}

// Missing is a codec referenced by a preset that the host lacks.
type Missing struct {
	Kind Kind
	Name string
}

func (m Missing) String() string {
	return fmt.Sprintf("%s codec %q", m.Kind, m.Name)
}

// Referenced returns the codec named for kind in an argument string.
func Referenced(params string, kind Kind) (string, bool) {
	m := codecFlags[kind].FindStringSubmatch(params)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Supports checks every codec named in params. A nil Availability accepts
// everything, so presets stay visible when the listing could not be read.
func (a *Availability) Supports(params string) (bool, *Missing) {
	if a == nil {
		return true, nil
	}
	for _, kind := range []Kind{Video, Audio, Subtitle} {
		name, ok := Referenced(params, kind)
		if !ok {
			continue
		}
		if !a.Available(kind, name) {
			return false, &Missing{Kind: kind, Name: name}
		}
	}
	return true, nil
}
