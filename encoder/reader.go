package encoder

import (
	"regexp"
	"strconv"
	"strings"
)

// LibraryError is a fatal misconfiguration reported by the encoder binary,
// identified by one of the known phrases in its output.
type LibraryError string

func (e LibraryError) Error() string {
	return string(e)
}

// fatalPhrases are matched in order; the first one present wins.
var fatalPhrases = []LibraryError{
	"Unknown encoder",
	"Unrecognized option",
	"Invalid argument",
}

var (
	timeRe    = regexp.MustCompile(`time=([0-9.:]+)\s`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([0-9]*\.?[0-9]+\s*[a-zA-Z]*/s)`)
)

// Reader holds the latest chunk of encoder output and extracts progress
// tokens from it. Each Update replaces the buffer; reads are idempotent
// until the next Update.
type Reader struct {
	output string
}

// NewReader returns an empty Reader.
func NewReader() *Reader {
	return &Reader{}
}

// Update stores text as the current buffer.
func (r *Reader) Update(text string) {
	r.output = text
}

// Output returns the current buffer.
func (r *Reader) Output() string {
	return r.output
}

// HasTime reports whether the buffer carries a time= token.
func (r *Reader) HasTime() bool {
	return timeRe.MatchString(r.output)
}

// TimeRead returns the elapsed media seconds of the last time= token in the
// buffer.
func (r *Reader) TimeRead() (float64, bool) {
	matches := timeRe.FindAllStringSubmatch(r.output, -1)
	if len(matches) == 0 {
		return 0, false
	}
	return parseClock(matches[len(matches)-1][1])
}

// BitrateRead returns the value and unit of the last bitrate= token, e.g.
// "1234.5kbits/s".
func (r *Reader) BitrateRead() (string, bool) {
	matches := bitrateRe.FindAllStringSubmatch(r.output, -1)
	if len(matches) == 0 {
		return "", false
	}
	return strings.Join(strings.Fields(matches[len(matches)-1][1]), ""), true
}

// CatchErrors returns the first known fatal phrase found in the buffer.
func (r *Reader) CatchErrors() (LibraryError, bool) {
	for _, phrase := range fatalPhrases {
		if strings.Contains(r.output, string(phrase)) {
			return phrase, true
		}
	}
	return "", false
}

// parseClock folds a colon separated clock ("HH:MM:SS.ms", "MM:SS.ms" or
// "SS.ms") into seconds.
func parseClock(token string) (float64, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false
	}
	var seconds float64
	for _, part := range strings.Split(token, ":") {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, false
		}
		seconds = seconds*60 + v
	}
	return seconds, true
}
