// Package profile stores the conversion presets, grouped by family, in two
// layered documents: the shipped defaults and the user's customized set.
package profile

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrBlankFamily     = errors.New("profile family name is blank")
	ErrBlankQuality    = errors.New("quality name is blank")
	ErrBlankParams     = errors.New("preset parameters are blank")
	ErrBadExtension    = errors.New("invalid video file extension")
	ErrUnknownQuality  = errors.New("wrong quality or parameter")
	ErrEmptyTag        = errors.New("cannot derive a tag from an empty quality name")
	ErrPermission      = errors.New("permission denied")
	ErrInvalidDocument = errors.New("invalid profiles document")
)

// videoExtensions are the containers the engine accepts, as input and as
// preset output.
var videoExtensions = []string{
	".mkv", ".ogg", ".mp4", ".mpg", ".dat", ".f4v", ".flv", ".wv",
	".3gp", ".avi", ".webm", ".wmv", ".mov", ".vob", ".ogv", ".ts",
}

// VideoExtensions returns the recognized video file extensions.
func VideoExtensions() []string {
	out := make([]string, len(videoExtensions))
	copy(out, videoExtensions)
	return out
}

// IsVideoExtension reports whether ext (with its leading dot) is a
// recognized video extension, ignoring case.
func IsVideoExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, v := range videoExtensions {
		if v == ext {
			return true
		}
	}
	return false
}

// Profile is an immutable snapshot of one quality preset.
type Profile struct {
	Family    string
	Quality   string // English display name
	QualityES string // Spanish display name
	Params    string
	Extension string
}

// Name returns the display name for locale. Spanish locales get the
// localized name when one exists.
func (p Profile) Name(locale string) string {
	if isSpanish(locale) && p.QualityES != "" {
		return p.QualityES
	}
	return p.Quality
}

func isSpanish(locale string) bool {
	return strings.HasPrefix(strings.ToLower(locale), "es")
}

var tagRe = regexp.MustCompile(`[A-Z][0-9]?`)

// QualityTag derives the bracketed output-name prefix from the quality
// name: its capitals, each with a following digit, or the word initials when
// the name has no capitals.
func (p Profile) QualityTag() (string, error) {
	return Tag(p.Quality)
}

// Tag derives the bracketed tag for a quality name.
func Tag(quality string) (string, error) {
	quality = strings.TrimSpace(quality)
	if quality == "" {
		return "", ErrEmptyTag
	}
	tag := strings.Join(tagRe.FindAllString(quality, -1), "")
	if tag == "" {
		var b strings.Builder
		for _, word := range strings.Fields(quality) {
			r, _ := utf8.DecodeRuneInString(word)
			b.WriteRune(unicode.ToUpper(r))
		}
		tag = b.String()
	}
	if tag == "" {
		return "", ErrEmptyTag
	}
	return "[" + tag + "]-", nil
}
