package profile

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/videomorph-dev/videomorph-sub000/codec"
	"github.com/videomorph-dev/videomorph-sub000/logging"
)

const (
	DefaultFile    = "default.xml"
	CustomizedFile = "customized.xml"
)

// Attribute names accepted by Store.Attribute.
const (
	AttrQuality   = "preset_name_en"
	AttrParams    = "preset_params"
	AttrExtension = "preset_extension"
	AttrQualityES = "preset_name_es"
)

//go:embed profiles/*.xml
var shipped embed.FS

// Options configures a Store.
type Options struct {
	// Dir is the user-writable profiles directory.
	Dir string
	// SystemDir holds the installed documents. The copies built into the
	// binary are used when it is empty or lacks a document.
	SystemDir string
	// Codecs filters the presets offered by ListQualities. Nil offers all.
	Codecs *codec.Availability
	Logger *logging.Logger
}

// Family is one entry of ListQualities.
type Family struct {
	Name      string
	Qualities []string
}

// Store holds the default and customized documents in memory and persists
// mutations of the customized one.
type Store struct {
	mu        sync.RWMutex
	dir       string
	systemDir string
	codecs    *codec.Availability
	log       *logging.Logger
	def       *document
	custom    *document
}

// Open prepares the user directory, refreshing stale copies of the shipped
// documents, and loads both stores.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("profiles directory is required")
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	s := &Store{
		dir:       opts.Dir,
		systemDir: opts.SystemDir,
		codecs:    opts.Codecs,
		log:       log.WithComponent("profile"),
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, permissionErr(fmt.Errorf("create profiles directory: %w", err))
	}
	for _, name := range []string{DefaultFile, CustomizedFile} {
		if s.userFileIsCurrent(name) {
			continue
		}
		s.log.Infof("installing %s into %s", name, s.dir)
		if err := s.restore(name); err != nil {
			return nil, err
		}
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the user profiles directory.
func (s *Store) Dir() string {
	return s.dir
}

// SetAvailability replaces the codec filter.
func (s *Store) SetAvailability(a *codec.Availability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codecs = a
}

// Reload re-reads both documents from disk, restoring any that is corrupt.
func (s *Store) Reload() error {
	def, err := s.load(DefaultFile)
	if err != nil {
		return err
	}
	custom, err := s.load(CustomizedFile)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.def, s.custom = def, custom
	s.mu.Unlock()
	return nil
}

func (s *Store) userPath(name string) string {
	return filepath.Join(s.dir, name)
}

// userFileIsCurrent is false when the user copy is missing, empty or older
// than the installed document.
func (s *Store) userFileIsCurrent(name string) bool {
	user, err := os.Stat(s.userPath(name))
	if err != nil || user.Size() == 0 {
		return false
	}
	if s.systemDir == "" {
		return true
	}
	sys, err := os.Stat(filepath.Join(s.systemDir, name))
	if err != nil {
		return true
	}
	return !sys.ModTime().After(user.ModTime())
}

func (s *Store) shippedDocument(name string) ([]byte, error) {
	if s.systemDir != "" {
		data, err := os.ReadFile(filepath.Join(s.systemDir, name))
		if err == nil {
			return data, nil
		}
	}
	return shipped.ReadFile("profiles/" + name)
}

// restore overwrites the user copy of name with the shipped document.
func (s *Store) restore(name string) error {
	data, err := s.shippedDocument(name)
	if err != nil {
		return fmt.Errorf("read shipped %s: %w", name, err)
	}
	return writeFileAtomic(s.userPath(name), data)
}

// load parses the user copy of name. A corrupt document is silently
// replaced by the shipped one and parsed again.
func (s *Store) load(name string) (*document, error) {
	data, err := os.ReadFile(s.userPath(name))
	if err == nil {
		doc, perr := parseDocument(data)
		if perr == nil {
			return doc, nil
		}
		err = perr
	}
	s.log.WarnWithErr(fmt.Sprintf("restoring corrupt %s", name), err)
	if err := s.restore(name); err != nil {
		return nil, err
	}
	data, err = os.ReadFile(s.userPath(name))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return parseDocument(data)
}

type mergedFamily struct {
	name    string
	presets []Profile
}

func familyKey(family, tag string) string {
	return family + "\x00" + tag
}

// merged returns the default families followed by the customized ones. A
// customized preset with the same family and tag as a default one takes its
// place; other customized presets are appended to their family.
// Must hold at least the read lock.
func (s *Store) merged() []mergedFamily {
	overrides := make(map[string]Profile)
	for _, fam := range s.custom.Families {
		for _, p := range fam.Presets {
			if tag, err := Tag(p.NameEN); err == nil {
				if _, dup := overrides[familyKey(fam.Name, tag)]; !dup {
					overrides[familyKey(fam.Name, tag)] = p.profile(fam.Name)
				}
			}
		}
	}

	var out []mergedFamily
	index := make(map[string]int)
	add := func(p Profile) {
		i, ok := index[p.Family]
		if !ok {
			i = len(out)
			index[p.Family] = i
			out = append(out, mergedFamily{name: p.Family})
		}
		out[i].presets = append(out[i].presets, p)
	}

	used := make(map[string]bool)
	for _, fam := range s.def.Families {
		for _, p := range fam.Presets {
			tag, _ := Tag(p.NameEN)
			key := familyKey(fam.Name, tag)
			if o, ok := overrides[key]; ok {
				if !used[key] {
					add(o)
					used[key] = true
				}
				continue
			}
			add(p.profile(fam.Name))
		}
	}
	for _, fam := range s.custom.Families {
		for _, p := range fam.Presets {
			tag, _ := Tag(p.NameEN)
			key := familyKey(fam.Name, tag)
			if used[key] {
				continue
			}
			used[key] = true
			add(p.profile(fam.Name))
		}
	}
	return out
}

// ListQualities returns the quality names per family, default families
// first. Presets naming a codec the host lacks are hidden, and a family
// left empty is skipped.
func (s *Store) ListQualities(locale string) []Family {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Family
	for _, fam := range s.merged() {
		var names []string
		for _, p := range fam.presets {
			if ok, missing := s.codecs.Supports(p.Params); !ok {
				s.log.Zerolog().Debug().
					Str("family", fam.name).
					Str("quality", p.Quality).
					Str("missing", missing.String()).
					Msg("preset hidden: codec not available")
				continue
			}
			names = append(names, p.Name(locale))
		}
		if len(names) == 0 {
			continue
		}
		out = append(out, Family{Name: fam.name, Qualities: names})
	}
	return out
}

// Families returns the family names in listing order, unfiltered.
func (s *Store) Families() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for _, fam := range s.merged() {
		names = append(names, fam.name)
	}
	return names
}

// Lookup returns the preset whose English or localized name is quality.
func (s *Store) Lookup(quality string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, fam := range s.merged() {
		for _, p := range fam.presets {
			if p.Quality == quality || p.QualityES == quality {
				return p, nil
			}
		}
	}
	// A default preset replaced by a customized one is still reachable by
	// its own name.
	for _, fam := range s.def.Families {
		for _, p := range fam.Presets {
			if p.NameEN != quality && p.NameES != quality {
				continue
			}
			tag, _ := Tag(p.NameEN)
			for _, m := range s.merged() {
				if m.name != fam.Name {
					continue
				}
				for _, o := range m.presets {
					if t, _ := Tag(o.Quality); t == tag {
						return o, nil
					}
				}
			}
		}
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrUnknownQuality, quality)
}

// Attribute returns one field of the preset named quality.
func (s *Store) Attribute(quality, attr string) (string, error) {
	p, err := s.Lookup(quality)
	if err != nil {
		return "", err
	}
	switch attr {
	case AttrQuality:
		return p.Quality, nil
	case AttrParams:
		return p.Params, nil
	case AttrExtension:
		return p.Extension, nil
	case AttrQualityES:
		return p.QualityES, nil
	}
	return "", fmt.Errorf("%w: attribute %q", ErrUnknownQuality, attr)
}

// Add validates and stores a new preset in the customized document. The
// family name is upper-cased and the extension lower-cased.
func (s *Store) Add(family, quality, params, extension string) error {
	family = strings.ToUpper(strings.TrimSpace(family))
	quality = strings.TrimSpace(quality)
	params = strings.TrimSpace(params)
	extension = strings.TrimSpace(extension)

	switch {
	case family == "":
		return ErrBlankFamily
	case quality == "":
		return ErrBlankQuality
	case params == "":
		return ErrBlankParams
	case !strings.HasPrefix(extension, ".") || !IsVideoExtension(extension):
		return fmt.Errorf("%w: %q", ErrBadExtension, extension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.custom.clone()
	doc.insert(Profile{
		Family:    family,
		Quality:   quality,
		QualityES: quality,
		Params:    params,
		Extension: strings.ToLower(extension),
	})
	data, err := doc.encode()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.userPath(CustomizedFile), data); err != nil {
		return err
	}
	s.custom = doc
	s.log.Infof("added preset %q to family %s", quality, family)
	return nil
}

// Export copies the customized document into dir.
func (s *Store) Export(dir string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.userPath(CustomizedFile))
	if err != nil {
		return "", permissionErr(fmt.Errorf("read customized profiles: %w", err))
	}
	dst := filepath.Join(dir, CustomizedFile)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", permissionErr(fmt.Errorf("export profiles: %w", err))
	}
	return dst, nil
}

// Import replaces the customized document with the one at src, after
// checking that it parses.
func (s *Store) Import(src string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return permissionErr(fmt.Errorf("import profiles: %w", err))
	}
	doc, err := parseDocument(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.userPath(CustomizedFile), data); err != nil {
		return err
	}
	s.custom = doc
	return nil
}

// RestoreDefaults overwrites both user documents with the shipped ones.
func (s *Store) RestoreDefaults() error {
	for _, name := range []string{DefaultFile, CustomizedFile} {
		if err := s.restore(name); err != nil {
			return err
		}
	}
	return s.Reload()
}

func (d *document) clone() *document {
	out := &document{XMLName: d.XMLName, Families: make([]familyElement, len(d.Families))}
	for i, fam := range d.Families {
		out.Families[i] = familyElement{Name: fam.Name, Presets: append([]presetElement(nil), fam.Presets...)}
	}
	return out
}

func permissionErr(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return err
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return permissionErr(fmt.Errorf("write %s: %w", path, err))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return permissionErr(fmt.Errorf("write %s: %w", path, err))
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return permissionErr(fmt.Errorf("write %s: %w", path, err))
	}
	return nil
}
