package profile

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// document is the on-disk form of one preset store:
//
//	<videomorph>
//	  <profile name="MP4">
//	    <preset>
//	      <preset_name_en/> <preset_params/> <preset_extension/> <preset_name_es/>
//	    </preset>
//	  </profile>
//	</videomorph>
type document struct {
	XMLName  xml.Name        `xml:"videomorph"`
	Families []familyElement `xml:"profile"`
}

type familyElement struct {
	Name    string          `xml:"name,attr"`
	Presets []presetElement `xml:"preset"`
}

type presetElement struct {
	NameEN    string `xml:"preset_name_en"`
	Params    string `xml:"preset_params"`
	Extension string `xml:"preset_extension"`
	NameES    string `xml:"preset_name_es"`
}

func (p presetElement) profile(family string) Profile {
	return Profile{
		Family:    family,
		Quality:   p.NameEN,
		QualityES: p.NameES,
		Params:    p.Params,
		Extension: p.Extension,
	}
}

func parseDocument(data []byte) (*document, error) {
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *document) validate() error {
	for i, fam := range d.Families {
		if strings.TrimSpace(fam.Name) == "" {
			return fmt.Errorf("%w: profile %d has no name", ErrInvalidDocument, i)
		}
		for j, p := range fam.Presets {
			if strings.TrimSpace(p.NameEN) == "" || strings.TrimSpace(p.Params) == "" || strings.TrimSpace(p.Extension) == "" {
				return fmt.Errorf("%w: profile %q preset %d is incomplete", ErrInvalidDocument, fam.Name, j)
			}
		}
	}
	return nil
}

func (d *document) encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// insert puts p first in its family, or puts a new family first. A preset
// with the same tag in that family is replaced.
func (d *document) insert(p Profile) {
	elem := presetElement{NameEN: p.Quality, Params: p.Params, Extension: p.Extension, NameES: p.QualityES}
	tag, _ := Tag(p.Quality)

	for i := range d.Families {
		fam := &d.Families[i]
		if fam.Name != p.Family {
			continue
		}
		presets := []presetElement{elem}
		for _, existing := range fam.Presets {
			if t, _ := Tag(existing.NameEN); t == tag {
				continue
			}
			presets = append(presets, existing)
		}
		fam.Presets = presets
		return
	}

	d.Families = append([]familyElement{{Name: p.Family, Presets: []presetElement{elem}}}, d.Families...)
}
