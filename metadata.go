package iff

import (
	"time"

	"golang.org/x/text/encoding/charmap"
)

// Metadata text keys.
const (
	MetaAuthor       = "Author"
	MetaCopyright    = "Copyright"
	MetaCreationDate = "CreationDate"
	MetaDescription  = "Description"
	MetaSoftware     = "Software"
	MetaTitle        = "Title"
)

// Metadata carries the side-channel information found next to the pixel
// data. Embedded ICC, EXIF and XMP payloads are passed through without
// interpretation.
type Metadata struct {
	// Text holds the annotation chunks, keyed by the Meta* constants.
	Text map[string]string

	// Resolution, converted from the DPI chunk. Zero when absent.
	DotsPerMeterX int
	DotsPerMeterY int

	ICCProfile     []byte
	ICCDescription string
	Exif           []byte
	XMP            string

	// Warnings lists data-quality issues that were recovered during the
	// decode instead of aborting it.
	Warnings []string
}

func (m *Metadata) setText(key, value string) {
	if value == "" {
		return
	}
	if m.Text == nil {
		m.Text = map[string]string{}
	}
	if _, ok := m.Text[key]; ok {
		return // first occurrence wins
	}
	m.Text[key] = value
}

// textValue decodes a chunk payload as Latin-1, the character set of the
// classic annotation chunks.
func textValue(c *Chunk) string {
	if c == nil || len(c.data) == 0 {
		return ""
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(c.data)
	if err != nil {
		return ""
	}
	return string(s)
}

// dateValue normalizes a DATE chunk to ISO-8601 when it parses as one of
// the observed timestamp spellings, otherwise it is kept verbatim.
func dateValue(c *Chunk) string {
	raw := textValue(c)
	if raw == "" {
		return ""
	}
	for _, layout := range []string{time.ANSIC, time.UnixDate, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(time.RFC3339)
		}
	}
	return raw
}

// readMetadata walks a form's chunk tree and merges the annotation,
// resolution and embedded-blob chunks. The first occurrence of each item
// wins when a file carries duplicates.
func readMetadata(form *Chunk, meta *Metadata) {
	chunks := []*Chunk{form}

	if c := firstChunk(chunks, annoTag); c != nil {
		meta.setText(MetaDescription, textValue(c))
	}
	if c := firstChunk(chunks, authTag); c != nil {
		meta.setText(MetaAuthor, textValue(c))
	}
	if c := firstChunk(chunks, dateTag); c != nil {
		meta.setText(MetaCreationDate, dateValue(c))
	}
	if c := firstChunk(chunks, copyTag); c != nil {
		meta.setText(MetaCopyright, textValue(c))
	}
	if c := firstChunk(chunks, nameTag); c != nil {
		meta.setText(MetaTitle, textValue(c))
	}
	if c := firstChunk(chunks, versTag); c != nil {
		meta.setText(MetaSoftware, textValue(c))
	}

	if c := firstChunk(chunks, exifTag); c != nil && len(c.data) > 0 && meta.Exif == nil {
		meta.Exif = append([]byte(nil), c.data...)
	}
	if c := firstChunk(chunks, xmp0Tag); c != nil && meta.XMP == "" {
		meta.XMP = textValue(c)
	}
	if c := firstChunk(chunks, iccpTag); c != nil && len(c.data) > 0 && meta.ICCProfile == nil {
		meta.ICCProfile = append([]byte(nil), c.data...)
		if n := firstChunk(chunks, iccnTag); n != nil {
			meta.ICCDescription = textValue(n)
		}
	}

	if dpi := dpiOf(firstChunk(chunks, dpiTag)); dpi.valid() && meta.DotsPerMeterX == 0 {
		meta.DotsPerMeterX = dpi.dotsPerMeterX()
		meta.DotsPerMeterY = dpi.dotsPerMeterY()
	}
}
