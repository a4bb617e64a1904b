package iff

import (
	"encoding/binary"
	"image/color"
	"math"
)

// Typed decoders for the classic ILBM chunk family. Each is a read-only
// view over a chunk's cached payload; accessors return zero values when
// the underlying chunk does not validate.

// BMHD compression modes.
const (
	compressionNone = 0
	compressionRLE  = 1
)

// BMHD masking modes.
const (
	maskNone        = 0
	maskHasMask     = 1
	maskTransparent = 2
	maskLasso       = 3
)

// bitmapHeader is the BMHD view: the geometry and encoding of a classic
// planar image.
type bitmapHeader struct {
	c *Chunk
}

func bmhdOf(c *Chunk) *bitmapHeader {
	if c == nil || c.tag != bmhdTag {
		return nil
	}
	return &bitmapHeader{c}
}

func (h *bitmapHeader) valid() bool {
	return h != nil && h.c.size >= 20 && len(h.c.data) >= 20
}

func (h *bitmapHeader) width() int {
	if !h.valid() {
		return 0
	}
	return int(binary.BigEndian.Uint16(h.c.data[0:2]))
}

func (h *bitmapHeader) height() int {
	if !h.valid() {
		return 0
	}
	return int(binary.BigEndian.Uint16(h.c.data[2:4]))
}

func (h *bitmapHeader) left() int {
	if !h.valid() {
		return 0
	}
	return int(int16(binary.BigEndian.Uint16(h.c.data[4:6])))
}

func (h *bitmapHeader) top() int {
	if !h.valid() {
		return 0
	}
	return int(int16(binary.BigEndian.Uint16(h.c.data[6:8])))
}

func (h *bitmapHeader) bitplanes() int {
	if !h.valid() {
		return 0
	}
	return int(h.c.data[8])
}

func (h *bitmapHeader) masking() int {
	if !h.valid() {
		return 0
	}
	return int(h.c.data[9])
}

func (h *bitmapHeader) compression() int {
	if !h.valid() {
		return compressionNone
	}
	return int(h.c.data[10])
}

func (h *bitmapHeader) transparency() int {
	if !h.valid() {
		return 0
	}
	return int(int16(binary.BigEndian.Uint16(h.c.data[12:14])))
}

func (h *bitmapHeader) xAspectRatio() int {
	if !h.valid() {
		return 0
	}
	return int(h.c.data[14])
}

func (h *bitmapHeader) yAspectRatio() int {
	if !h.valid() {
		return 0
	}
	return int(h.c.data[15])
}

func (h *bitmapHeader) pageWidth() int {
	if !h.valid() {
		return 0
	}
	return int(binary.BigEndian.Uint16(h.c.data[16:18]))
}

func (h *bitmapHeader) pageHeight() int {
	if !h.valid() {
		return 0
	}
	return int(binary.BigEndian.Uint16(h.c.data[18:20]))
}

// rowLen returns the byte length of one plane row: rows are padded to a
// 16-bit word boundary.
func (h *bitmapHeader) rowLen() int {
	return ((h.width() + 15) / 16) * 2
}

// planeRows returns the number of plane rows stored per scanline; masking
// mode 1 interleaves one extra mask plane.
func (h *bitmapHeader) planeRows() int {
	n := h.bitplanes()
	if h.masking() == maskHasMask {
		n++
	}
	return n
}

// colorMap is the CMAP/CMYK view. CMAP entries are 3-byte RGB triples;
// CMYK entries are 4 bytes and get converted to RGB on access.
type colorMap struct {
	c    *Chunk
	cmyk bool
}

func cmapOf(c *Chunk) *colorMap {
	if c == nil {
		return nil
	}
	switch c.tag {
	case cmapTag:
		return &colorMap{c: c}
	case cmykTag:
		return &colorMap{c: c, cmyk: true}
	}
	return nil
}

func (m *colorMap) entrySize() int {
	if m.cmyk {
		return 4
	}
	return 3
}

func (m *colorMap) count() int {
	if m == nil {
		return 0
	}
	return len(m.c.data) / m.entrySize()
}

func (m *colorMap) entry(i int) color.NRGBA {
	d := m.c.data[i*m.entrySize():]
	if !m.cmyk {
		return color.NRGBA{R: d[0], G: d[1], B: d[2], A: 0xFF}
	}
	cy, mg, ye, k := int(d[0]), int(d[1]), int(d[2]), int(d[3])
	return color.NRGBA{
		R: uint8((255 - cy) * (255 - k) / 255),
		G: uint8((255 - mg) * (255 - k) / 255),
		B: uint8((255 - ye) * (255 - k) / 255),
		A: 0xFF,
	}
}

// palette returns the color table. With halfbrite set, the table is
// doubled and the upper half holds each color at half intensity, matching
// the Extra-HalfBrite convention of "index + palette size means half
// brightness".
func (m *colorMap) palette(halfbrite bool) color.Palette {
	if m == nil {
		return nil
	}
	n := m.count()
	pal := make(color.Palette, 0, 2*n)
	for i := 0; i < n; i++ {
		pal = append(pal, m.entry(i))
	}
	if halfbrite {
		for i := 0; i < n; i++ {
			e := m.entry(i)
			pal = append(pal, color.NRGBA{R: e.R / 2, G: e.G / 2, B: e.B / 2, A: 0xFF})
		}
	}
	return pal
}

// CAMG mode bits.
const (
	modeLoResLace uint32 = 0x0004
	modeHalfBrite uint32 = 0x0080
	modeLoResDpf  uint32 = 0x0400
	modeHAM       uint32 = 0x0800
	modeHiRes     uint32 = 0x8000
)

// modeFlags is the CAMG view: the Amiga display mode word.
type modeFlags struct {
	c *Chunk
}

func camgOf(c *Chunk) *modeFlags {
	if c == nil || c.tag != camgTag {
		return nil
	}
	return &modeFlags{c}
}

func (f *modeFlags) valid() bool {
	return f != nil && f.c.size == 4 && len(f.c.data) == 4
}

func (f *modeFlags) modes() uint32 {
	if !f.valid() {
		return 0
	}
	return binary.BigEndian.Uint32(f.c.data)
}

// effectiveModes returns the mode bits that drive pixel reconstruction.
// Files without a CAMG chunk but with 6 bitplanes are assumed to be HAM;
// you'll probably be right.
func effectiveModes(h *bitmapHeader, camg *modeFlags) uint32 {
	if camg.valid() {
		return camg.modes() & (modeHAM | modeHalfBrite)
	}
	if h.bitplanes() == 6 {
		return modeHAM
	}
	return 0
}

// resolution is the "DPI " view.
type resolution struct {
	c *Chunk
}

func dpiOf(c *Chunk) *resolution {
	if c == nil || c.tag != dpiTag {
		return nil
	}
	return &resolution{c}
}

func (d *resolution) valid() bool {
	return d != nil && len(d.c.data) >= 4 && d.dpiX() != 0 && d.dpiY() != 0
}

func (d *resolution) dpiX() int {
	if d == nil || len(d.c.data) < 4 {
		return 0
	}
	return int(binary.BigEndian.Uint16(d.c.data[0:2]))
}

func (d *resolution) dpiY() int {
	if d == nil || len(d.c.data) < 4 {
		return 0
	}
	return int(binary.BigEndian.Uint16(d.c.data[2:4]))
}

func (d *resolution) dotsPerMeterX() int {
	return int(math.Round(float64(d.dpiX()) / 25.4 * 1000))
}

func (d *resolution) dotsPerMeterY() int {
	return int(math.Round(float64(d.dpiY()) / 25.4 * 1000))
}
