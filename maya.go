package iff

import (
	"encoding/binary"
	"image"
)

// Maya (FOR4 CIMG/TBMP) chunk decoders. The dialect shares the IFF
// framing but aligns to 4 bytes and stores the image as a grid of
// independently compressed tiles, bottom-up.

// TBHD flag bits.
const (
	tbhdRGB     uint32 = 0x01
	tbhdAlpha   uint32 = 0x02
	tbhdZBuffer uint32 = 0x04
	tbhdBlack   uint32 = 0x10

	tbhdRGBA = tbhdRGB | tbhdAlpha
)

// tileHeader is the TBHD view: canvas geometry, channel layout and the
// compression hint for the tiles that follow.
type tileHeader struct {
	c *Chunk
}

func tbhdOf(c *Chunk) *tileHeader {
	if c == nil || c.tag != tbhdTag {
		return nil
	}
	return &tileHeader{c}
}

func (h *tileHeader) valid() bool {
	if h == nil {
		return false
	}
	return (h.c.size == 24 || h.c.size == 32) && len(h.c.data) >= 24
}

func (h *tileHeader) width() int {
	if !h.valid() {
		return 0
	}
	return int(int32(binary.BigEndian.Uint32(h.c.data[0:4])))
}

func (h *tileHeader) height() int {
	if !h.valid() {
		return 0
	}
	return int(int32(binary.BigEndian.Uint32(h.c.data[4:8])))
}

func (h *tileHeader) left() int {
	if h == nil || h.c.size != 32 || len(h.c.data) < 32 {
		return 0
	}
	return int(int32(binary.BigEndian.Uint32(h.c.data[24:28])))
}

func (h *tileHeader) top() int {
	if h == nil || h.c.size != 32 || len(h.c.data) < 32 {
		return 0
	}
	return int(int32(binary.BigEndian.Uint32(h.c.data[28:32])))
}

func (h *tileHeader) flags() uint32 {
	if !h.valid() {
		return 0
	}
	return binary.BigEndian.Uint32(h.c.data[12:16])
}

// bpc returns the bytes per channel, 1 or 2.
func (h *tileHeader) bpc() int {
	if !h.valid() {
		return 0
	}
	if binary.BigEndian.Uint16(h.c.data[16:18]) != 0 {
		return 2
	}
	return 1
}

// channels returns the stored channel count; 0 means a layout the
// reconstructor does not support (Z buffers, black-only).
func (h *tileHeader) channels() int {
	switch h.flags() {
	case tbhdRGBA:
		return 4
	case tbhdRGB:
		return 3
	}
	return 0
}

func (h *tileHeader) tileCount() int {
	if !h.valid() {
		return 0
	}
	return int(binary.BigEndian.Uint16(h.c.data[18:20]))
}

func (h *tileHeader) compression() int {
	if !h.valid() {
		return compressionNone
	}
	return int(binary.BigEndian.Uint32(h.c.data[20:24]))
}

// tile is the RGBA chunk view: one rectangular sub-region of the canvas.
type tile struct {
	c *Chunk
}

func tileOf(c *Chunk) *tile {
	if c == nil || c.tag != rgbaTag {
		return nil
	}
	return &tile{c}
}

func (t *tile) valid() bool {
	return t != nil && t.c.size >= 8 && t.c.tiles.valid
}

// bounds returns the tile rectangle in canvas coordinates. The stored
// coordinates are inclusive, so the size is (x1-x0+1, y1-y0+1).
func (t *tile) bounds() image.Rectangle {
	if !t.valid() {
		return image.Rectangle{}
	}
	b := t.c.tiles
	return image.Rect(b.x0, b.y0, b.x1+1, b.y1+1)
}

// compressed reports whether the tile data is actually compressed. The
// header's compression field is only a hint naming the algorithm; a tile
// is compressed if and only if its payload (minus the 8 bounds bytes) is
// smaller than the raw pixel size.
func (t *tile) compressed(h *tileHeader) bool {
	if !t.valid() || !h.valid() {
		return false
	}
	sz := t.bounds().Size()
	raw := int64(h.channels()) * int64(sz.X) * int64(sz.Y) * int64(h.bpc())
	return raw > int64(t.c.size)-8
}

// tileDecoder streams one channel-row at a time out of a compressed tile.
// Each channel (and, for 16-bit data, each high/low byte half) is an
// independent RLE sub-stream; the whole channel plane is decompressed on
// first demand and rows are served from the buffer.
type tileDecoder struct {
	width  int
	height int
	buf    []byte
}

func (d *tileDecoder) readStride(r *chunkReader) ([]byte, error) {
	if d.width == 0 {
		return nil, ErrInvalidTile
	}
	for len(d.buf) < d.width {
		out := make([]byte, d.width*d.height)
		if n := mayaRLEDecompress(r, out); n != int64(len(out)) {
			return nil, ErrTruncatedStream
		}
		d.buf = append(d.buf, out...)
	}
	stride := d.buf[:d.width]
	d.buf = d.buf[d.width:]
	return stride, nil
}

// decodeTile reads the tile's pixel data into an NRGBA (1 byte per
// channel) or NRGBA64 (2 bytes per channel) image of the tile's size.
func (t *tile) decodeTile(r *chunkReader, h *tileHeader) (image.Image, error) {
	if !t.valid() || !h.valid() {
		return nil, ErrInvalidTile
	}
	// Skip the 4 uint16 bounds that prefix the pixel data.
	if err := t.c.seek(r, 8); err != nil {
		return nil, err
	}

	if t.compressed(h) {
		if h.compression() != compressionRLE {
			return nil, ErrUnsupportedVariant
		}
		return t.compressedTile(r, h)
	}
	return t.rawTile(r, h)
}

// compressedTile reconstructs a tile whose channels are stored as
// independent RLE streams. The channel storage order is the reverse of
// the output order; for 16-bit data the high bytes of every channel come
// first, then the low bytes.
func (t *tile) compressedTile(r *chunkReader, h *tileHeader) (image.Image, error) {
	sz := t.bounds().Size()
	cs := h.channels()
	dec := &tileDecoder{width: sz.X, height: sz.Y}

	if h.bpc() == 1 {
		img := image.NewNRGBA(image.Rect(0, 0, sz.X, sz.Y))
		if cs < 4 {
			fillAlpha8(img.Pix)
		}
		for c := 0; c < cs; c++ {
			for y := 0; y < sz.Y; y++ {
				stride, err := dec.readStride(r)
				if err != nil {
					return nil, err
				}
				row := img.Pix[y*img.Stride:]
				for x := 0; x < sz.X; x++ {
					row[x*4+cs-c-1] = stride[x]
				}
			}
		}
		return img, nil
	}

	img := image.NewNRGBA64(image.Rect(0, 0, sz.X, sz.Y))
	if cs < 4 {
		// Alpha on 64-bit images must be opaque.
		fillAlpha16(img.Pix)
	}
	for c := 0; c < cs*2; c++ {
		// NRGBA64 pixels are big-endian, so sub-stream c carries byte
		// c/cs (0 = high) of channel cs-1-(c%cs).
		byteIdx := c / cs
		ch := cs - 1 - c%cs
		for y := 0; y < sz.Y; y++ {
			stride, err := dec.readStride(r)
			if err != nil {
				return nil, err
			}
			row := img.Pix[y*img.Stride:]
			for x := 0; x < sz.X; x++ {
				row[x*8+ch*2+byteIdx] = stride[x]
			}
		}
	}
	return img, nil
}

// rawTile reconstructs an uncompressed tile: rows of channel-interleaved
// pixels, channel order reversed relative to the output.
func (t *tile) rawTile(r *chunkReader, h *tileHeader) (image.Image, error) {
	sz := t.bounds().Size()
	cs := h.channels()

	if h.bpc() == 1 {
		img := image.NewNRGBA(image.Rect(0, 0, sz.X, sz.Y))
		if cs < 4 {
			fillAlpha8(img.Pix)
		}
		line := make([]byte, sz.X*cs)
		for y := 0; y < sz.Y; y++ {
			if err := r.readFull(line); err != nil {
				return nil, err
			}
			row := img.Pix[y*img.Stride:]
			for x := 0; x < sz.X; x++ {
				for c := 0; c < cs; c++ {
					row[x*4+cs-c-1] = line[x*cs+c]
				}
			}
		}
		return img, nil
	}

	img := image.NewNRGBA64(image.Rect(0, 0, sz.X, sz.Y))
	if cs < 4 {
		fillAlpha16(img.Pix)
	}
	line := make([]byte, sz.X*cs*2)
	for y := 0; y < sz.Y; y++ {
		if err := r.readFull(line); err != nil {
			return nil, err
		}
		row := img.Pix[y*img.Stride:]
		for x := 0; x < sz.X; x++ {
			for c := 0; c < cs; c++ {
				// Both source and NRGBA64 are big-endian.
				row[x*8+(cs-c-1)*2] = line[(x*cs+c)*2]
				row[x*8+(cs-c-1)*2+1] = line[(x*cs+c)*2+1]
			}
		}
	}
	return img, nil
}

func fillAlpha8(pix []byte) {
	for i := 3; i < len(pix); i += 4 {
		pix[i] = 0xFF
	}
}

func fillAlpha16(pix []byte) {
	for i := 6; i < len(pix); i += 8 {
		pix[i] = 0xFF
		pix[i+1] = 0xFF
	}
}
