package iff

import (
	"fmt"
	"image/color"
)

// pixelMode selects the reconstruction algorithm and the output raster
// layout for a classic FORM image.
type pixelMode int

const (
	pmInvalid pixelMode = iota
	pmBilevel           // 1 plane, no color map
	pmIndexed           // 1-8 planes with color map (HalfBrite doubles it)
	pmGray              // 2-8 planes, no color map
	pmHAM               // 6-8 planes, hold-and-modify
	pmRGB24             // 24 planes
	pmRGBA32            // 32 planes
)

// bodyReader streams scanlines out of a BODY (interleaved, optionally
// RLE-compressed) or ABIT (contiguous planes, uncompressed) chunk. The
// read-ahead buffer persists across rows because RLE runs do not align to
// row boundaries; reset must be called before the first row of a decode.
type bodyReader struct {
	chunk  *Chunk
	header *bitmapHeader
	mode   pixelMode
	modes  uint32
	pal    color.Palette // undoubled color map, used by HAM
	pbm    bool          // chunky PBM layout
	planar bool          // ABIT whole-plane layout

	row int
	buf []byte

	// palette misses recovered during HAM reconstruction
	oorPixels int
}

// rowBytes returns how many source bytes one scanline consumes.
func (b *bodyReader) rowBytes() int {
	if b.pbm {
		return b.header.width()
	}
	return b.header.rowLen() * b.header.planeRows()
}

// reset seeks to the start of the pixel data and clears the read-ahead
// state.
func (b *bodyReader) reset(r *chunkReader) error {
	b.buf = nil
	b.row = 0
	b.oorPixels = 0
	return b.chunk.seek(r, 0)
}

// readRow reconstructs the next scanline into packed pixels: one index
// byte per pixel for the indexed modes, 4-byte RGBA for the truecolor and
// HAM modes.
func (b *bodyReader) readRow(r *chunkReader) ([]byte, error) {
	planes, err := b.readPlanes(r)
	if err != nil {
		return nil, err
	}
	return b.deinterleave(planes)
}

func (b *bodyReader) readPlanes(r *chunkReader) ([]byte, error) {
	readSize := b.rowBytes()

	if b.planar {
		// ABIT stores each plane contiguously for the whole image; gather
		// the plane rows for this scanline by seeking.
		rowLen := b.header.rowLen()
		height := b.header.height()
		planes := make([]byte, readSize)
		for k := 0; k < b.header.planeRows(); k++ {
			off := int64(k*height+b.row) * int64(rowLen)
			if err := b.chunk.seek(r, off); err != nil {
				return nil, err
			}
			if err := r.readFull(planes[k*rowLen : (k+1)*rowLen]); err != nil {
				return nil, err
			}
		}
		b.row++
		return planes, nil
	}

	for len(b.buf) < readSize {
		chunk := make([]byte, readSize)
		switch b.header.compression() {
		case compressionRLE:
			if err := packbitsDecompress(r, chunk, false); err != nil {
				return nil, err
			}
		case compressionNone:
			if err := r.readFull(chunk); err != nil {
				return nil, err
			}
		default:
			return nil, ErrUnsupportedVariant
		}
		b.buf = append(b.buf, chunk...)
	}

	planes := b.buf[:readSize]
	b.buf = b.buf[readSize:]
	b.row++
	return planes, nil
}

// deinterleave converts one scanline's worth of raw plane bytes into
// packed pixels.
func (b *bodyReader) deinterleave(planes []byte) ([]byte, error) {
	if b.pbm {
		// Already one byte per pixel.
		out := make([]byte, len(planes))
		copy(out, planes)
		return out, nil
	}

	h := b.header
	rowLen := h.rowLen()
	if len(planes) != rowLen*h.planeRows() {
		return nil, ErrTruncatedStream
	}

	switch b.mode {
	case pmHAM:
		return b.deinterleaveHAM(planes), nil
	case pmRGB24, pmRGBA32:
		return deinterleaveDeep(planes, rowLen, h.bitplanes()), nil
	default:
		return deinterleavePlanar(planes, rowLen, h.bitplanes()), nil
	}
}

// deinterleavePlanar gathers, for every pixel, bit k of each of the bp
// planes into an index value. This is inherently per-pixel work: plane k
// contributes 1<<k to the palette index.
func deinterleavePlanar(planes []byte, rowLen, bp int) []byte {
	out := make([]byte, rowLen*8)
	for i := 0; i < rowLen; i++ {
		for k := 0; k < bp; k++ {
			v := planes[k*rowLen+i]
			if v == 0 {
				continue
			}
			bit := byte(1) << k
			i8 := i * 8
			if v&0x80 != 0 {
				out[i8] |= bit
			}
			if v&0x40 != 0 {
				out[i8+1] |= bit
			}
			if v&0x20 != 0 {
				out[i8+2] |= bit
			}
			if v&0x10 != 0 {
				out[i8+3] |= bit
			}
			if v&0x08 != 0 {
				out[i8+4] |= bit
			}
			if v&0x04 != 0 {
				out[i8+5] |= bit
			}
			if v&0x02 != 0 {
				out[i8+6] |= bit
			}
			if v&0x01 != 0 {
				out[i8+7] |= bit
			}
		}
	}
	return out
}

// deinterleaveDeep reconstructs 24/32-plane truecolor rows. The planes are
// stored R0..R7 G0..G7 B0..B7 [A0..A7]; each channel is expanded
// independently and the channels interleave into 4-byte RGBA pixels.
func deinterleaveDeep(planes []byte, rowLen, bp int) []byte {
	channels := bp / 8
	out := make([]byte, rowLen*8*4)
	for i := 0; i < rowLen; i++ {
		for j := 0; j < 8; j++ {
			msk := byte(0x80) >> j
			px := (i*8 + j) * 4
			for k := 0; k < channels; k++ {
				k8 := k * 8
				var v byte
				for bit := 0; bit < 8; bit++ {
					if planes[(k8+bit)*rowLen+i]&msk != 0 {
						v |= 1 << bit
					}
				}
				out[px+k] = v
			}
			if channels < 4 {
				out[px+3] = 0xFF
			}
		}
	}
	return out
}

// deinterleaveHAM reconstructs a hold-and-modify row. The top two planes
// carry two control bits per pixel: 0 loads an absolute color from the
// color map, 1/2/3 hold the previous pixel and replace its red, blue or
// green component with the remaining index bits scaled to 0-255. The hold
// state starts each row at the border color (palette entry 0).
func (b *bodyReader) deinterleaveHAM(planes []byte) []byte {
	h := b.header
	rowLen := h.rowLen()
	bp := h.bitplanes()
	maxIdx := (1 << (bp - 2)) - 1

	var prev [3]uint8
	if len(b.pal) > 0 {
		r, g, bl, _ := b.pal[0].RGBA()
		prev[0], prev[1], prev[2] = uint8(r>>8), uint8(g>>8), uint8(bl>>8)
	}

	out := make([]byte, rowLen*8*4)
	for i, cnt := 0, 0; i < rowLen; i++ {
		for j := 0; j < 8; j, cnt = j+1, cnt+1 {
			idx, ctl := 0, 0
			msk := byte(0x80) >> j
			for k := 0; k < bp; k++ {
				if planes[k*rowLen+i]&msk == 0 {
					continue
				}
				if k < bp-2 {
					idx |= 1 << k
				} else {
					ctl |= 1 << (bp - k - 1)
				}
			}
			val := uint8(idx * 255 / maxIdx)
			switch ctl {
			case 1: // red
				prev[0] = val
			case 2: // blue
				prev[2] = val
			case 3: // green
				prev[1] = val
			default:
				if idx < len(b.pal) {
					r, g, bl, _ := b.pal[idx].RGBA()
					prev[0], prev[1], prev[2] = uint8(r>>8), uint8(g>>8), uint8(bl>>8)
				} else {
					// Slightly off palette sizes happen in the wild; keep
					// the held color instead of failing the decode.
					b.oorPixels++
				}
			}
			c4 := cnt * 4
			out[c4] = prev[0]
			out[c4+1] = prev[1]
			out[c4+2] = prev[2]
			out[c4+3] = 0xFF
		}
	}
	return out
}

// warning summarizes recovered data-quality issues, or returns "".
func (b *bodyReader) warning() string {
	if b.oorPixels == 0 {
		return ""
	}
	return fmt.Sprintf("palette index out of range on %d pixels", b.oorPixels)
}
