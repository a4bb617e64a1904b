package iff

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"golang.org/x/image/draw"
)

// classicForm gathers the chunks that drive a FORM ILBM/PBM/ACBM decode.
type classicForm struct {
	form   *Chunk
	header *bitmapHeader
	camg   *modeFlags
	cmap   *colorMap
	body   *Chunk
	pbm    bool
	planar bool // ABIT contiguous-plane layout
}

func classicFormOf(form *Chunk) *classicForm {
	tree := []*Chunk{form}
	header := bmhdOf(firstChunk(tree, bmhdTag))
	if !header.valid() {
		return nil
	}

	f := &classicForm{
		form:   form,
		header: header,
		camg:   camgOf(firstChunk(tree, camgTag)),
		pbm:    form.form == pbmFormType,
	}
	if cmap := firstChunk(tree, cmapTag); cmap != nil {
		f.cmap = cmapOf(cmap)
	} else if cmyk := firstChunk(tree, cmykTag); cmyk != nil {
		f.cmap = cmapOf(cmyk)
	}
	if body := firstChunk(tree, bodyTag); body != nil {
		f.body = body
	} else if abit := firstChunk(tree, abitTag); abit != nil {
		f.body = abit
		f.planar = true
	}
	return f
}

// pixelMode chooses the reconstruction algorithm from the bitplane count,
// the display mode bits and the presence of a color map.
func (f *classicForm) pixelMode() pixelMode {
	bp := f.header.bitplanes()
	modes := effectiveModes(f.header, f.camg)

	if f.pbm {
		if bp != 8 {
			return pmInvalid
		}
		if f.cmap != nil {
			return pmIndexed
		}
		return pmGray
	}

	switch {
	case bp == 24:
		return pmRGB24
	case bp == 32:
		return pmRGBA32
	case bp >= 2 && bp <= 8:
		if modes&modeHAM != 0 {
			if modes&modeHalfBrite != 0 || bp < 6 || f.cmap == nil {
				return pmInvalid
			}
			// Images with a SHAM chunk use per-scanline palettes and do
			// not load correctly with a single color map.
			if firstChunk([]*Chunk{f.form}, shamTag) != nil {
				return pmInvalid
			}
			return pmHAM
		}
		if modes&modeHalfBrite != 0 {
			if f.cmap == nil {
				return pmInvalid
			}
			return pmIndexed
		}
		if f.cmap != nil {
			return pmIndexed
		}
		return pmGray
	case bp == 1:
		if f.cmap != nil {
			return pmIndexed
		}
		return pmBilevel
	}
	return pmInvalid
}

func (f *classicForm) colorModel(mode pixelMode) color.Model {
	switch mode {
	case pmIndexed:
		return f.cmap.palette(effectiveModes(f.header, f.camg)&modeHalfBrite != 0)
	case pmGray, pmBilevel:
		return color.GrayModel
	default:
		return color.NRGBAModel
	}
}

// decodeILBM drives the scanline reconstruction of a classic form into a
// raster, row by row. Any structural or row-length failure aborts the
// whole decode; no partial image is returned.
func decodeILBM(r *chunkReader, f *classicForm, mode pixelMode, meta *Metadata) (image.Image, error) {
	w, h := f.header.width(), f.header.height()
	if w <= 0 || h <= 0 {
		return nil, ErrMalformedHeader
	}
	rect := image.Rect(0, 0, w, h)
	modes := effectiveModes(f.header, f.camg)

	var pal color.Palette
	if mode == pmIndexed {
		pal = f.cmap.palette(modes&modeHalfBrite != 0)
		if len(pal) == 0 {
			return nil, ErrUnsupportedVariant
		}
	}

	var img image.Image
	switch mode {
	case pmIndexed:
		img = image.NewPaletted(rect, pal)
	case pmGray, pmBilevel:
		img = image.NewGray(rect)
	default:
		img = image.NewNRGBA(rect)
	}

	defer func() { readMetadata(f.form, meta) }()

	if f.body == nil {
		// No pixel data; the zeroed canvas is the image.
		return img, nil
	}
	if f.planar && f.header.compression() != compressionNone {
		return nil, ErrUnsupportedVariant
	}

	br := &bodyReader{
		chunk:  f.body,
		header: f.header,
		mode:   mode,
		modes:  modes,
		pal:    f.cmap.palette(false),
		pbm:    f.pbm,
		planar: f.planar,
	}
	if err := br.reset(r); err != nil {
		return nil, err
	}

	clamped := 0
	for y := 0; y < h; y++ {
		row, err := br.readRow(r)
		if err != nil {
			return nil, fmt.Errorf("read scanline %d: %w", y, err)
		}
		switch dst := img.(type) {
		case *image.Paletted:
			if len(row) < w {
				return nil, ErrTruncatedStream
			}
			line := dst.Pix[y*dst.Stride:]
			for x := 0; x < w; x++ {
				idx := row[x]
				if int(idx) >= len(pal) {
					// Tolerate slightly-off palette sizes: render the
					// pixel with entry 0 and keep going.
					idx = 0
					clamped++
				}
				line[x] = idx
			}
		case *image.Gray:
			if len(row) < w {
				return nil, ErrTruncatedStream
			}
			line := dst.Pix[y*dst.Stride:]
			if mode == pmBilevel {
				for x := 0; x < w; x++ {
					if row[x] == 0 {
						line[x] = 0xFF
					} else {
						line[x] = 0x00
					}
				}
			} else {
				copy(line[:w], row)
			}
		case *image.NRGBA:
			if len(row) < w*4 {
				return nil, ErrTruncatedStream
			}
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+w*4], row)
		}
	}

	if clamped > 0 {
		meta.Warnings = append(meta.Warnings,
			fmt.Sprintf("palette index out of range on %d pixels", clamped))
	}
	if warn := br.warning(); warn != "" {
		meta.Warnings = append(meta.Warnings, warn)
	}
	return img, nil
}

// decodeMaya composites every RGBA tile of a FOR4 form onto the canvas
// and flips the result: Maya stores tiles bottom-up relative to the
// container's top-left origin.
func decodeMaya(r *chunkReader, form *Chunk, h *tileHeader, meta *Metadata) (image.Image, error) {
	w, hh := h.width(), h.height()
	if w <= 0 || hh <= 0 {
		return nil, ErrMalformedHeader
	}
	rect := image.Rect(0, 0, w, hh)

	var canvas draw.Image
	if h.bpc() == 2 {
		canvas = image.NewNRGBA64(rect)
	} else {
		canvas = image.NewNRGBA(rect)
	}

	tiles := searchChunks([]*Chunk{form}, rgbaTag)
	// Photoshop writes more than 65535 tiles on large images and lets the
	// 16-bit count wrap.
	if len(tiles)&0xFFFF != h.tileCount() {
		return nil, fmt.Errorf("%w: found %d tiles, header declares %d",
			ErrInvalidTile, len(tiles), h.tileCount())
	}

	for i, c := range tiles {
		t := tileOf(c)
		if !t.valid() {
			return nil, ErrInvalidTile
		}
		bounds := t.bounds()
		if !bounds.In(rect) {
			return nil, fmt.Errorf("%w: tile %d bounds %v outside canvas", ErrInvalidTile, i, bounds)
		}
		ti, err := t.decodeTile(r, h)
		if err != nil {
			return nil, fmt.Errorf("decode tile %d: %w", i, err)
		}
		draw.Draw(canvas, bounds, ti, image.Point{}, draw.Src)
	}

	switch img := canvas.(type) {
	case *image.NRGBA:
		flipVertical(img.Pix, img.Stride, hh)
	case *image.NRGBA64:
		flipVertical(img.Pix, img.Stride, hh)
	}

	readMetadata(form, meta)
	return canvas, nil
}

// flipVertical mirrors a packed raster in place around its horizontal
// midline.
func flipVertical(pix []byte, stride, h int) {
	tmp := make([]byte, stride)
	for y := 0; y < h/2; y++ {
		a := pix[y*stride : (y+1)*stride]
		b := pix[(h-1-y)*stride : (h-y)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}

// cursorFor turns any reader into a positioned cursor, buffering
// non-seekable sources in memory.
func cursorFor(r io.Reader) (*chunkReader, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return newChunkReader(rs), nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return newChunkReader(bytes.NewReader(data)), nil
}

func decodeTree(r *chunkReader) (image.Image, *Metadata, error) {
	chunks, err := readChunkTree(r)
	if err != nil {
		return nil, nil, err
	}

	meta := &Metadata{}
	unsupported := false

	// The first supported image wins; classic forms take precedence over
	// Maya forms when a file carries both.
	for _, form := range searchChunks(chunks, formTag) {
		f := classicFormOf(form)
		if f == nil {
			continue
		}
		mode := f.pixelMode()
		if mode == pmInvalid {
			unsupported = true
			continue
		}
		img, err := decodeILBM(r, f, mode, meta)
		if err != nil {
			return nil, nil, err
		}
		return img, meta, nil
	}

	for _, form := range searchChunks(chunks, for4Tag) {
		h := tbhdOf(firstChunk([]*Chunk{form}, tbhdTag))
		if !h.valid() {
			continue
		}
		if h.channels() == 0 {
			unsupported = true
			continue
		}
		img, err := decodeMaya(r, form, h, meta)
		if err != nil {
			return nil, nil, err
		}
		return img, meta, nil
	}

	if unsupported {
		return nil, nil, ErrUnsupportedVariant
	}
	return nil, nil, ErrNoImage
}

// Decode reads an IFF image from r.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := DecodeWithMetadata(r)
	return img, err
}

// DecodeWithMetadata reads an IFF image and its side-channel metadata
// from r.
func DecodeWithMetadata(r io.Reader) (image.Image, *Metadata, error) {
	cr, err := cursorFor(r)
	if err != nil {
		return nil, nil, err
	}
	return decodeTree(cr)
}

// DecodeConfig returns the image geometry and color model without
// decoding pixel data.
func DecodeConfig(r io.Reader) (image.Config, error) {
	cr, err := cursorFor(r)
	if err != nil {
		return image.Config{}, err
	}
	chunks, err := readChunkTree(cr)
	if err != nil {
		return image.Config{}, err
	}

	for _, form := range searchChunks(chunks, formTag) {
		f := classicFormOf(form)
		if f == nil {
			continue
		}
		mode := f.pixelMode()
		if mode == pmInvalid {
			continue
		}
		return image.Config{
			Width:      f.header.width(),
			Height:     f.header.height(),
			ColorModel: f.colorModel(mode),
		}, nil
	}

	for _, form := range searchChunks(chunks, for4Tag) {
		h := tbhdOf(firstChunk([]*Chunk{form}, tbhdTag))
		if !h.valid() || h.channels() == 0 {
			continue
		}
		model := color.Model(color.NRGBAModel)
		if h.bpc() == 2 {
			model = color.NRGBA64Model
		}
		return image.Config{Width: h.width(), Height: h.height(), ColorModel: model}, nil
	}

	return image.Config{}, ErrNoImage
}

// rootTags is the set of chunk tags a well-formed file can start with.
var rootTags = map[string]bool{
	catTag:  true,
	formTag: true,
	listTag: true,
	cat4Tag: true,
	for4Tag: true,
	lis4Tag: true,
}

// CanDecode reports whether the stream holds a decodable IFF image. The
// stream position is restored, so a negative probe leaves rs usable for
// other format handlers.
func CanDecode(rs io.ReadSeeker) bool {
	r := newChunkReader(rs)
	pos := r.pos()
	if pos < 0 {
		return false
	}
	defer r.seekTo(pos)

	// Avoid parsing obviously incorrect files.
	cid, err := r.peek(4)
	if err != nil || len(cid) != 4 || !rootTags[string(cid)] {
		return false
	}

	chunks, err := readChunkTree(r)
	if err != nil {
		return false
	}
	for _, form := range searchChunks(chunks, formTag) {
		if f := classicFormOf(form); f != nil && f.pixelMode() != pmInvalid {
			return true
		}
	}
	for _, form := range searchChunks(chunks, for4Tag) {
		if h := tbhdOf(firstChunk([]*Chunk{form}, tbhdTag)); h.valid() && h.channels() != 0 {
			return true
		}
	}
	return false
}

func init() {
	for _, magic := range []string{formTag, for4Tag, catTag, cat4Tag, listTag, lis4Tag} {
		image.RegisterFormat("iff", magic, Decode, DecodeConfig)
	}
}
