package iff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"
)

// rawChunk frames a payload as tag + big-endian size, padded to the
// container's alignment quantum.
func rawChunk(tag string, payload []byte, align int) []byte {
	var buf bytes.Buffer
	buf.WriteString(tag)
	binary.Write(&buf, binary.BigEndian, uint32(len(payload)))
	buf.Write(payload)
	for buf.Len()%align != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func containerChunk(tag, formType string, align int, inner ...[]byte) []byte {
	var payload bytes.Buffer
	payload.WriteString(formType)
	for _, in := range inner {
		payload.Write(in)
	}
	return rawChunk(tag, payload.Bytes(), align)
}

func bmhdPayload(w, h, planes, masking, compression int) []byte {
	b := make([]byte, 20)
	binary.BigEndian.PutUint16(b[0:], uint16(w))
	binary.BigEndian.PutUint16(b[2:], uint16(h))
	b[8] = byte(planes)
	b[9] = byte(masking)
	b[10] = byte(compression)
	b[14], b[15] = 1, 1
	binary.BigEndian.PutUint16(b[16:], uint16(w))
	binary.BigEndian.PutUint16(b[18:], uint16(h))
	return b
}

func tbhdPayload(w, h int, flags uint32, bpcField, count, compression int) []byte {
	b := make([]byte, 24)
	binary.BigEndian.PutUint32(b[0:], uint32(w))
	binary.BigEndian.PutUint32(b[4:], uint32(h))
	binary.BigEndian.PutUint32(b[12:], flags)
	binary.BigEndian.PutUint16(b[16:], uint16(bpcField))
	binary.BigEndian.PutUint16(b[18:], uint16(count))
	binary.BigEndian.PutUint32(b[20:], uint32(compression))
	return b
}

func ilbmIndexedFile() []byte {
	return containerChunk(formTag, ilbmFormType, 2,
		rawChunk(bmhdTag, bmhdPayload(8, 2, 2, 0, 0), 2),
		rawChunk(cmapTag, []byte{
			0, 0, 0,
			255, 0, 0,
			0, 255, 0,
			0, 0, 255,
		}, 2),
		// Two uncompressed rows of two planes each.
		rawChunk(bodyTag, []byte{
			0xA0, 0x00, 0xC0, 0x00,
			0xFF, 0x00, 0x00, 0x00,
		}, 2),
	)
}

// TestDecodeILBMIndexed decodes a planar indexed image end to end
func TestDecodeILBMIndexed(t *testing.T) {
	img, err := Decode(bytes.NewReader(ilbmIndexedFile()))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	p, ok := img.(*image.Paletted)
	if !ok {
		t.Fatalf("got %T, want *image.Paletted", img)
	}
	if p.Bounds() != image.Rect(0, 0, 8, 2) {
		t.Fatalf("bounds = %v", p.Bounds())
	}
	if len(p.Palette) != 4 {
		t.Fatalf("palette has %d entries, want 4", len(p.Palette))
	}

	wantRow0 := []byte{3, 2, 1, 0, 0, 0, 0, 0}
	if !bytes.Equal(p.Pix[:8], wantRow0) {
		t.Errorf("row 0 = %v, want %v", p.Pix[:8], wantRow0)
	}
	wantRow1 := []byte{1, 1, 1, 1, 1, 1, 1, 1}
	if !bytes.Equal(p.Pix[p.Stride:p.Stride+8], wantRow1) {
		t.Errorf("row 1 = %v, want %v", p.Pix[p.Stride:p.Stride+8], wantRow1)
	}
}

// TestDecodePBMCompressed decodes a chunky PBM with packbits rows
func TestDecodePBMCompressed(t *testing.T) {
	cmap := make([]byte, 8*3)
	data := containerChunk(formTag, pbmFormType, 2,
		rawChunk(bmhdTag, bmhdPayload(5, 2, 8, 0, 1), 2),
		rawChunk(cmapTag, cmap, 2),
		// Row 0: run of 5 sevens. Row 1: 5 literal bytes.
		rawChunk(bodyTag, []byte{0xFC, 7, 0x04, 1, 2, 3, 4, 5}, 2),
	)

	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	p, ok := img.(*image.Paletted)
	if !ok {
		t.Fatalf("got %T, want *image.Paletted", img)
	}
	if !bytes.Equal(p.Pix[:5], []byte{7, 7, 7, 7, 7}) {
		t.Errorf("row 0 = %v", p.Pix[:5])
	}
	if !bytes.Equal(p.Pix[p.Stride:p.Stride+5], []byte{1, 2, 3, 4, 5}) {
		t.Errorf("row 1 = %v", p.Pix[p.Stride:p.Stride+5])
	}
}

// TestDecodeHAM decodes a hold-and-modify image through the public API
func TestDecodeHAM(t *testing.T) {
	cmap := make([]byte, 16*3)
	copy(cmap, []byte{1, 2, 3, 10, 20, 30})
	camg := make([]byte, 4)
	binary.BigEndian.PutUint32(camg, modeHAM)

	body := make([]byte, 12)
	body[0] = 0x80 // pixel 0: absolute, palette entry 1
	data := containerChunk(formTag, ilbmFormType, 2,
		rawChunk(bmhdTag, bmhdPayload(4, 1, 6, 0, 0), 2),
		rawChunk(camgTag, camg, 2),
		rawChunk(cmapTag, cmap, 2),
		rawChunk(bodyTag, body, 2),
	)

	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("got %T, want *image.NRGBA", img)
	}
	if got := nrgba.NRGBAAt(0, 0); got != (color.NRGBA{R: 10, G: 20, B: 30, A: 0xFF}) {
		t.Errorf("pixel (0,0) = %v, want palette entry 1", got)
	}
	if got := nrgba.NRGBAAt(1, 0); got != (color.NRGBA{R: 1, G: 2, B: 3, A: 0xFF}) {
		t.Errorf("pixel (1,0) = %v, want palette entry 0", got)
	}
}

// TestDecodeDeep24 decodes a 24-plane truecolor image
func TestDecodeDeep24(t *testing.T) {
	body := make([]byte, 48) // 24 planes of 2 bytes
	for k := 0; k < 8; k++ {
		body[k*2] = 0x80 // pixel 0: red 0xFF
	}
	data := containerChunk(formTag, ilbmFormType, 2,
		rawChunk(bmhdTag, bmhdPayload(8, 1, 24, 0, 0), 2),
		rawChunk(bodyTag, body, 2),
	)

	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("got %T, want *image.NRGBA", img)
	}
	if got := nrgba.NRGBAAt(0, 0); got != (color.NRGBA{R: 0xFF, A: 0xFF}) {
		t.Errorf("pixel (0,0) = %v, want opaque red", got)
	}
	if got := nrgba.NRGBAAt(1, 0); got != (color.NRGBA{A: 0xFF}) {
		t.Errorf("pixel (1,0) = %v, want opaque black", got)
	}
}

func mayaFile(tileCount int) []byte {
	tile := []byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01,
		// Stored per pixel as A, B, G, R; tile rows top-down.
		0xF0, 0x01, 0x02, 0x03, 0xF1, 0x11, 0x12, 0x13,
		0xF2, 0x21, 0x22, 0x23, 0xF3, 0x31, 0x32, 0x33,
	}
	return containerChunk(for4Tag, cimgFormType, 4,
		rawChunk(tbhdTag, tbhdPayload(2, 2, tbhdRGBA, 0, tileCount, 0), 4),
		rawChunk(rgbaTag, tile, 4),
	)
}

// TestDecodeMaya decodes a FOR4 CIMG and verifies the vertical flip
func TestDecodeMaya(t *testing.T) {
	img, err := Decode(bytes.NewReader(mayaFile(1)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("got %T, want *image.NRGBA", img)
	}
	if nrgba.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Fatalf("bounds = %v", nrgba.Bounds())
	}

	// The stored top row ends up at the bottom of the canvas.
	tests := []struct {
		x, y int
		want color.NRGBA
	}{
		{0, 0, color.NRGBA{R: 0x23, G: 0x22, B: 0x21, A: 0xF2}},
		{1, 0, color.NRGBA{R: 0x33, G: 0x32, B: 0x31, A: 0xF3}},
		{0, 1, color.NRGBA{R: 0x03, G: 0x02, B: 0x01, A: 0xF0}},
		{1, 1, color.NRGBA{R: 0x13, G: 0x12, B: 0x11, A: 0xF1}},
	}
	for _, tt := range tests {
		if got := nrgba.NRGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

// TestDecodeMayaTileCountMismatch verifies the header tile count is
// checked against the chunks actually present
func TestDecodeMayaTileCountMismatch(t *testing.T) {
	_, err := Decode(bytes.NewReader(mayaFile(2)))
	if !errors.Is(err, ErrInvalidTile) {
		t.Errorf("got %v, want ErrInvalidTile", err)
	}
}

// TestDecodeConfig verifies geometry and color model without pixel decode
func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig(bytes.NewReader(ilbmIndexedFile()))
	if err != nil {
		t.Fatalf("DecodeConfig (classic): %v", err)
	}
	if cfg.Width != 8 || cfg.Height != 2 {
		t.Errorf("classic geometry = %dx%d, want 8x2", cfg.Width, cfg.Height)
	}
	pal, ok := cfg.ColorModel.(color.Palette)
	if !ok || len(pal) != 4 {
		t.Errorf("classic color model = %T, want 4-entry palette", cfg.ColorModel)
	}

	cfg, err = DecodeConfig(bytes.NewReader(mayaFile(1)))
	if err != nil {
		t.Fatalf("DecodeConfig (maya): %v", err)
	}
	if cfg.Width != 2 || cfg.Height != 2 {
		t.Errorf("maya geometry = %dx%d, want 2x2", cfg.Width, cfg.Height)
	}
	if cfg.ColorModel != color.NRGBAModel {
		t.Errorf("maya color model = %v, want NRGBAModel", cfg.ColorModel)
	}
}

// TestCanDecode verifies probing and that the stream position survives a
// probe
func TestCanDecode(t *testing.T) {
	rs := bytes.NewReader(ilbmIndexedFile())
	if !CanDecode(rs) {
		t.Fatal("CanDecode = false for a valid image")
	}
	var tag [4]byte
	if _, err := io.ReadFull(rs, tag[:]); err != nil || string(tag[:]) != formTag {
		t.Errorf("stream not restored after probe: tag %q, err %v", tag, err)
	}

	if CanDecode(bytes.NewReader([]byte("\x89PNG\r\n\x1a\n tail padding"))) {
		t.Error("CanDecode = true for non-IFF data")
	}
}

// TestDecodeMetadata verifies annotation and resolution chunks surface on
// the metadata
func TestDecodeMetadata(t *testing.T) {
	dpi := make([]byte, 4)
	binary.BigEndian.PutUint16(dpi[0:], 72)
	binary.BigEndian.PutUint16(dpi[2:], 72)
	data := containerChunk(formTag, ilbmFormType, 2,
		rawChunk(bmhdTag, bmhdPayload(8, 2, 2, 0, 0), 2),
		rawChunk(cmapTag, []byte{0, 0, 0, 255, 255, 255}, 2),
		rawChunk(annoTag, []byte("test fixture"), 2),
		rawChunk(authTag, []byte("Somebody"), 2),
		rawChunk(dpiTag, dpi, 2),
	)

	_, meta, err := DecodeWithMetadata(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeWithMetadata: %v", err)
	}
	if got := meta.Text[MetaDescription]; got != "test fixture" {
		t.Errorf("description = %q", got)
	}
	if got := meta.Text[MetaAuthor]; got != "Somebody" {
		t.Errorf("author = %q", got)
	}
	if meta.DotsPerMeterX != 2835 || meta.DotsPerMeterY != 2835 {
		t.Errorf("resolution = %dx%d dpm, want 2835x2835",
			meta.DotsPerMeterX, meta.DotsPerMeterY)
	}
}

// TestDecodeNoImage verifies a well-formed file without any image form is
// rejected with ErrNoImage
func TestDecodeNoImage(t *testing.T) {
	data := containerChunk(catTag, "MIXD", 2,
		rawChunk(nameTag, []byte("just a name"), 2),
	)
	if _, err := Decode(bytes.NewReader(data)); !errors.Is(err, ErrNoImage) {
		t.Errorf("got %v, want ErrNoImage", err)
	}
}

// TestDecodeUnsupportedVariant verifies a recognized form with an
// undecodable plane layout reports ErrUnsupportedVariant
func TestDecodeUnsupportedVariant(t *testing.T) {
	camg := make([]byte, 4)
	binary.BigEndian.PutUint32(camg, modeHAM)
	data := containerChunk(formTag, ilbmFormType, 2,
		// HAM needs at least 6 planes.
		rawChunk(bmhdTag, bmhdPayload(8, 1, 5, 0, 0), 2),
		rawChunk(camgTag, camg, 2),
		rawChunk(cmapTag, make([]byte, 8*3), 2),
	)
	if _, err := Decode(bytes.NewReader(data)); !errors.Is(err, ErrUnsupportedVariant) {
		t.Errorf("got %v, want ErrUnsupportedVariant", err)
	}
}

// TestDecodeNonSeekable verifies plain io.Readers are buffered
func TestDecodeNonSeekable(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(ilbmIndexedFile())
	if _, err := Decode(&buf); err != nil {
		t.Fatalf("Decode from io.Reader: %v", err)
	}
}

// TestRegisteredFormat verifies detection through image.Decode
func TestRegisteredFormat(t *testing.T) {
	_, name, err := image.Decode(bytes.NewReader(ilbmIndexedFile()))
	if err != nil {
		t.Fatalf("image.Decode: %v", err)
	}
	if name != "iff" {
		t.Errorf("format name = %q, want %q", name, "iff")
	}
}
