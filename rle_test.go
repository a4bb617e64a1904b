package iff

import (
	"bytes"
	"testing"
)

func readerOver(data []byte) *chunkReader {
	return newChunkReader(bytes.NewReader(data))
}

// TestPackbitsLiteralsAndRuns verifies the two basic control codes
func TestPackbitsLiteralsAndRuns(t *testing.T) {
	// 3 literal bytes, then a run of 3
	data := []byte{0x02, 'A', 'B', 'C', 0xFE, 'x'}
	out := make([]byte, 6)

	if err := packbitsDecompress(readerOver(data), out, false); err != nil {
		t.Fatalf("packbitsDecompress: %v", err)
	}
	want := []byte{'A', 'B', 'C', 'x', 'x', 'x'}
	if !bytes.Equal(out, want) {
		t.Errorf("got %q, want %q", out, want)
	}
}

// TestPackbitsMinus128 verifies the -128 control byte: a run of 129 in
// IFF files, a no-op in TIFF-compatible mode
func TestPackbitsMinus128(t *testing.T) {
	data := []byte{0x80, 0x55}
	out := make([]byte, 129)
	if err := packbitsDecompress(readerOver(data), out, false); err != nil {
		t.Fatalf("packbitsDecompress: %v", err)
	}
	for i, b := range out {
		if b != 0x55 {
			t.Fatalf("out[%d] = %#x, want 0x55", i, b)
		}
	}

	// In no-op mode the control byte is skipped and decoding continues
	// with the next code.
	data = []byte{0x80, 0x02, 'a', 'b', 'c'}
	out = make([]byte, 3)
	if err := packbitsDecompress(readerOver(data), out, true); err != nil {
		t.Fatalf("packbitsDecompress (no-op mode): %v", err)
	}
	if !bytes.Equal(out, []byte("abc")) {
		t.Errorf("got %q, want %q", out, "abc")
	}
}

// TestPackbitsRunClippedAtBoundary verifies that a run crossing the
// requested output size is clipped, leaving the stream readable for the
// next scanline
func TestPackbitsRunClippedAtBoundary(t *testing.T) {
	// run of 6 'z', then a single literal 'q'
	data := []byte{0xFB, 'z', 0x00, 'q'}
	r := readerOver(data)

	out := make([]byte, 4)
	if err := packbitsDecompress(r, out, false); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if !bytes.Equal(out, []byte("zzzz")) {
		t.Errorf("first call got %q, want %q", out, "zzzz")
	}

	out = make([]byte, 1)
	if err := packbitsDecompress(r, out, false); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if out[0] != 'q' {
		t.Errorf("second call got %q, want 'q'", out[0])
	}
}

// TestPackbitsTruncated verifies short input surfaces as ErrTruncatedStream
func TestPackbitsTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty stream", data: nil},
		{name: "short literal", data: []byte{0x05, 'a'}},
		{name: "run without value", data: []byte{0xFE}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := make([]byte, 8)
			if err := packbitsDecompress(readerOver(tt.data), out, false); err != ErrTruncatedStream {
				t.Errorf("got %v, want ErrTruncatedStream", err)
			}
		})
	}
}

// TestMayaRLERunsAndLiterals verifies the unsigned control scheme
func TestMayaRLERunsAndLiterals(t *testing.T) {
	// run of 3 0xAA, then 2 literal bytes
	data := []byte{0x82, 0xAA, 0x01, 'x', 'y'}
	out := make([]byte, 5)

	if n := mayaRLEDecompress(readerOver(data), out); n != 5 {
		t.Fatalf("got %d bytes, want 5", n)
	}
	want := []byte{0xAA, 0xAA, 0xAA, 'x', 'y'}
	if !bytes.Equal(out, want) {
		t.Errorf("got %v, want %v", out, want)
	}
}

// TestMayaRLEStopsAtRunBoundary verifies the near-end peek: a run that
// would overflow the output is left unconsumed so a later call with a
// fresh buffer can pick it up
func TestMayaRLEStopsAtRunBoundary(t *testing.T) {
	// run of 3 0x11, then run of 2 0x22
	data := []byte{0x82, 0x11, 0x81, 0x22}
	r := readerOver(data)

	out := make([]byte, 4)
	if n := mayaRLEDecompress(r, out); n != 3 {
		t.Fatalf("first call produced %d bytes, want 3", n)
	}
	if !bytes.Equal(out[:3], []byte{0x11, 0x11, 0x11}) {
		t.Errorf("first call got %v", out[:3])
	}

	out = make([]byte, 2)
	if n := mayaRLEDecompress(r, out); n != 2 {
		t.Fatalf("second call produced %d bytes, want 2", n)
	}
	if !bytes.Equal(out, []byte{0x22, 0x22}) {
		t.Errorf("second call got %v", out)
	}
}

// TestMayaRLEShortLiteral verifies a truncated literal reports -1
func TestMayaRLEShortLiteral(t *testing.T) {
	data := []byte{0x05, 'a', 'b'} // declares 6 literals, provides 2
	out := make([]byte, 200)
	if n := mayaRLEDecompress(readerOver(data), out); n != -1 {
		t.Errorf("got %d, want -1", n)
	}
}
