package iff

// Run-length codecs for the two IFF dialects. The classic BODY chunks use a
// packbits-style scheme; Maya RGBA tiles use their own variant with
// different length encoding. The two are kept separate on purpose: their
// edge-case rules are incompatible.

// packbitsDecompress fills out from the packbits-compressed stream at r.
//
// The control byte is signed: n >= 0 copies the next n+1 bytes literally,
// n in [-127,-1] repeats the next byte 1-n times. The online ILBM spec
// claims TIFF packbits compatibility, but that's not accurate: in IFF
// files the -128 code is not a no-op — it is a run of 129. Callers that
// want the TIFF behavior pass n128NoOp.
//
// A run that would overrun out is clipped at the boundary after its input
// is consumed, so the function either fills out exactly or returns
// ErrTruncatedStream.
func packbitsDecompress(r *chunkReader, out []byte, n128NoOp bool) error {
	j := 0
	for j < len(out) {
		b, err := r.readByte()
		if err != nil {
			return ErrTruncatedStream
		}
		n := int8(b)
		switch {
		case n >= 0: // literal bytes
			lit := make([]byte, int(n)+1)
			if err := r.readFull(lit); err != nil {
				return ErrTruncatedStream
			}
			j += copy(out[j:], lit)
		case n != -128 || !n128NoOp: // repeated byte
			v, err := r.readByte()
			if err != nil {
				return ErrTruncatedStream
			}
			run := 1 - int(n)
			if rem := len(out) - j; run > rem {
				run = rem
			}
			for i := 0; i < run; i++ {
				out[j+i] = v
			}
			j += run
		}
	}
	return nil
}

// mayaRLEDecompress fills out from the Maya RLE stream at r and returns the
// number of bytes produced. The control byte is unsigned: with the high bit
// set, the next byte is repeated (n&0x7F)+1 times; with it clear, that many
// bytes are copied literally.
//
// Once fewer than 128 output bytes remain, the control byte is peeked
// before being consumed and decompression stops early if the indicated run
// would not fit. This leaves the stream positioned at a run boundary so a
// later call with a fresh buffer can resume. Anything other than the
// expected output length is a failure for the caller; a short literal read
// returns -1.
func mayaRLEDecompress(r *chunkReader, out []byte) int64 {
	olen := int64(len(out))
	var j int64
	for j < olen {
		available := olen - j

		if available < 128 {
			p, err := r.peek(1)
			if err != nil || len(p) != 1 {
				break
			}
			if int64(p[0]&0x7F)+1 > available {
				break
			}
		}

		n, err := r.readByte()
		if err != nil {
			break
		}

		rr := int64(n&0x7F) + 1
		if n&0x80 == 0 {
			if err := r.readFull(out[j : j+rr]); err != nil {
				return -1
			}
		} else {
			v, err := r.readByte()
			if err != nil {
				break
			}
			for i := int64(0); i < rr; i++ {
				out[j+i] = v
			}
		}

		j += rr
	}
	return j
}
