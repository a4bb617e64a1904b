package iff

import "io"

// chunkReader is the positioned byte cursor the parser and the pixel
// reconstructors share. Every read advances the underlying stream, so a
// chunkReader must never be used by two decodes at once.
type chunkReader struct {
	rs io.ReadSeeker
}

func newChunkReader(rs io.ReadSeeker) *chunkReader {
	return &chunkReader{rs: rs}
}

// pos returns the current absolute stream position.
func (r *chunkReader) pos() int64 {
	p, err := r.rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	return p
}

// seekTo moves the cursor to the given absolute position.
func (r *chunkReader) seekTo(pos int64) error {
	if _, err := r.rs.Seek(pos, io.SeekStart); err != nil {
		return ErrTruncatedStream
	}
	return nil
}

// size returns the total stream length without disturbing the position.
func (r *chunkReader) size() (int64, error) {
	cur, err := r.rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := r.rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := r.rs.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

// readFull fills p completely or reports ErrTruncatedStream.
func (r *chunkReader) readFull(p []byte) error {
	if _, err := io.ReadFull(r.rs, p); err != nil {
		return ErrTruncatedStream
	}
	return nil
}

// read reads up to len(p) bytes, returning the count actually read.
func (r *chunkReader) read(p []byte) (int, error) {
	n, err := io.ReadFull(r.rs, p)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}
	return n, err
}

func (r *chunkReader) readByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r.rs, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// peek returns the next n bytes without consuming them. Short streams
// return a short slice.
func (r *chunkReader) peek(n int) ([]byte, error) {
	pos := r.pos()
	if pos < 0 {
		return nil, ErrTruncatedStream
	}
	buf := make([]byte, n)
	got, err := r.read(buf)
	if err != nil {
		return nil, err
	}
	if err := r.seekTo(pos); err != nil {
		return nil, err
	}
	return buf[:got], nil
}

// atEnd reports whether the cursor has reached the end of the stream.
func (r *chunkReader) atEnd() bool {
	b, err := r.peek(1)
	return err != nil || len(b) == 0
}
