package iff

import "errors"

var (
	ErrMalformedHeader    = errors.New("iff: malformed chunk header")
	ErrTruncatedStream    = errors.New("iff: truncated stream")
	ErrUnsupportedVariant = errors.New("iff: unsupported format variant")
	ErrInvalidTile        = errors.New("iff: invalid tile")
	ErrNoImage            = errors.New("iff: no decodable image found")
)
