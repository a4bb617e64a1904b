package iff

import (
	"encoding/binary"
	"fmt"
)

// Chunk tags (Standard)
const (
	catTag  = "CAT "
	fillTag = "    "
	formTag = "FORM"
	listTag = "LIST"
	propTag = "PROP"
)

// Chunk tags (Maya 4-byte aligned counterparts)
const (
	cat4Tag = "CAT4"
	fil4Tag = "FIL4"
	for4Tag = "FOR4"
	lis4Tag = "LIS4"
	pro4Tag = "PRO4"
)

// FORM ILBM/PBM/ACBM chunks
const (
	abitTag = "ABIT"
	bmhdTag = "BMHD"
	bodyTag = "BODY"
	camgTag = "CAMG"
	cmapTag = "CMAP"
	cmykTag = "CMYK"
	dpiTag  = "DPI "
	shamTag = "SHAM" // undocumented
)

// FOR4 CIMG chunks (Maya)
const (
	rgbaTag = "RGBA"
	tbhdTag = "TBHD"
)

// Annotation and metadata chunks
const (
	annoTag = "ANNO"
	authTag = "AUTH"
	copyTag = "(c) "
	dateTag = "DATE"
	exifTag = "EXIF"
	fverTag = "FVER"
	histTag = "HIST"
	iccnTag = "ICCN"
	iccpTag = "ICCP"
	nameTag = "NAME"
	versTag = "VERS"
	xmp0Tag = "XMP0"
)

// FORM content types
const (
	acbmFormType = "ACBM"
	cimgFormType = "CIMG"
	ilbmFormType = "ILBM"
	pbmFormType  = "PBM "
	tbmpFormType = "TBMP"
)

const (
	// maxRecursionDepth bounds chunk nesting: container chunks deeper than
	// this are read as opaque leaves instead of recursing, so malformed
	// files cannot exhaust the stack.
	maxRecursionDepth = 10

	// maxCacheBytes caps the payload cached on a node; larger payloads are
	// re-read from the stream on demand.
	maxCacheBytes = 8 * 1024 * 1024
)

// Chunk is one node of a parsed IFF tree: a 4-byte tag, a big-endian
// 32-bit payload size and the payload itself, possibly a sequence of
// nested chunks. A Chunk is immutable once parsing completes.
type Chunk struct {
	tag      string // 4 ASCII bytes
	size     uint32
	align    int   // sibling alignment quantum (2 or 4)
	dataPos  int64 // absolute payload offset
	depth    int   // 1-based nesting level
	data     []byte
	form     string // content type for container chunks, "" otherwise
	tiles    tileBounds
	children []*Chunk
}

// tileBounds is the decoded position header of a Maya RGBA tile chunk.
type tileBounds struct {
	x0, y0, x1, y1 int
	valid          bool
}

// Tag returns the chunk's 4-byte identifier.
func (c *Chunk) Tag() string { return c.tag }

// Size returns the declared payload size in bytes.
func (c *Chunk) Size() uint32 { return c.size }

// Data returns the cached payload. Payloads over 8 MiB are not cached and
// must be fetched with readRawData.
func (c *Chunk) Data() []byte { return c.data }

// Children returns the nested chunks, in file order.
func (c *Chunk) Children() []*Chunk { return c.children }

// FormType returns the 4-byte content type of a container chunk
// (e.g. "ILBM" for a FORM, "CIMG" for a FOR4).
func (c *Chunk) FormType() string { return c.form }

// validTag reports whether a tag obeys the IFF rule: four bytes in the
// printable range 0x20..0x7E, and no space before a printing character
// (trailing spaces are fine, so "DPI " is valid but " BOD" is not).
func validTag(tag string) bool {
	if len(tag) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if tag[i] < 0x20 || tag[i] > 0x7E {
			return false
		}
	}
	if tag[0] == ' ' {
		return false
	}
	return true
}

// chunkVersion extracts the version convention from a tag: a 4th byte of
// '2'..'9' marks version N of the 3-byte tag family, anything else is
// version 1.
func chunkVersion(tag string) int {
	if len(tag) != 4 {
		return 0
	}
	if tag[3] >= '2' && tag[3] <= '9' {
		return int(tag[3] - '0')
	}
	return 1
}

// isChunkType reports whether the chunk is of type tag, directly or as a
// versioned variant: "FOR4" is of type "FORM" because the 3-byte prefixes
// match and the chunk's own tag carries a version digit.
func (c *Chunk) isChunkType(tag string) bool {
	if c.tag == tag {
		return true
	}
	return len(tag) == 4 && c.tag[:3] == tag[:3] && chunkVersion(c.tag) > 1
}

// isContainerType reports whether the chunk belongs to one of the grouping
// families that establish their own child alignment.
func (c *Chunk) isContainerType() bool {
	return c.isChunkType(catTag) ||
		c.isChunkType(fillTag) ||
		c.isChunkType(formTag) ||
		c.isChunkType(listTag) ||
		c.isChunkType(propTag)
}

type payloadReader func(c *Chunk, r *chunkReader) error

// chunkSpec drives the static tag dispatch table: the alignment a tag
// establishes for its children and following siblings (0 = inherit) and
// the reader for its payload (nil leaves the payload unread).
type chunkSpec struct {
	align int
	parse payloadReader
}

var chunkSpecs map[string]chunkSpec

// The table refers to readContainer, which refers back to the table
// through parseChunks, so it is populated in init to break the
// initialization cycle.
func init() {
	chunkSpecs = map[string]chunkSpec{
		catTag:  {align: 2, parse: (*Chunk).readContainer},
		fillTag: {align: 2},
		formTag: {align: 2, parse: (*Chunk).readContainer},
		listTag: {align: 2, parse: (*Chunk).readContainer},
		propTag: {align: 2, parse: (*Chunk).readContainer},

		cat4Tag: {align: 4, parse: (*Chunk).readContainer},
		fil4Tag: {align: 4},
		for4Tag: {align: 4, parse: (*Chunk).readContainer},
		lis4Tag: {align: 4, parse: (*Chunk).readContainer},
		pro4Tag: {align: 4, parse: (*Chunk).readContainer},

		bmhdTag: {parse: (*Chunk).cachePayload},
		camgTag: {parse: (*Chunk).cachePayload},
		cmapTag: {parse: (*Chunk).cachePayload},
		cmykTag: {parse: (*Chunk).cachePayload},
		dpiTag:  {parse: (*Chunk).cachePayload},
		shamTag: {parse: (*Chunk).cachePayload},

		// BODY/ABIT pixel data is streamed on demand, never cached.
		abitTag: {},
		bodyTag: {},

		tbhdTag: {align: 4, parse: (*Chunk).cachePayload},
		rgbaTag: {align: 4, parse: (*Chunk).readTileBounds},

		annoTag: {parse: (*Chunk).cachePayload},
		authTag: {parse: (*Chunk).cachePayload},
		copyTag: {parse: (*Chunk).cachePayload},
		dateTag: {parse: (*Chunk).cachePayload},
		exifTag: {parse: (*Chunk).cachePayload},
		fverTag: {parse: (*Chunk).cachePayload},
		histTag: {parse: (*Chunk).cachePayload},
		iccnTag: {parse: (*Chunk).cachePayload},
		iccpTag: {parse: (*Chunk).cachePayload},
		nameTag: {parse: (*Chunk).cachePayload},
		versTag: {parse: (*Chunk).cachePayload},
		xmp0Tag: {parse: (*Chunk).cachePayload},
	}
}

// readInfo consumes the 8-byte chunk header and records the payload
// position.
func (c *Chunk) readInfo(r *chunkReader) error {
	var hdr [8]byte
	if err := r.readFull(hdr[:]); err != nil {
		return err
	}
	c.tag = string(hdr[0:4])
	if !validTag(c.tag) {
		return ErrMalformedHeader
	}
	c.size = binary.BigEndian.Uint32(hdr[4:8])
	c.dataPos = r.pos()
	return nil
}

// position seeks to the next sibling: payload start plus declared size,
// rounded up to the alignment quantum. A position that does not advance
// past the bytes already consumed means the size field is lying.
func (c *Chunk) position(r *chunkReader) error {
	pos := c.dataPos + int64(c.size)
	if rem := pos % int64(c.align); rem != 0 {
		pos += int64(c.align) - rem
	}
	if pos < r.pos() {
		return ErrMalformedHeader
	}
	return r.seekTo(pos)
}

// cachePayload reads the whole payload onto the node, unless it exceeds
// the cache cap, in which case the data stays on disk and accessors fall
// back to readRawData.
func (c *Chunk) cachePayload(r *chunkReader) error {
	if c.size > maxCacheBytes {
		return nil
	}
	data := make([]byte, c.size)
	if err := r.readFull(data); err != nil {
		return err
	}
	c.data = data
	return nil
}

// readRawData reads size payload bytes starting at relPos, bypassing the
// cache. size -1 means the rest of the chunk.
func (c *Chunk) readRawData(r *chunkReader, relPos, size int64) ([]byte, error) {
	if relPos < 0 || relPos > int64(c.size) {
		return nil, ErrTruncatedStream
	}
	if err := c.seek(r, relPos); err != nil {
		return nil, err
	}
	if size < 0 || size > int64(c.size)-relPos {
		size = int64(c.size) - relPos
	}
	data := make([]byte, size)
	if err := r.readFull(data); err != nil {
		return nil, err
	}
	return data, nil
}

// seek positions the stream relative to the payload start.
func (c *Chunk) seek(r *chunkReader, relPos int64) error {
	return r.seekTo(c.dataPos + relPos)
}

// readContainer reads the 4-byte content type of a grouping chunk and, for
// the image-bearing content types, parses the nested chunks.
func (c *Chunk) readContainer(r *chunkReader) error {
	if c.size < 4 {
		return ErrMalformedHeader
	}
	var ft [4]byte
	if err := r.readFull(ft[:]); err != nil {
		return err
	}
	c.form = string(ft[:])

	descend := true
	switch c.tag {
	case formTag:
		descend = c.form == ilbmFormType || c.form == pbmFormType || c.form == acbmFormType
	case for4Tag:
		descend = c.form == cimgFormType || c.form == tbmpFormType
	}
	if !descend {
		return nil
	}

	children, err := parseChunks(r, c.dataPos+int64(c.size), c.align, c.depth, false)
	if err != nil {
		return err
	}
	c.children = children
	return nil
}

// readTileBounds decodes the four inclusive tile coordinates that prefix a
// Maya RGBA tile payload.
func (c *Chunk) readTileBounds(r *chunkReader) error {
	if c.size < 8 {
		return ErrMalformedHeader
	}
	var b [8]byte
	if err := r.readFull(b[:]); err != nil {
		return err
	}
	x0 := int(binary.BigEndian.Uint16(b[0:2]))
	y0 := int(binary.BigEndian.Uint16(b[2:4]))
	x1 := int(binary.BigEndian.Uint16(b[4:6]))
	y1 := int(binary.BigEndian.Uint16(b[6:8]))
	if x0 > x1 || y0 > y1 {
		return ErrInvalidTile
	}
	c.tiles = tileBounds{x0: x0, y0: y0, x1: x1, y1: y1, valid: true}
	return nil
}

// parseChunks reads a sibling sequence until limit. align is the quantum
// inherited from the enclosing container; a container chunk in the
// sequence replaces it for itself and for the siblings that follow it
// (some Maya writers emit unknown chunks after a FOR4 that must be skipped
// with 4-byte padding). At the top level, garbage trailing the first root
// chunk is tolerated.
func parseChunks(r *chunkReader, limit int64, align, depth int, top bool) ([]*Chunk, error) {
	if depth > maxRecursionDepth {
		return nil, nil
	}

	var list []*Chunk
	for {
		pos := r.pos()
		if pos < 0 || pos+8 > limit {
			break
		}

		c := &Chunk{align: align, depth: depth + 1}
		if err := c.readInfo(r); err != nil {
			if top && len(list) > 0 {
				break // trailing garbage after the root
			}
			return nil, err
		}

		spec, known := chunkSpecs[c.tag]
		switch {
		case known && spec.align != 0:
			c.align = spec.align
			align = c.align
		case c.isContainerType():
			// Versioned container variant outside the table (FOR2..FOR9
			// and friends): version >= 2 marks the 4-byte aligned dialect.
			c.align = 4
			align = c.align
		}

		parse := spec.parse
		if c.depth > maxRecursionDepth {
			// Recursion guard tripped: consume the chunk as an opaque
			// leaf so the file can still be walked.
			parse = nil
		}
		if parse != nil {
			if err := parse(c, r); err != nil {
				return nil, err
			}
		}

		if err := c.position(r); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, nil
}

// readChunkTree parses the root chunk sequence of a stream positioned at
// the start of the container.
func readChunkTree(r *chunkReader) ([]*Chunk, error) {
	end, err := r.size()
	if err != nil {
		return nil, ErrTruncatedStream
	}
	chunks, err := parseChunks(r, end, 2, 0, true)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrMalformedHeader
	}
	return chunks, nil
}

// searchChunks collects every chunk with the given tag, depth first in
// document order.
func searchChunks(chunks []*Chunk, tag string) []*Chunk {
	var list []*Chunk
	for _, c := range chunks {
		if c.tag == tag {
			list = append(list, c)
		}
		list = append(list, searchChunks(c.children, tag)...)
	}
	return list
}

// firstChunk returns the first chunk with the given tag, or nil.
func firstChunk(chunks []*Chunk, tag string) *Chunk {
	for _, c := range chunks {
		if c.tag == tag {
			return c
		}
		if f := firstChunk(c.children, tag); f != nil {
			return f
		}
	}
	return nil
}

func (c *Chunk) String() string {
	return fmt.Sprintf("%s[%d]", c.tag, c.size)
}
