// Package iff implements a pure Go decoder for IFF raster images.
//
// The package reads the classic Electronic Arts IFF container (FORM ILBM
// planar bitmaps, FORM PBM chunky bitmaps, FORM ACBM contiguous bitmaps)
// including HAM6/HAM8, Extra-HalfBrite and 24/32-bit deep images, and the
// Maya dialect (FOR4 CIMG/TBMP) of tiled RGB/RGBA images with 8 or 16 bits
// per channel.
//
// Decoding:
//
//	img, err := iff.Decode(reader)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Textual annotations, resolution and embedded ICC/EXIF/XMP blobs can be
// retrieved alongside the pixels:
//
//	img, meta, err := iff.DecodeWithMetadata(reader)
//
// The package registers itself with the image package for automatic
// format detection:
//
//	import _ "github.com/ajroetker/go-iff"
//	img, _, err := image.Decode(reader)
//
// Encoding is not supported.
package iff
