package qoi

import "fmt"

type op uint8

const (
	opIndex op = iota
	opDiff
	opLuma
	opRun
	opRGB
	opRGBA
)

// chunk is one unit of the encoded stream. Which fields carry data depends on
// op:
//
//	opIndex  index
//	opDiff   dr, dg, db in [-2, 1]
//	opLuma   dg in [-32, 31], drdg and dbdg in [-8, 7]
//	opRun    run in [1, 62]
//	opRGB    px.R, px.G, px.B
//	opRGBA   px
type chunk struct {
	op    op
	px    rgba
	index byte
	dr    int8
	dg    int8
	db    int8
	drdg  int8
	dbdg  int8
	run   byte
}

func appendChunk(dst []byte, c chunk) []byte {
	switch c.op {
	case opIndex:
		return append(dst, TagIndex|c.index)
	case opDiff:
		return append(dst, TagDiff|byte(c.dr+2)<<4|byte(c.dg+2)<<2|byte(c.db+2))
	case opLuma:
		return append(dst, TagLuma|byte(c.dg+32), byte(c.drdg+8)<<4|byte(c.dbdg+8))
	case opRun:
		return append(dst, TagRun|(c.run-1))
	case opRGB:
		return append(dst, TagRGB, c.px.R, c.px.G, c.px.B)
	default:
		return append(dst, TagRGBA, c.px.R, c.px.G, c.px.B, c.px.A)
	}
}

// parseChunk reads the chunk at the start of src and returns it with the
// number of bytes it occupies. The full-byte RGB and RGBA tags take priority
// over the 2-bit tags, so every byte value parses.
func parseChunk(src []byte) (chunk, int, error) {
	if len(src) == 0 {
		return chunk{}, 0, ErrUnexpectedEndOfStream
	}
	b := src[0]

	switch b {
	case TagRGB:
		if len(src) < 4 {
			return chunk{}, 0, fmt.Errorf("%w: RGB chunk needs 4 bytes, have %d", ErrUnexpectedEndOfStream, len(src))
		}
		return chunk{op: opRGB, px: rgba{R: src[1], G: src[2], B: src[3]}}, 4, nil
	case TagRGBA:
		if len(src) < 5 {
			return chunk{}, 0, fmt.Errorf("%w: RGBA chunk needs 5 bytes, have %d", ErrUnexpectedEndOfStream, len(src))
		}
		return chunk{op: opRGBA, px: rgba{R: src[1], G: src[2], B: src[3], A: src[4]}}, 5, nil
	}

	switch b & tagMask {
	case TagIndex:
		return chunk{op: opIndex, index: b &^ tagMask}, 1, nil

	case TagDiff:
		return chunk{
			op: opDiff,
			dr: int8(b>>4&0b11) - 2,
			dg: int8(b>>2&0b11) - 2,
			db: int8(b&0b11) - 2,
		}, 1, nil

	case TagLuma:
		if len(src) < 2 {
			return chunk{}, 0, fmt.Errorf("%w: LUMA chunk needs 2 bytes, have %d", ErrUnexpectedEndOfStream, len(src))
		}
		return chunk{
			op:   opLuma,
			dg:   int8(b&^tagMask) - 32,
			drdg: int8(src[1]>>4) - 8,
			dbdg: int8(src[1]&0b1111) - 8,
		}, 2, nil

	default:
		return chunk{op: opRun, run: b&^tagMask + 1}, 1, nil
	}
}

// pixel resolves the pixel c stands for, given the running state. Delta
// arithmetic wraps modulo 256.
func (c chunk) pixel(prev rgba, cache *colorCache) rgba {
	switch c.op {
	case opIndex:
		return cache[c.index]
	case opDiff:
		return rgba{
			R: prev.R + byte(c.dr),
			G: prev.G + byte(c.dg),
			B: prev.B + byte(c.db),
			A: prev.A,
		}
	case opLuma:
		return rgba{
			R: prev.R + byte(c.dg+c.drdg),
			G: prev.G + byte(c.dg),
			B: prev.B + byte(c.dg+c.dbdg),
			A: prev.A,
		}
	case opRun:
		return prev
	case opRGB:
		return rgba{R: c.px.R, G: c.px.G, B: c.px.B, A: prev.A}
	default:
		return c.px
	}
}
