package qoi

import "fmt"

// Encode compresses a raw interleaved pixel buffer into a QOI stream.
//
// pixels holds desc.Width*desc.Height pixels in row-major order, each
// desc.Channels bytes wide. With three channels every pixel is treated as
// fully opaque.
func Encode(pixels []byte, desc Descriptor) ([]byte, error) {
	if err := desc.validate(); err != nil {
		return nil, err
	}
	stride := int(desc.Channels)
	want := uint64(desc.Width) * uint64(desc.Height) * uint64(stride)
	if uint64(len(pixels)) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrBufferSizeMismatch, len(pixels), want)
	}

	e := encoder{
		out:  make([]byte, 0, headerSize+desc.pixels()*(stride+1)+len(endMarker)),
		prev: rgba{0, 0, 0, 255},
	}
	e.out = appendHeader(e.out, desc)

	pixel := rgba{A: 255}
	for i := 0; i < len(pixels); i += stride {
		pixel.R = pixels[i]
		pixel.G = pixels[i+1]
		pixel.B = pixels[i+2]
		if stride == 4 {
			pixel.A = pixels[i+3]
		}
		e.writePixel(pixel)
	}

	if e.runLength > 0 {
		e.writeRunChunk()
	}
	e.out = append(e.out, endMarker[:]...)

	return e.out, nil
}

type encoder struct {
	out       []byte
	cache     colorCache
	prev      rgba
	runLength byte
}

func (e *encoder) isNewRun(next rgba) bool {
	return e.runLength == 0 && e.prev == next
}

func (e *encoder) canLengthenRun(next rgba) bool {
	return e.runLength > 0 && e.prev == next && e.runLength < maxRunLength
}

func diff(prev rgba, next rgba) (c chunk, ok bool) {
	dr := int8(next.R - prev.R)
	dg := int8(next.G - prev.G)
	db := int8(next.B - prev.B)
	if !isSmallDiff(dr) || !isSmallDiff(dg) || !isSmallDiff(db) {
		return chunk{}, false
	}
	return chunk{op: opDiff, dr: dr, dg: dg, db: db}, true
}

func diffLuma(prev rgba, next rgba) (c chunk, ok bool) {
	dg := int8(next.G - prev.G)
	drdg := int8(next.R-prev.R) - dg
	dbdg := int8(next.B-prev.B) - dg
	if !isSmallLumaDiff(dg, drdg, dbdg) {
		return chunk{}, false
	}
	return chunk{op: opLuma, dg: dg, drdg: drdg, dbdg: dbdg}, true
}

func isSmallDiff(d int8) bool {
	return d >= -2 && d <= 1
}

func isSmallLumaDiff(dg, drdg, dbdg int8) bool {
	return dg >= -32 && dg <= 31 &&
		drdg >= -8 && drdg <= 7 &&
		dbdg >= -8 && dbdg <= 7
}

// writePixel emits whatever chunk the pixel needs, or extends the pending run.
// Run pixels never touch the cache: a leading run of the initial previous
// pixel must leave its slot empty.
func (e *encoder) writePixel(pixel rgba) {
	index := pixel.index()

	switch {
	case e.isNewRun(pixel) || e.canLengthenRun(pixel):
		e.runLength++
		return

	case e.runLength > 0:
		e.writeRunChunk()
		e.writePixel(pixel)
		return

	case e.cache[index] == pixel:
		e.write(chunk{op: opIndex, index: byte(index)})

	case e.prev.A == pixel.A:
		if c, ok := diff(e.prev, pixel); ok {
			e.write(c)
			break
		}
		if c, ok := diffLuma(e.prev, pixel); ok {
			e.write(c)
			break
		}
		e.write(chunk{op: opRGB, px: pixel})

	default:
		e.write(chunk{op: opRGBA, px: pixel})
	}

	e.cache[index] = pixel
	e.prev = pixel
}

func (e *encoder) writeRunChunk() {
	e.write(chunk{op: opRun, run: e.runLength})
	e.runLength = 0
}

func (e *encoder) write(c chunk) {
	e.out = appendChunk(e.out, c)
}
