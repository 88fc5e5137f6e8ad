package qoi

import "fmt"

// Decode decompresses a QOI stream into a raw interleaved pixel buffer.
//
// The returned buffer uses channels bytes per pixel regardless of the channel
// count stored in the header: alpha is dropped for ChannelsRGB and set from the
// stream (255 for three-channel streams) for ChannelsRGBA. A channels value of
// zero selects the header's count. The returned Descriptor always reports the
// header as stored.
//
// Decoding stops once every pixel is produced; the trailing end marker is not
// required.
func Decode(data []byte, channels Channels) ([]byte, Descriptor, error) {
	desc, err := DecodeHeader(data)
	if err != nil {
		return nil, Descriptor{}, err
	}
	if channels == 0 {
		channels = desc.Channels
	}
	if !channels.valid() {
		return nil, Descriptor{}, fmt.Errorf("%w: requested %d", ErrInvalidChannelCount, channels)
	}

	// Each chunk byte yields at most one full run.
	if body := uint64(len(data) - headerSize); body*maxRunLength < uint64(desc.pixels()) {
		return nil, Descriptor{}, fmt.Errorf("%w: %d bytes cannot hold %d pixels", ErrUnexpectedEndOfStream, body, desc.pixels())
	}

	d := decoder{
		src:  data[headerSize:],
		prev: rgba{0, 0, 0, 255},
	}
	out := make([]byte, desc.pixels()*int(channels))
	if err := d.decodePixels(out, int(channels)); err != nil {
		return nil, Descriptor{}, err
	}
	return out, desc, nil
}

type decoder struct {
	src   []byte
	pos   int
	cache colorCache
	prev  rgba
}

func (d *decoder) decodePixels(out []byte, stride int) error {
	total := len(out) / stride
	for n := 0; n < total; {
		c, size, err := parseChunk(d.src[d.pos:])
		if err != nil {
			return fmt.Errorf("after %d of %d pixels: %w", n, total, err)
		}
		d.pos += size

		pixel := c.pixel(d.prev, &d.cache)
		d.prev = pixel

		count := 1
		if c.op == opRun {
			count = min(int(c.run), total-n)
		} else {
			d.cache.add(pixel)
		}
		for ; count > 0; count-- {
			putPixel(out[n*stride:], pixel, stride)
			n++
		}
	}
	return nil
}

func putPixel(dst []byte, p rgba, stride int) {
	dst[0] = p.R
	dst[1] = p.G
	dst[2] = p.B
	if stride == 4 {
		dst[3] = p.A
	}
}
