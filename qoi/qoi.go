// Package qoi implements the "Quite OK Image" format: a lossless, byte-oriented
// raster image compression scheme.
//
// Encode and Decode work on raw interleaved pixel buffers. EncodeImage and
// DecodeImage adapt them to the image package, and the format is registered
// with image.RegisterFormat so image.Decode recognizes QOI streams.
package qoi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

type Channels uint8

const (
	ChannelsRGB  Channels = 3
	ChannelsRGBA Channels = 4
)

func (c Channels) valid() bool {
	return c == ChannelsRGB || c == ChannelsRGBA
}

// ColorSpace is stored in the header and reported back by the decoder. The
// codec does not interpret it.
type ColorSpace uint8

const (
	// ColorSpaceSRGB is sRGB with linear alpha.
	ColorSpaceSRGB ColorSpace = 0
	// ColorSpaceLinear means all channels are linear.
	ColorSpaceLinear ColorSpace = 1
)

const (
	TagIndex byte = 0b00_000000
	TagDiff  byte = 0b01_000000
	TagLuma  byte = 0b10_000000
	TagRun   byte = 0b11_000000
	TagRGB   byte = 0b11111110
	TagRGBA  byte = 0b11111111

	tagMask byte = 0b11_000000
)

const (
	Magic = "qoif"

	// MaxPixels bounds width*height for both directions so a hostile header
	// cannot request an arbitrarily large allocation.
	MaxPixels = 400_000_000

	headerSize   = 14
	maxRunLength = 62
)

var endMarker = [8]byte{0, 0, 0, 0, 0, 0, 0, 1}

var (
	ErrParseHeader = errors.New("failed to parse QOI header")

	ErrHeaderTooShort        = fmt.Errorf("%w: header too short", ErrParseHeader)
	ErrBadMagic              = fmt.Errorf("%w: bad magic", ErrParseHeader)
	ErrInvalidDimensions     = errors.New("invalid image dimensions")
	ErrInvalidChannelCount   = errors.New("invalid channel count: must be 3 or 4")
	ErrBufferSizeMismatch    = errors.New("pixel buffer size does not match descriptor")
	ErrUnexpectedEndOfStream = errors.New("unexpected end of QOI stream")
)

// Descriptor describes the raw pixel buffer handed to Encode or produced by
// Decode.
type Descriptor struct {
	Width      uint32
	Height     uint32
	Channels   Channels
	ColorSpace ColorSpace
}

func (d Descriptor) pixels() int {
	return int(d.Width) * int(d.Height)
}

func (d Descriptor) validate() error {
	if d.Width == 0 || d.Height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, d.Width, d.Height)
	}
	if uint64(d.Width)*uint64(d.Height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidDimensions, d.Width, d.Height, MaxPixels)
	}
	if !d.Channels.valid() {
		return fmt.Errorf("%w: got %d", ErrInvalidChannelCount, d.Channels)
	}
	return nil
}

func appendHeader(dst []byte, d Descriptor) []byte {
	dst = append(dst, Magic...)
	dst = binary.BigEndian.AppendUint32(dst, d.Width)
	dst = binary.BigEndian.AppendUint32(dst, d.Height)
	return append(dst, byte(d.Channels), byte(d.ColorSpace))
}

// DecodeHeader parses and validates the 14 byte header at the start of data.
func DecodeHeader(data []byte) (Descriptor, error) {
	if len(data) < headerSize {
		return Descriptor{}, fmt.Errorf("%w: got %d bytes, need %d", ErrHeaderTooShort, len(data), headerSize)
	}
	if string(data[:4]) != Magic {
		return Descriptor{}, fmt.Errorf("%w: expected %q, got %q", ErrBadMagic, Magic, data[:4])
	}
	d := Descriptor{
		Width:      binary.BigEndian.Uint32(data[4:8]),
		Height:     binary.BigEndian.Uint32(data[8:12]),
		Channels:   Channels(data[12]),
		ColorSpace: ColorSpace(data[13]),
	}
	if err := d.validate(); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrParseHeader, err)
	}
	return d, nil
}

type rgba struct {
	R byte
	G byte
	B byte
	A byte
}

func (p rgba) index() int {
	return int((p.R*3 + p.G*5 + p.B*7 + p.A*11) % 64)
}

// colorCache holds, per slot, the most recently seen pixel hashing to it.
type colorCache [64]rgba

func (c *colorCache) add(p rgba) {
	c[p.index()] = p
}
