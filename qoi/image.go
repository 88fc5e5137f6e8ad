package qoi

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
)

func init() {
	image.RegisterFormat("qoi", Magic, DecodeImage, DecodeConfig)
}

// Options configures EncodeImage. A nil *Options writes four channels tagged
// ColorSpaceSRGB.
type Options struct {
	// Channels defaults to ChannelsRGBA when zero. ChannelsRGB drops alpha.
	Channels   Channels
	ColorSpace ColorSpace
}

// EncodeImage writes m to w as a QOI stream.
func EncodeImage(w io.Writer, m image.Image, o *Options) error {
	ch := ChannelsRGBA
	cs := ColorSpaceSRGB
	if o != nil {
		if o.Channels != 0 {
			ch = o.Channels
		}
		cs = o.ColorSpace
	}

	rect := m.Bounds()
	if uint64(rect.Dx()) > math.MaxUint32 || uint64(rect.Dy()) > math.MaxUint32 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, rect.Dx(), rect.Dy())
	}
	desc := Descriptor{
		Width:      uint32(rect.Dx()),
		Height:     uint32(rect.Dy()),
		Channels:   ch,
		ColorSpace: cs,
	}
	if err := desc.validate(); err != nil {
		return err
	}

	data, err := Encode(rawPixels(m, ch), desc)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func newRGBA(c color.Color) rgba {
	nrgba := color.NRGBAModel.Convert(c).(color.NRGBA)
	return rgba{R: nrgba.R, G: nrgba.G, B: nrgba.B, A: nrgba.A}
}

// rawPixels flattens m into row-major, non-premultiplied bytes with ch bytes
// per pixel.
func rawPixels(m image.Image, ch Channels) []byte {
	rect := m.Bounds()
	stride := int(ch)
	pix := make([]byte, 0, rect.Dx()*rect.Dy()*stride)

	if src, ok := m.(*image.NRGBA); ok {
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			row := src.Pix[src.PixOffset(rect.Min.X, y):src.PixOffset(rect.Max.X, y)]
			if ch == ChannelsRGBA {
				pix = append(pix, row...)
				continue
			}
			for i := 0; i < len(row); i += 4 {
				pix = append(pix, row[i], row[i+1], row[i+2])
			}
		}
		return pix
	}

	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			p := newRGBA(m.At(x, y))
			pix = append(pix, p.R, p.G, p.B)
			if ch == ChannelsRGBA {
				pix = append(pix, p.A)
			}
		}
	}
	return pix
}

// DecodeImage reads a QOI stream from r and returns it as an *image.NRGBA.
func DecodeImage(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	pix, desc, err := Decode(data, ChannelsRGBA)
	if err != nil {
		return nil, err
	}
	return &image.NRGBA{
		Pix:    pix,
		Stride: 4 * int(desc.Width),
		Rect:   image.Rect(0, 0, int(desc.Width), int(desc.Height)),
	}, nil
}

// DecodeConfig returns the dimensions of a QOI image without decoding it.
func DecodeConfig(r io.Reader) (image.Config, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return image.Config{}, fmt.Errorf("%w: %w", ErrHeaderTooShort, err)
		}
		return image.Config{}, err
	}
	desc, err := DecodeHeader(header[:])
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: color.NRGBAModel,
		Width:      int(desc.Width),
		Height:     int(desc.Height),
	}, nil
}
