// Package qoiz stores QOI streams inside a zstd frame (".qoi.zst").
//
// The frame holds an unmodified QOI stream, so Decompress output can be handed
// to any QOI decoder.
package qoiz

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/kropptrevor/qoi-codec/qoi"
)

var ErrNotQOI = errors.New("payload is not a QOI stream")

// frameMagic starts every zstd frame.
var frameMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// maxStreamSize is the largest valid QOI stream: a 14-byte header, one RGBA
// chunk per pixel and the 8-byte end marker.
const maxStreamSize = 14 + qoi.MaxPixels*5 + 8

type options struct {
	level zstd.EncoderLevel
}

type Option func(*options)

// WithLevel selects the zstd encoder level. The default is zstd.SpeedDefault.
func WithLevel(level zstd.EncoderLevel) Option {
	return func(o *options) {
		o.level = level
	}
}

func newOptions(opts []Option) options {
	o := options{level: zstd.SpeedDefault}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Encoders and the decoder are only used through EncodeAll/DecodeAll, which
// are safe for concurrent use.
var (
	encodersMu sync.Mutex
	encoders   = map[zstd.EncoderLevel]*zstd.Encoder{}

	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

func encoderFor(level zstd.EncoderLevel) (*zstd.Encoder, error) {
	encodersMu.Lock()
	defer encodersMu.Unlock()

	if enc, ok := encoders[level]; ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	encoders[level] = enc
	return enc, nil
}

func sharedDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil,
			zstd.WithDecoderMaxMemory(maxStreamSize),
			zstd.WithDecoderConcurrency(0),
		)
	})
	return decoder, decoderErr
}

// Encode compresses pixels with qoi.Encode and wraps the result in a zstd
// frame.
func Encode(pixels []byte, desc qoi.Descriptor, opts ...Option) ([]byte, error) {
	stream, err := qoi.Encode(pixels, desc)
	if err != nil {
		return nil, err
	}
	return Compress(stream, opts...)
}

// Decode accepts either a zstd-wrapped or a bare QOI stream and decodes it
// with qoi.Decode.
func Decode(data []byte, channels qoi.Channels) ([]byte, qoi.Descriptor, error) {
	stream := data
	if bytes.HasPrefix(data, frameMagic) {
		var err error
		if stream, err = Decompress(data); err != nil {
			return nil, qoi.Descriptor{}, err
		}
	}
	return qoi.Decode(stream, channels)
}

// Compress wraps an encoded QOI stream in a zstd frame.
func Compress(stream []byte, opts ...Option) ([]byte, error) {
	if !bytes.HasPrefix(stream, []byte(qoi.Magic)) {
		return nil, ErrNotQOI
	}
	o := newOptions(opts)
	enc, err := encoderFor(o.level)
	if err != nil {
		return nil, fmt.Errorf("qoiz: create encoder: %w", err)
	}
	return enc.EncodeAll(stream, make([]byte, 0, len(stream)/2)), nil
}

// Decompress unwraps a zstd frame and checks that it holds a QOI stream.
func Decompress(data []byte) ([]byte, error) {
	dec, err := sharedDecoder()
	if err != nil {
		return nil, fmt.Errorf("qoiz: create decoder: %w", err)
	}
	stream, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("qoiz: decompress: %w", err)
	}
	if !bytes.HasPrefix(stream, []byte(qoi.Magic)) {
		return nil, ErrNotQOI
	}
	return stream, nil
}
