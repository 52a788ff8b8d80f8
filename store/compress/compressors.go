package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

const (
	flateID byte = 1
	zstdID  byte = 2
)

// Compressors by header byte, for reading.
var compressors = map[byte]Compressor{
	flateID: Flate{Level: flate.DefaultCompression},
	zstdID:  &Zstd{},
}

// Flate is a Compressor implementing RFC1951 DEFLATE compression.
type Flate struct {
	Level int
}

func (Flate) ID() byte { return flateID }

func (f Flate) Compress(inp []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	level := f.Level
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = flate.DefaultCompression
	}
	w, err := flate.NewWriter(buf, level)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(inp); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Flate) Uncompress(inp []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(inp))
	defer r.Close()
	return io.ReadAll(r)
}

// Zstd is a Compressor implementing Zstandard compression.
// Its zero value uncompresses but uses default settings to compress.
type Zstd struct {
	enc *zstd.Encoder
}

var (
	defaultEncoder, _ = zstd.NewWriter(nil)
	decoder, _        = zstd.NewReader(nil)
)

// NewZstd produces a Zstd compressor.
// The level is on zstd's usual 1-22 scale; other values mean the default.
func NewZstd(level int) (*Zstd, error) {
	if level < 1 || level > 22 {
		return &Zstd{}, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd encoder")
	}
	return &Zstd{enc: enc}, nil
}

func (*Zstd) ID() byte { return zstdID }

func (z *Zstd) Compress(inp []byte) ([]byte, error) {
	enc := z.enc
	if enc == nil {
		enc = defaultEncoder
	}
	return enc.EncodeAll(inp, nil), nil
}

func (*Zstd) Uncompress(inp []byte) ([]byte, error) {
	return decoder.DecodeAll(inp, nil)
}
