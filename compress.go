package enet

import (
	"bytes"
	"compress/flate"
	"io"

	"github.com/pkg/errors"
)

// Compressor is the pluggable compression hook named in §4.10/§9: when set
// on a Host, the command section of each outgoing datagram (everything
// after ProtocolHeader) is compressed, and sent compressed only when the
// result is smaller, with headerFlagCompressed marking such a datagram for
// the receiver. No compression library (klauspost/compress,
// snappy, lz4, zstd, ...) appears anywhere in the examples pack, so this
// stays on the standard library's compress/flate rather than inventing a
// dependency with no grounding.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// flateCompressor is the default Compressor, using DEFLATE at its default
// compression level.
type flateCompressor struct{}

// NewFlateCompressor returns a Compressor backed by compress/flate.
func NewFlateCompressor() Compressor { return flateCompressor{} }

func (flateCompressor) Compress(data []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	w, err := flate.NewWriter(buf, flate.DefaultCompression)
	if err != nil {
		return nil, errors.Wrap(err, "enet: create flate writer")
	}
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, "enet: flate compress")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "enet: close flate writer")
	}
	return buf.Bytes(), nil
}

func (flateCompressor) Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "enet: flate decompress")
	}
	return out, nil
}
