package cntio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec ID bytes, appended to each encoded block.
const (
	blockRaw    = 0
	blockSnappy = 1
	blockZstd   = 2
	blockLZ4    = 3
)

// Compression is the compression codec used for new blocks.
type Compression byte

// Supported compression codecs.
const (
	SnappyCompression Compression = iota
	NoCompression
	ZstdCompression
	LZ4Compression
	unknownCompression
)

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c < unknownCompression
}

func (c Compression) codec() BlockCodec {
	switch c {
	case SnappyCompression:
		return snappyCodec{}
	case ZstdCompression:
		return zstdCodec{}
	case LZ4Compression:
		return lz4Codec{}
	default:
		return rawCodec{}
	}
}

// BlockCodec losslessly encodes one block of interleaved float32 samples
// into an opaque byte sequence and back. Block boundaries are chosen by
// the writer, never by the codec. Custom codecs can be plugged in via
// RegisterBlockCodec.
type BlockCodec interface {
	// ID is the single byte identifying the codec on disk.
	ID() byte

	// Encode appends the encoded form of samples to dst and returns the
	// extended slice. The sample slice holds full interleaved frames,
	// sample-major and channel-minor.
	Encode(dst []byte, samples []float32, channels int) ([]byte, error)

	// Decode appends samples x channels decoded values to dst and returns
	// the extended slice. It must fail with ErrBadBlock if data does not
	// decode to the declared sample count.
	Decode(dst []float32, data []byte, samples, channels int) ([]float32, error)
}

var blockCodecs = map[byte]BlockCodec{
	blockRaw:    rawCodec{},
	blockSnappy: snappyCodec{},
	blockZstd:   zstdCodec{},
	blockLZ4:    lz4Codec{},
}

// RegisterBlockCodec registers a custom block codec, replacing any codec
// previously registered under the same ID. Not safe for concurrent use
// with open sessions.
func RegisterBlockCodec(c BlockCodec) {
	blockCodecs[c.ID()] = c
}

// encodeBlock encodes samples with the requested compression and appends
// the result, including the trailing codec byte, to dst. Codecs which
// fail to shave off at least a quarter of the raw size are abandoned for
// the raw encoding, so the trailing byte is authoritative on decode.
func encodeBlock(dst []byte, samples []float32, channels int, c Compression) ([]byte, error) {
	codec := c.codec()
	if codec.ID() != blockRaw {
		mark := len(dst)
		enc, err := codec.Encode(dst, samples, channels)
		if rawLen := len(samples) * 4; err == nil && len(enc)-mark < rawLen-rawLen/4 {
			return append(enc, codec.ID()), nil
		}
		dst = dst[:mark]
	}

	enc, err := rawCodec{}.Encode(dst, samples, channels)
	if err != nil {
		return nil, err
	}
	return append(enc, blockRaw), nil
}

// decodeBlock decodes a single encoded block (with trailing codec byte)
// holding the declared number of samples and appends the values to dst.
func decodeBlock(dst []float32, data []byte, samples, channels int) ([]float32, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty encoded block", ErrBadBlock)
	}

	id := data[len(data)-1]
	codec, ok := blockCodecs[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec ID %d", ErrBadBlock, id)
	}
	return codec.Decode(dst, data[:len(data)-1], samples, channels)
}

// --------------------------------------------------------------------

// rawCodec stores samples as little-endian IEEE-754 bits.
type rawCodec struct{}

func (rawCodec) ID() byte { return blockRaw }

func (rawCodec) Encode(dst []byte, samples []float32, _ int) ([]byte, error) {
	return packFloats(dst, samples), nil
}

func (rawCodec) Decode(dst []float32, data []byte, samples, channels int) ([]float32, error) {
	return unpackFloats(dst, data, samples*channels)
}

// snappyCodec compresses the raw encoding with snappy.
type snappyCodec struct{}

func (snappyCodec) ID() byte { return blockSnappy }

func (snappyCodec) Encode(dst []byte, samples []float32, _ int) ([]byte, error) {
	plain := packFloats(fetchBuffer(0)[:0], samples)
	defer releaseBuffer(plain)

	comp := fetchBuffer(snappy.MaxEncodedLen(len(plain)))
	defer releaseBuffer(comp)

	return append(dst, snappy.Encode(comp, plain)...), nil
}

func (snappyCodec) Decode(dst []float32, data []byte, samples, channels int) ([]float32, error) {
	sz, err := snappy.DecodedLen(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBlock, err)
	}

	plain := fetchBuffer(sz)
	defer releaseBuffer(plain)

	if plain, err = snappy.Decode(plain, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBlock, err)
	}
	return unpackFloats(dst, plain, samples*channels)
}

// zstdCodec compresses the raw encoding with zstd.
type zstdCodec struct{}

var (
	zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	zstdDec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

func (zstdCodec) ID() byte { return blockZstd }

func (zstdCodec) Encode(dst []byte, samples []float32, _ int) ([]byte, error) {
	plain := packFloats(fetchBuffer(0)[:0], samples)
	defer releaseBuffer(plain)

	return zstdEnc.EncodeAll(plain, dst), nil
}

func (zstdCodec) Decode(dst []float32, data []byte, samples, channels int) ([]float32, error) {
	plain, err := zstdDec.DecodeAll(data, fetchBuffer(0)[:0])
	defer releaseBuffer(plain)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBlock, err)
	}
	return unpackFloats(dst, plain, samples*channels)
}

// lz4Codec compresses the raw encoding with lz4.
type lz4Codec struct{}

func (lz4Codec) ID() byte { return blockLZ4 }

func (lz4Codec) Encode(dst []byte, samples []float32, _ int) ([]byte, error) {
	plain := packFloats(fetchBuffer(0)[:0], samples)
	defer releaseBuffer(plain)

	comp := fetchBuffer(lz4.CompressBlockBound(len(plain)))
	defer releaseBuffer(comp)

	var cpr lz4.Compressor
	n, err := cpr.CompressBlock(plain, comp)
	if err != nil || n == 0 { // n == 0 means incompressible
		return nil, fmt.Errorf("%w: incompressible block", ErrBadBlock)
	}
	return append(dst, comp[:n]...), nil
}

func (lz4Codec) Decode(dst []float32, data []byte, samples, channels int) ([]float32, error) {
	plain := fetchBuffer(samples * channels * 4)
	defer releaseBuffer(plain)

	n, err := lz4.UncompressBlock(data, plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBlock, err)
	}
	return unpackFloats(dst, plain[:n], samples*channels)
}

// --------------------------------------------------------------------

func packFloats(dst []byte, samples []float32) []byte {
	var tmp [4]byte
	for _, s := range samples {
		binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(s))
		dst = append(dst, tmp[:]...)
	}
	return dst
}

func unpackFloats(dst []float32, data []byte, count int) ([]float32, error) {
	if want := count * 4; len(data) != want {
		return nil, fmt.Errorf("%w: declared %d bytes, got %d", ErrBadBlock, want, len(data))
	}
	for n := 0; n+4 <= len(data); n += 4 {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(data[n:])))
	}
	return dst, nil
}
