package cntio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// Version is the container engine version.
const Version = "4.0.0"

var magic = []byte{137, 67, 78, 84, 13, 10, 26, 10}

const (
	formatVersion = 1

	headerSize = 48

	flagLarge = 1 << 0
)

// Chunk tags as they appear in the chunk table.
var (
	tagChannels = [4]byte{'c', 'h', 'a', 'n'}
	tagBlocks   = [4]byte{'b', 'l', 'k', 's'}
	tagInfo     = [4]byte{'i', 'n', 'f', 'o'}
	tagTriggers = [4]byte{'t', 'r', 'g', 's'}
)

// Failure kinds. Errors returned by this package wrap one of these
// sentinels and can be tested with errors.Is.
var (
	// ErrCorrupt is returned when the container framing cannot be trusted:
	// bad magic, truncated or overlapping chunks, missing mandatory chunks.
	ErrCorrupt = errors.New("cntio: corrupt container")

	// ErrClosed is returned when a session or builder is used after Close.
	ErrClosed = errors.New("cntio: is closed")

	// ErrInvalid is returned for malformed arguments.
	ErrInvalid = errors.New("cntio: invalid argument")

	// ErrIndex is returned for channel/trigger indexes outside [0, count).
	ErrIndex = errors.New("cntio: index out of range")

	// ErrRange is returned for sample ranges exceeding the recorded length.
	ErrRange = errors.New("cntio: sample range out of bounds")

	// ErrBadBlock is returned when an encoded sample block does not decode
	// to its declared size.
	ErrBadBlock = errors.New("cntio: bad block")
)

var errBadMagic = fmt.Errorf("%w: bad magic byte sequence", ErrCorrupt)

// Variant selects the chunk table offset width. It is fixed at file
// creation time and recorded in the header.
type Variant uint8

// Supported variants.
const (
	// Legacy stores chunk and block offsets as 32-bit fields and is limited
	// to 4GiB files.
	Legacy Variant = iota

	// Large is the RF64-style variant with 64-bit offset fields.
	Large
)

func (v Variant) String() string {
	if v == Large {
		return "large"
	}
	return "legacy"
}

// offsetWidth is the on-disk width of offset/length fields.
func (v Variant) offsetWidth() int {
	if v == Large {
		return 8
	}
	return 4
}

// blockInfo describes one encoded sample block.
type blockInfo struct {
	Offset  int64  // byte offset of the encoded block
	Length  uint32 // encoded length in bytes, incl. the codec byte
	First   uint64 // index of the first sample in the block
	Samples uint32 // number of samples in the block
}

// chunkInfo locates one typed chunk within the container.
type chunkInfo struct {
	Tag    [4]byte
	Offset int64
	Length int64
}

// --------------------------------------------------------------------

func appendUvarint(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	return append(dst, tmp[:binary.PutUvarint(tmp[:], v)]...)
}

func appendVarint(dst []byte, v int64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	return append(dst, tmp[:binary.PutVarint(tmp[:], v)]...)
}

// appendString appends a mandatory string as uvarint(len) + bytes.
func appendString(dst []byte, s string) []byte {
	return append(appendUvarint(dst, uint64(len(s))), s...)
}

// appendOptString appends an optional string as uvarint(len+1) + bytes,
// with a plain zero marking an absent field.
func appendOptString(dst []byte, s string, ok bool) []byte {
	if !ok {
		return append(dst, 0)
	}
	return append(appendUvarint(dst, uint64(len(s)+1)), s...)
}

// byteReader is a cursor over a chunk payload. Reads past the end of the
// payload indicate a corrupt container.
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) more() bool { return r.pos < len(r.data) }

func (r *byteReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: truncated chunk payload", ErrCorrupt)
	}
	r.pos += n
	return v, nil
}

func (r *byteReader) varint() (int64, error) {
	v, n := binary.Varint(r.data[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: truncated chunk payload", ErrCorrupt)
	}
	r.pos += n
	return v, nil
}

func (r *byteReader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("%w: truncated chunk payload", ErrCorrupt)
	}
	p := r.data[r.pos : r.pos+n]
	r.pos += n
	return p, nil
}

func (r *byteReader) string() (string, error) {
	n, err := r.uvarint()
	if err != nil {
		return "", err
	}
	p, err := r.take(int(n))
	return string(p), err
}

func (r *byteReader) optString() (string, bool, error) {
	n, err := r.uvarint()
	if err != nil || n == 0 {
		return "", false, err
	}
	p, err := r.take(int(n) - 1)
	return string(p), err == nil, err
}

// --------------------------------------------------------------------

var bufPool sync.Pool

func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			return p[:sz]
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p)
	}
}
