package cntio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// header mirrors the fixed-size container header at offset 0.
type header struct {
	Variant  Variant
	Rate     uint32
	Channels uint32
	Samples  uint64
	TableOff int64
	TableLen uint32 // number of chunk table entries
}

func appendHeader(dst []byte, h header) []byte {
	var flags byte
	if h.Variant == Large {
		flags |= flagLarge
	}

	dst = append(dst, magic...)
	dst = binary.LittleEndian.AppendUint16(dst, formatVersion)
	dst = append(dst, flags, 0)
	dst = binary.LittleEndian.AppendUint32(dst, h.Rate)
	dst = binary.LittleEndian.AppendUint32(dst, h.Channels)
	dst = binary.LittleEndian.AppendUint64(dst, h.Samples)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(h.TableOff))
	dst = binary.LittleEndian.AppendUint32(dst, h.TableLen)
	return append(dst, 0, 0, 0, 0, 0, 0, 0, 0)
}

func parseHeader(p []byte) (header, error) {
	var h header

	if len(p) < headerSize {
		return h, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	if !bytes.Equal(p[:8], magic) {
		return h, errBadMagic
	}
	if v := binary.LittleEndian.Uint16(p[8:]); v != formatVersion {
		return h, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, v)
	}

	if p[10]&flagLarge != 0 {
		h.Variant = Large
	}
	h.Rate = binary.LittleEndian.Uint32(p[12:])
	h.Channels = binary.LittleEndian.Uint32(p[16:])
	h.Samples = binary.LittleEndian.Uint64(p[20:])
	h.TableOff = int64(binary.LittleEndian.Uint64(p[28:]))
	h.TableLen = binary.LittleEndian.Uint32(p[36:])
	return h, nil
}

// --------------------------------------------------------------------

func appendUintW(dst []byte, v uint64, w int) []byte {
	if w == 8 {
		return binary.LittleEndian.AppendUint64(dst, v)
	}
	return binary.LittleEndian.AppendUint32(dst, uint32(v))
}

func uintW(p []byte, w int) uint64 {
	if w == 8 {
		return binary.LittleEndian.Uint64(p)
	}
	return uint64(binary.LittleEndian.Uint32(p))
}

// chunkEntrySize is the width of one chunk table entry.
func chunkEntrySize(v Variant) int { return 4 + 2*v.offsetWidth() }

func appendChunkTable(dst []byte, chunks []chunkInfo, v Variant) []byte {
	w := v.offsetWidth()
	for _, c := range chunks {
		dst = append(dst, c.Tag[:]...)
		dst = appendUintW(dst, uint64(c.Offset), w)
		dst = appendUintW(dst, uint64(c.Length), w)
	}
	return dst
}

// parseChunkTable decodes and validates the chunk table. Chunks must lie
// between the header and the table, must not overlap each other, and the
// mandatory kinds must be present exactly once.
func parseChunkTable(p []byte, v Variant, n int, tableOff int64) ([]chunkInfo, error) {
	w := v.offsetWidth()
	if len(p) != n*chunkEntrySize(v) {
		return nil, fmt.Errorf("%w: truncated chunk table", ErrCorrupt)
	}

	seen := make(map[[4]byte]struct{}, n)
	chunks := make([]chunkInfo, 0, n)
	for i := 0; i < n; i++ {
		var c chunkInfo
		copy(c.Tag[:], p)
		c.Offset = int64(uintW(p[4:], w))
		c.Length = int64(uintW(p[4+w:], w))
		p = p[chunkEntrySize(v):]

		if c.Offset < headerSize || c.Length < 0 || c.Length > tableOff-c.Offset {
			return nil, fmt.Errorf("%w: chunk %q out of bounds at %d+%d", ErrCorrupt, c.Tag[:], c.Offset, c.Length)
		}
		if _, ok := seen[c.Tag]; ok {
			return nil, fmt.Errorf("%w: duplicate chunk %q", ErrCorrupt, c.Tag[:])
		}
		seen[c.Tag] = struct{}{}
		chunks = append(chunks, c)
	}

	sorted := make([]chunkInfo, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	for i := 1; i < len(sorted); i++ {
		if prev := sorted[i-1]; prev.Offset+prev.Length > sorted[i].Offset {
			return nil, fmt.Errorf("%w: chunks %q and %q overlap", ErrCorrupt, prev.Tag[:], sorted[i].Tag[:])
		}
	}

	for _, tag := range [][4]byte{tagChannels, tagBlocks} {
		if _, ok := findChunk(chunks, tag); !ok {
			return nil, fmt.Errorf("%w: mandatory chunk %q is missing", ErrCorrupt, tag[:])
		}
	}
	return chunks, nil
}

func findChunk(chunks []chunkInfo, tag [4]byte) (chunkInfo, bool) {
	for _, c := range chunks {
		if c.Tag == tag {
			return c, true
		}
	}
	return chunkInfo{}, false
}

// --------------------------------------------------------------------

// blockEntrySize is the width of one block table entry.
func blockEntrySize(v Variant) int { return v.offsetWidth() + 8 }

func appendBlockTable(dst []byte, blocks []blockInfo, v Variant) []byte {
	w := v.offsetWidth()
	for _, b := range blocks {
		dst = appendUintW(dst, uint64(b.Offset), w)
		dst = binary.LittleEndian.AppendUint32(dst, b.Length)
		dst = binary.LittleEndian.AppendUint32(dst, b.Samples)
	}
	return dst
}

// parseBlockTable decodes the sample block table, reconstructing the
// first-sample index of each block by prefix sum. The block total must
// match the sample count reported by the header.
func parseBlockTable(p []byte, v Variant, total uint64, dataEnd int64) ([]blockInfo, error) {
	w := v.offsetWidth()
	if len(p)%blockEntrySize(v) != 0 {
		return nil, fmt.Errorf("%w: truncated block table", ErrCorrupt)
	}

	var first uint64
	blocks := make([]blockInfo, 0, len(p)/blockEntrySize(v))
	for len(p) > 0 {
		b := blockInfo{
			Offset:  int64(uintW(p, w)),
			Length:  binary.LittleEndian.Uint32(p[w:]),
			Samples: binary.LittleEndian.Uint32(p[w+4:]),
			First:   first,
		}
		p = p[blockEntrySize(v):]

		if b.Offset < headerSize || int64(b.Length) > dataEnd-b.Offset {
			return nil, fmt.Errorf("%w: sample block %d out of bounds at %d+%d", ErrCorrupt, len(blocks), b.Offset, b.Length)
		}
		if b.Samples == 0 {
			return nil, fmt.Errorf("%w: empty sample block %d", ErrCorrupt, len(blocks))
		}
		first += uint64(b.Samples)
		blocks = append(blocks, b)
	}

	if first != total {
		return nil, fmt.Errorf("%w: block table holds %d samples, header reports %d", ErrCorrupt, first, total)
	}
	return blocks, nil
}
