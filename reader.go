package cntio

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

// Reader instances provide random access to a stored recording. The
// container framing is validated once at open time; individual sample
// blocks are only read and decoded on demand.
type Reader struct {
	r io.ReaderAt
	c io.Closer
	p string

	header   header
	blocks   []blockInfo
	channels *ChannelTable
	triggers []Trigger
	info     *RecordingInfo

	view []float32
}

// OpenFile opens a recording for reading. The returned reader owns the
// file handle and releases it on Close.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r, err := NewReader(f, fi.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.c, r.p = f, path
	return r, nil
}

// NewReader opens a reader over size bytes of stored data.
func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	tmp := make([]byte, headerSize)
	if size < headerSize {
		return nil, fmt.Errorf("%w: store is only %d bytes", ErrCorrupt, size)
	}
	if _, err := ra.ReadAt(tmp, 0); err != nil {
		return nil, err
	}

	h, err := parseHeader(tmp)
	if err != nil {
		return nil, err
	}

	tableSize := int64(h.TableLen) * int64(chunkEntrySize(h.Variant))
	if h.TableOff < headerSize || tableSize > size-h.TableOff {
		return nil, fmt.Errorf("%w: chunk table at %d+%d outside file bounds %d", ErrCorrupt, h.TableOff, tableSize, size)
	}

	tmp = make([]byte, tableSize)
	if _, err := ra.ReadAt(tmp, h.TableOff); err != nil {
		return nil, err
	}

	chunks, err := parseChunkTable(tmp, h.Variant, int(h.TableLen), h.TableOff)
	if err != nil {
		return nil, err
	}

	r := &Reader{r: ra, header: h, info: new(RecordingInfo)}

	chunk, _ := findChunk(chunks, tagChannels)
	if tmp, err = readChunk(ra, chunk); err != nil {
		return nil, err
	}
	if r.channels, err = parseChannelTable(tmp); err != nil {
		return nil, err
	}
	if n := r.channels.Len(); n != int(h.Channels) {
		return nil, fmt.Errorf("%w: channel chunk holds %d channels, header reports %d", ErrCorrupt, n, h.Channels)
	}

	chunk, _ = findChunk(chunks, tagBlocks)
	if tmp, err = readChunk(ra, chunk); err != nil {
		return nil, err
	}
	if r.blocks, err = parseBlockTable(tmp, h.Variant, h.Samples, h.TableOff); err != nil {
		return nil, err
	}

	if chunk, ok := findChunk(chunks, tagTriggers); ok {
		if tmp, err = readChunk(ra, chunk); err != nil {
			return nil, err
		}
		if r.triggers, err = parseTriggerTable(tmp); err != nil {
			return nil, err
		}
	}

	if chunk, ok := findChunk(chunks, tagInfo); ok {
		if tmp, err = readChunk(ra, chunk); err != nil {
			return nil, err
		}
		if r.info, err = parseRecordingInfo(tmp); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func readChunk(ra io.ReaderAt, c chunkInfo) ([]byte, error) {
	p := make([]byte, c.Length)
	if _, err := ra.ReadAt(p, c.Offset); err != nil {
		return nil, err
	}
	return p, nil
}

// Variant returns the container variant of the store.
func (r *Reader) Variant() Variant { return r.header.Variant }

// SampleRate returns the sampling frequency in Hz.
func (r *Reader) SampleRate() int { return int(r.header.Rate) }

// SampleCount returns the total number of samples, a sample being one
// value per channel.
func (r *Reader) SampleCount() uint64 { return r.header.Samples }

// ChannelCount returns the number of channels.
func (r *Reader) ChannelCount() int { return r.channels.Len() }

// Channel returns the channel descriptor at index i.
func (r *Reader) Channel(i int) (Channel, error) { return r.channels.Channel(i) }

// NumBlocks returns the number of stored sample blocks.
func (r *Reader) NumBlocks() int { return len(r.blocks) }

// TriggerCount returns the number of stored triggers.
func (r *Reader) TriggerCount() int { return len(r.triggers) }

// Trigger returns the trigger at positional index i. Triggers are stored
// in insertion order, which is not necessarily sample order.
func (r *Reader) Trigger(i int) (Trigger, error) {
	if i < 0 || i >= len(r.triggers) {
		return Trigger{}, fmt.Errorf("%w: trigger index %d outside [0, %d)", ErrIndex, i, len(r.triggers))
	}
	return r.triggers[i], nil
}

// Info returns the recording metadata. The result is never nil; a store
// without an info chunk reads back with every field absent.
func (r *Reader) Info() *RecordingInfo { return r.info }

// Samples retrieves the sample range [from, to) as a freshly allocated
// buffer of (to-from) x channel-count values, sample-major and
// channel-minor.
func (r *Reader) Samples(from, to uint64) ([]float32, error) {
	return r.AppendSamples(nil, from, to)
}

// AppendSamples retrieves the sample range [from, to) like Samples but
// appends the values to dst instead of allocating a new buffer.
func (r *Reader) AppendSamples(dst []float32, from, to uint64) ([]float32, error) {
	if r.r == nil {
		return dst, fmt.Errorf("reader %s: %w", r.p, ErrClosed)
	}
	if from > to {
		return dst, fmt.Errorf("%w: non-monotonic sample range [%d, %d)", ErrInvalid, from, to)
	}
	if to > r.header.Samples {
		return dst, fmt.Errorf("%w: sample range [%d, %d) exceeds recorded length %d", ErrRange, from, to, r.header.Samples)
	}
	if from == to {
		return dst, nil
	}

	channels := int(r.header.Channels)
	bpos := sort.Search(len(r.blocks), func(i int) bool {
		b := r.blocks[i]
		return b.First+uint64(b.Samples) > from
	})

	for ; bpos < len(r.blocks); bpos++ {
		b := r.blocks[bpos]
		if b.First >= to {
			break
		}

		block, err := r.readBlock(b)
		if err != nil {
			return dst, err
		}

		lo, hi := 0, int(b.Samples)
		if from > b.First {
			lo = int(from - b.First)
		}
		if end := b.First + uint64(b.Samples); end > to {
			hi -= int(end - to)
		}
		dst = append(dst, block[lo*channels:hi*channels]...)
		releaseFloats(block)
	}
	return dst, nil
}

// SamplesView retrieves the sample range [from, to) as a view over a
// buffer owned by the reader. The view is only valid until the next
// SamplesView call and must be copied if used beyond that.
func (r *Reader) SamplesView(from, to uint64) ([]float32, error) {
	view, err := r.AppendSamples(r.view[:0], from, to)
	if err != nil {
		return nil, err
	}
	r.view = view
	return view, nil
}

// readBlock reads and decodes a single sample block. The returned slice
// is pooled and must be released via releaseFloats.
func (r *Reader) readBlock(b blockInfo) ([]float32, error) {
	raw := fetchBuffer(int(b.Length))
	defer releaseBuffer(raw)

	if _, err := r.r.ReadAt(raw, b.Offset); err != nil {
		return nil, err
	}
	return decodeBlock(fetchFloats(int(b.Samples)*int(r.header.Channels)), raw, int(b.Samples), int(r.header.Channels))
}

// Close releases the reader and the underlying file handle, if owned.
// The reader must not be used after this method is called.
func (r *Reader) Close() error {
	if r.r == nil {
		return fmt.Errorf("reader %s: %w", r.p, ErrClosed)
	}
	r.r, r.view = nil, nil
	if r.c != nil {
		return r.c.Close()
	}
	return nil
}

// --------------------------------------------------------------------

var floatPool sync.Pool

func fetchFloats(sz int) []float32 {
	if v := floatPool.Get(); v != nil {
		if p := v.([]float32); sz <= cap(p) {
			return p[:0]
		}
	}
	return make([]float32, 0, sz)
}

func releaseFloats(p []float32) {
	if cap(p) != 0 {
		floatPool.Put(p)
	}
}
