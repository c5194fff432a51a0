package cntio

import (
	"fmt"
	"io"
	"math"
	"os"
)

// WriterOptions define writer specific options.
type WriterOptions struct {
	// BlockSize is the number of samples per encoded block.
	// Default: 256.
	BlockSize int

	// The compression codec to use for new blocks.
	// Default: SnappyCompression.
	Compression Compression

	// Large selects the RF64-style variant with 64-bit offset fields.
	// The choice is made once at creation time and is immutable for the
	// lifetime of the store.
	Large bool
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if oo.BlockSize < 1 {
		oo.BlockSize = 256
	}
	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}

	return &oo
}

func (o *WriterOptions) variant() Variant {
	if o.Large {
		return Large
	}
	return Legacy
}

// Writer instances can write a recording. Samples are staged in memory
// and streamed out block by block as they arrive, so a recording of
// unbounded length never resides in memory as a whole. The chunk table
// is written on Close, which also patches the header fields pointing at
// it; blocks already flushed remain decodable even if Close never runs.
type Writer struct {
	w io.WriteSeeker
	c io.Closer
	p string
	o *WriterOptions

	rate     int
	channels *ChannelTable

	offset  int64
	staged  []float32
	flushed uint64
	enc     []byte

	blocks   []blockInfo
	triggers []Trigger
	info     *RecordingInfo
}

// CreateFile creates a recording file and returns a writer bound to a
// snapshot of the given channel table. The writer owns the file handle
// and releases it on Close.
func CreateFile(path string, rate int, channels *ChannelTable, o *WriterOptions) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w, err := NewWriter(f, rate, channels, o)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	w.c, w.p = f, path
	return w, nil
}

// NewWriter starts a recording on ws, which must be positioned at the
// start of an empty store. A placeholder header is written immediately.
func NewWriter(ws io.WriteSeeker, rate int, channels *ChannelTable, o *WriterOptions) (*Writer, error) {
	if channels == nil || channels.Len() == 0 {
		return nil, fmt.Errorf("%w: a recording requires at least one channel", ErrInvalid)
	}
	if rate < 1 {
		return nil, fmt.Errorf("%w: bad sample rate %d", ErrInvalid, rate)
	}

	w := &Writer{
		w:        ws,
		o:        o.norm(),
		rate:     rate,
		channels: channels.clone(),
	}
	if err := w.writeRaw(appendHeader(w.enc[:0], w.header())); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) header() header {
	return header{
		Variant:  w.o.variant(),
		Rate:     uint32(w.rate),
		Channels: uint32(w.channels.Len()),
	}
}

// SampleRate returns the sampling frequency in Hz.
func (w *Writer) SampleRate() int { return w.rate }

// ChannelCount returns the number of channels.
func (w *Writer) ChannelCount() int { return w.channels.Len() }

// SampleCount returns the number of samples added so far, including the
// ones still staged in memory.
func (w *Writer) SampleCount() uint64 {
	return w.flushed + uint64(len(w.staged)/w.channels.Len())
}

// AddSamples appends interleaved samples, sample-major and channel-minor.
// The buffer length must be a multiple of the channel count. Whenever the
// staged samples fill a block it is encoded and flushed to the store.
func (w *Writer) AddSamples(samples []float32) error {
	if w.w == nil {
		return fmt.Errorf("writer %s: %w", w.p, ErrClosed)
	}

	channels := w.channels.Len()
	if len(samples)%channels != 0 {
		return fmt.Errorf("%w: buffer of %d values is not a multiple of %d channels", ErrInvalid, len(samples), channels)
	}

	w.staged = append(w.staged, samples...)
	for len(w.staged) >= w.o.BlockSize*channels {
		if err := w.flush(w.o.BlockSize); err != nil {
			return err
		}
	}
	return nil
}

// AddTrigger appends a trigger. Triggers are persisted on Close in the
// order added; no sorting or deduplication is performed.
func (w *Writer) AddTrigger(t Trigger) error {
	if w.w == nil {
		return fmt.Errorf("writer %s: %w", w.p, ErrClosed)
	}
	w.triggers = append(w.triggers, t)
	return nil
}

// SetInfo attaches recording metadata, replacing any previously set.
func (w *Writer) SetInfo(info *RecordingInfo) error {
	if w.w == nil {
		return fmt.Errorf("writer %s: %w", w.p, ErrClosed)
	}
	w.info = info
	return nil
}

// Close flushes the final, possibly shorter, block, writes the metadata
// chunks and the chunk table and patches the header. The writer must not
// be used after this method is called.
func (w *Writer) Close() error {
	if w.w == nil {
		return fmt.Errorf("writer %s: %w", w.p, ErrClosed)
	}

	channels := w.channels.Len()
	if frames := len(w.staged) / channels; frames > 0 {
		if err := w.flush(frames); err != nil {
			return err
		}
	}

	var chunks []chunkInfo
	writeChunk := func(tag [4]byte, payload []byte) error {
		chunks = append(chunks, chunkInfo{Tag: tag, Offset: w.offset, Length: int64(len(payload))})
		return w.writeRaw(payload)
	}
	if err := writeChunk(tagChannels, appendChannelTable(w.enc[:0], w.channels)); err != nil {
		return err
	}
	if w.info != nil {
		if err := writeChunk(tagInfo, appendRecordingInfo(w.enc[:0], w.info)); err != nil {
			return err
		}
	}
	if len(w.triggers) > 0 {
		if err := writeChunk(tagTriggers, appendTriggerTable(w.enc[:0], w.triggers)); err != nil {
			return err
		}
	}
	if err := writeChunk(tagBlocks, appendBlockTable(w.enc[:0], w.blocks, w.o.variant())); err != nil {
		return err
	}

	hdr := w.header()
	hdr.Samples = w.flushed
	hdr.TableOff = w.offset
	hdr.TableLen = uint32(len(chunks))
	if err := w.checkOffset(); err != nil {
		return err
	}
	if err := w.writeRaw(appendChunkTable(w.enc[:0], chunks, w.o.variant())); err != nil {
		return err
	}

	if _, err := w.w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.w.Write(appendHeader(w.enc[:0], hdr)); err != nil {
		return err
	}

	w.w, w.staged, w.enc = nil, nil, nil
	if w.c != nil {
		return w.c.Close()
	}
	return nil
}

// flush encodes the first frames staged samples into one block and
// appends it to the store and the block table.
func (w *Writer) flush(frames int) error {
	channels := w.channels.Len()
	block, err := encodeBlock(w.enc[:0], w.staged[:frames*channels], channels, w.o.Compression)
	if err != nil {
		return err
	}

	info := blockInfo{
		Offset:  w.offset,
		Length:  uint32(len(block)),
		First:   w.flushed,
		Samples: uint32(frames),
	}
	if err := w.checkOffset(); err != nil {
		return err
	}
	if err := w.writeRaw(block); err != nil {
		return err
	}

	w.blocks = append(w.blocks, info)
	w.enc = block[:0]
	w.staged = w.staged[:copy(w.staged, w.staged[frames*channels:])]
	w.flushed += uint64(frames)
	return nil
}

// checkOffset guards the 32-bit offset fields of the legacy variant.
func (w *Writer) checkOffset() error {
	if w.o.variant() == Legacy && w.offset > math.MaxUint32 {
		return fmt.Errorf("%w: store exceeds the legacy variant offset limit, use the large variant", ErrInvalid)
	}
	return nil
}

func (w *Writer) writeRaw(p []byte) error {
	n, err := w.w.Write(p)
	w.offset += int64(n)
	return err
}
