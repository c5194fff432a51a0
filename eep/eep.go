// Package eep exposes the cntio engine through the flat, handle-indexed
// surface of the classic libeep binding: opaque integer handles refer to
// read sessions, write sessions and standalone channel-info builders,
// with one function per operation.
//
// Handles are issued from a monotonic counter and never reused; a closed
// handle is kept as a tombstone so use-after-close is reported as
// cntio.ErrClosed rather than being mistaken for an unknown handle.
// Distinct handles may be used from distinct goroutines, but access to a
// single handle must be serialized by the caller.
package eep

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/bsm/cntio"
)

// Handle is an opaque token referencing a live session or builder.
type Handle uint64

// object is a registry entry. Exactly one of reader, writer and channels
// is set; a tombstone has none.
type object struct {
	reader   *cntio.Reader
	writer   *cntio.Writer
	channels *cntio.ChannelTable
}

var (
	lastHandle uint64
	registry   = haxmap.New[uint64, *object]()
)

func register(o *object) Handle {
	h := atomic.AddUint64(&lastHandle, 1)
	registry.Set(h, o)
	return Handle(h)
}

func fetch(h Handle) (*object, error) {
	o, ok := registry.Get(uint64(h))
	if !ok {
		return nil, fmt.Errorf("eep: unknown handle %d: %w", h, cntio.ErrInvalid)
	}
	if o.reader == nil && o.writer == nil && o.channels == nil {
		return nil, fmt.Errorf("eep: handle %d: %w", h, cntio.ErrClosed)
	}
	return o, nil
}

func fetchReader(h Handle) (*cntio.Reader, error) {
	o, err := fetch(h)
	if err != nil {
		return nil, err
	}
	if o.reader == nil {
		return nil, fmt.Errorf("eep: handle %d is not a read session: %w", h, cntio.ErrInvalid)
	}
	return o.reader, nil
}

func fetchWriter(h Handle) (*cntio.Writer, error) {
	o, err := fetch(h)
	if err != nil {
		return nil, err
	}
	if o.writer == nil {
		return nil, fmt.Errorf("eep: handle %d is not a write session: %w", h, cntio.ErrInvalid)
	}
	return o.writer, nil
}

func fetchChannels(h Handle) (*cntio.ChannelTable, error) {
	o, err := fetch(h)
	if err != nil {
		return nil, err
	}
	if o.channels == nil {
		return nil, fmt.Errorf("eep: handle %d is not a channel-info builder: %w", h, cntio.ErrInvalid)
	}
	return o.channels, nil
}

// Version returns the container engine version.
func Version() string { return cntio.Version }

// --------------------------------------------------------------------

// Open opens a recording for reading and returns its session handle.
func Open(path string) (Handle, error) {
	r, err := cntio.OpenFile(path)
	if err != nil {
		return 0, err
	}
	return register(&object{reader: r}), nil
}

// Create starts a write session bound to a snapshot of the channel-info
// builder referenced by channelInfo. The builder must hold at least one
// channel and remains usable and independently closable afterwards. The
// large flag selects the RF64-style 64-bit offset variant and cannot be
// changed later.
func Create(path string, rate int, channelInfo Handle, large bool) (Handle, error) {
	t, err := fetchChannels(channelInfo)
	if err != nil {
		return 0, err
	}

	w, err := cntio.CreateFile(path, rate, t, &cntio.WriterOptions{Large: large})
	if err != nil {
		return 0, err
	}
	return register(&object{writer: w}), nil
}

// Close finalizes and releases the session or builder referenced by h.
// Any further operation on h fails with cntio.ErrClosed.
func Close(h Handle) error {
	o, err := fetch(h)
	if err != nil {
		return err
	}
	registry.Set(uint64(h), &object{}) // tombstone

	switch {
	case o.reader != nil:
		return o.reader.Close()
	case o.writer != nil:
		return o.writer.Close()
	}
	return nil
}

// --------------------------------------------------------------------

// CreateChannelInfo inits an empty channel-info builder and returns its
// handle. The builder is independent of any session.
func CreateChannelInfo() Handle {
	return register(&object{channels: cntio.NewChannelTable()})
}

// AddChannel appends a channel descriptor to the builder referenced by h.
func AddChannel(h Handle, label, reference, unit string) error {
	t, err := fetchChannels(h)
	if err != nil {
		return err
	}
	t.Add(label, reference, unit)
	return nil
}

// CloseChannelInfo releases the channel-info builder referenced by h.
func CloseChannelInfo(h Handle) error {
	if _, err := fetchChannels(h); err != nil {
		return err
	}
	return Close(h)
}

// --------------------------------------------------------------------

// ChannelCount returns the number of channels of a session or builder.
func ChannelCount(h Handle) (int, error) {
	o, err := fetch(h)
	if err != nil {
		return 0, err
	}
	switch {
	case o.reader != nil:
		return o.reader.ChannelCount(), nil
	case o.writer != nil:
		return o.writer.ChannelCount(), nil
	default:
		return o.channels.Len(), nil
	}
}

func channelAt(h Handle, i int) (cntio.Channel, error) {
	o, err := fetch(h)
	if err != nil {
		return cntio.Channel{}, err
	}
	switch {
	case o.reader != nil:
		return o.reader.Channel(i)
	case o.channels != nil:
		return o.channels.Channel(i)
	default:
		return cntio.Channel{}, fmt.Errorf("eep: handle %d has no readable channel table: %w", h, cntio.ErrInvalid)
	}
}

// ChannelLabel returns the label of channel i. The boolean reports
// whether the field is present on disk at all.
func ChannelLabel(h Handle, i int) (string, bool, error) {
	c, err := channelAt(h, i)
	if err != nil {
		return "", false, err
	}
	v, ok := c.Label()
	return v, ok, nil
}

// ChannelUnit returns the unit of channel i.
func ChannelUnit(h Handle, i int) (string, bool, error) {
	c, err := channelAt(h, i)
	if err != nil {
		return "", false, err
	}
	v, ok := c.Unit()
	return v, ok, nil
}

// ChannelReference returns the reference label of channel i.
func ChannelReference(h Handle, i int) (string, bool, error) {
	c, err := channelAt(h, i)
	if err != nil {
		return "", false, err
	}
	v, ok := c.Reference()
	return v, ok, nil
}

// ChannelStatus returns the status of channel i.
func ChannelStatus(h Handle, i int) (string, bool, error) {
	c, err := channelAt(h, i)
	if err != nil {
		return "", false, err
	}
	v, ok := c.Status()
	return v, ok, nil
}

// ChannelType returns the type of channel i.
func ChannelType(h Handle, i int) (string, bool, error) {
	c, err := channelAt(h, i)
	if err != nil {
		return "", false, err
	}
	v, ok := c.Type()
	return v, ok, nil
}

// --------------------------------------------------------------------

// SampleFrequency returns the sampling frequency in Hz.
func SampleFrequency(h Handle) (int, error) {
	o, err := fetch(h)
	if err != nil {
		return 0, err
	}
	switch {
	case o.reader != nil:
		return o.reader.SampleRate(), nil
	case o.writer != nil:
		return o.writer.SampleRate(), nil
	default:
		return 0, fmt.Errorf("eep: handle %d is not a session: %w", h, cntio.ErrInvalid)
	}
}

// SampleCount returns the total number of samples.
func SampleCount(h Handle) (uint64, error) {
	o, err := fetch(h)
	if err != nil {
		return 0, err
	}
	switch {
	case o.reader != nil:
		return o.reader.SampleCount(), nil
	case o.writer != nil:
		return o.writer.SampleCount(), nil
	default:
		return 0, fmt.Errorf("eep: handle %d is not a session: %w", h, cntio.ErrInvalid)
	}
}

// GetSamples retrieves the sample range [from, to) as a freshly
// allocated buffer of (to-from) x channel-count interleaved values.
func GetSamples(h Handle, from, to uint64) ([]float32, error) {
	r, err := fetchReader(h)
	if err != nil {
		return nil, err
	}
	return r.Samples(from, to)
}

// GetSamplesView retrieves the sample range [from, to) as a view over a
// buffer owned by the session, valid until the next view call on h.
func GetSamplesView(h Handle, from, to uint64) ([]float32, error) {
	r, err := fetchReader(h)
	if err != nil {
		return nil, err
	}
	return r.SamplesView(from, to)
}

// AddSamples appends interleaved samples to a write session. The channel
// count must match the session's.
func AddSamples(h Handle, samples []float32, channels int) error {
	w, err := fetchWriter(h)
	if err != nil {
		return err
	}
	if channels != w.ChannelCount() {
		return fmt.Errorf("eep: handle %d expects %d channels, got %d: %w", h, w.ChannelCount(), channels, cntio.ErrInvalid)
	}
	return w.AddSamples(samples)
}

// --------------------------------------------------------------------

// TriggerCount returns the number of triggers of a read session.
func TriggerCount(h Handle) (int, error) {
	r, err := fetchReader(h)
	if err != nil {
		return 0, err
	}
	return r.TriggerCount(), nil
}

// GetTrigger returns the trigger at positional index i.
func GetTrigger(h Handle, i int) (cntio.Trigger, error) {
	r, err := fetchReader(h)
	if err != nil {
		return cntio.Trigger{}, err
	}
	return r.Trigger(i)
}

// AddTrigger appends a trigger to a write session.
func AddTrigger(h Handle, t cntio.Trigger) error {
	w, err := fetchWriter(h)
	if err != nil {
		return err
	}
	return w.AddTrigger(t)
}

// --------------------------------------------------------------------

// SetRecordingInfo attaches recording metadata to a write session.
func SetRecordingInfo(h Handle, info *cntio.RecordingInfo) error {
	w, err := fetchWriter(h)
	if err != nil {
		return err
	}
	return w.SetInfo(info)
}

func recordingInfo(h Handle) (*cntio.RecordingInfo, error) {
	r, err := fetchReader(h)
	if err != nil {
		return nil, err
	}
	return r.Info(), nil
}

// StartTime returns the acquisition start time.
func StartTime(h Handle) (time.Time, bool, error) {
	n, err := recordingInfo(h)
	if err != nil {
		return time.Time{}, false, err
	}
	t, ok := n.StartTime()
	return t, ok, nil
}

// StartDateAndFraction returns the acquisition start as an Excel-format
// day number plus a second fraction.
func StartDateAndFraction(h Handle) (float64, float64, bool, error) {
	n, err := recordingInfo(h)
	if err != nil {
		return 0, 0, false, err
	}
	days, frac, ok := n.StartDateAndFraction()
	return days, frac, ok, nil
}

// Hospital returns the hospital name of the recording.
func Hospital(h Handle) (string, bool, error) {
	n, err := recordingInfo(h)
	if err != nil {
		return "", false, err
	}
	v, ok := n.Hospital()
	return v, ok, nil
}

// MachineMake returns the acquisition machine make.
func MachineMake(h Handle) (string, bool, error) {
	n, err := recordingInfo(h)
	if err != nil {
		return "", false, err
	}
	v, ok := n.MachineMake()
	return v, ok, nil
}

// MachineModel returns the acquisition machine model.
func MachineModel(h Handle) (string, bool, error) {
	n, err := recordingInfo(h)
	if err != nil {
		return "", false, err
	}
	v, ok := n.MachineModel()
	return v, ok, nil
}

// MachineSerialNumber returns the acquisition machine serial number.
func MachineSerialNumber(h Handle) (string, bool, error) {
	n, err := recordingInfo(h)
	if err != nil {
		return "", false, err
	}
	v, ok := n.MachineSerial()
	return v, ok, nil
}

// PatientID returns the patient identifier.
func PatientID(h Handle) (string, bool, error) {
	n, err := recordingInfo(h)
	if err != nil {
		return "", false, err
	}
	v, ok := n.PatientID()
	return v, ok, nil
}

// PatientName returns the patient name.
func PatientName(h Handle) (string, bool, error) {
	n, err := recordingInfo(h)
	if err != nil {
		return "", false, err
	}
	v, ok := n.PatientName()
	return v, ok, nil
}

// PatientSex returns the patient sex byte, customarily 'M' or 'F'.
func PatientSex(h Handle) (byte, bool, error) {
	n, err := recordingInfo(h)
	if err != nil {
		return 0, false, err
	}
	v, ok := n.PatientSex()
	return v, ok, nil
}

// DateOfBirth returns the patient date of birth.
func DateOfBirth(h Handle) (year int, month time.Month, day int, ok bool, err error) {
	n, err := recordingInfo(h)
	if err != nil {
		return 0, 0, 0, false, err
	}
	year, month, day, ok = n.DateOfBirth()
	return year, month, day, ok, nil
}
