package cntio

import "fmt"

type optString struct {
	value   string
	present bool
}

// Channel is a single channel descriptor. Field getters return the value
// plus a flag reporting whether the field is present on disk at all;
// older files may omit fields which would read back as empty strings.
type Channel struct {
	label, unit, reference, status, ctype optString
}

// Label returns the channel label.
func (c Channel) Label() (string, bool) { return c.label.value, c.label.present }

// Unit returns the physical unit, e.g. "uV".
func (c Channel) Unit() (string, bool) { return c.unit.value, c.unit.present }

// Reference returns the reference electrode label.
func (c Channel) Reference() (string, bool) { return c.reference.value, c.reference.present }

// Status returns the channel status.
func (c Channel) Status() (string, bool) { return c.status.value, c.status.present }

// Type returns the channel type.
func (c Channel) Type() (string, bool) { return c.ctype.value, c.ctype.present }

// ChannelTable is an ordered, file-agnostic list of channel descriptors.
// Labels need not be unique; the insertion order is the channel order
// used for sample interleaving.
type ChannelTable struct {
	chans []Channel
}

// NewChannelTable inits an empty channel table.
func NewChannelTable() *ChannelTable {
	return new(ChannelTable)
}

// Add appends a channel descriptor.
func (t *ChannelTable) Add(label, reference, unit string) {
	t.chans = append(t.chans, Channel{
		label:     optString{value: label, present: true},
		unit:      optString{value: unit, present: true},
		reference: optString{value: reference, present: true},
	})
}

// Len returns the number of channels.
func (t *ChannelTable) Len() int { return len(t.chans) }

// Channel returns the descriptor at index i.
func (t *ChannelTable) Channel(i int) (Channel, error) {
	if i < 0 || i >= len(t.chans) {
		return Channel{}, fmt.Errorf("%w: channel index %d outside [0, %d)", ErrIndex, i, len(t.chans))
	}
	return t.chans[i], nil
}

// clone snapshots the table for a write session; later mutations of the
// original must not affect the file being written.
func (t *ChannelTable) clone() *ChannelTable {
	chans := make([]Channel, len(t.chans))
	copy(chans, t.chans)
	return &ChannelTable{chans: chans}
}

// --------------------------------------------------------------------

func appendChannelTable(dst []byte, t *ChannelTable) []byte {
	dst = appendUvarint(dst, uint64(len(t.chans)))
	for _, c := range t.chans {
		for _, f := range [...]optString{c.label, c.unit, c.reference, c.status, c.ctype} {
			dst = appendOptString(dst, f.value, f.present)
		}
	}
	return dst
}

func parseChannelTable(p []byte) (*ChannelTable, error) {
	r := byteReader{data: p}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}

	t := &ChannelTable{chans: make([]Channel, 0, n)}
	for i := uint64(0); i < n; i++ {
		var c Channel
		for _, f := range [...]*optString{&c.label, &c.unit, &c.reference, &c.status, &c.ctype} {
			if f.value, f.present, err = r.optString(); err != nil {
				return nil, err
			}
		}
		t.chans = append(t.chans, c)
	}
	return t, nil
}
