package cntio

// Trigger is a timestamped annotation event within a recording. The
// format predates the extension fields, so files written by older tools
// read back with empty extension strings and a zero duration.
type Trigger struct {
	Code        string
	Sample      uint64 // sample index of the event onset
	Duration    int64  // duration in samples
	Condition   string
	Description string
	Impedance   string // space-separated per-channel readout in kOhm
}

func appendTriggerTable(dst []byte, triggers []Trigger) []byte {
	dst = appendUvarint(dst, uint64(len(triggers)))
	for _, t := range triggers {
		dst = appendString(dst, t.Code)
		dst = appendUvarint(dst, t.Sample)
		dst = appendVarint(dst, t.Duration)
		dst = appendOptString(dst, t.Condition, t.Condition != "")
		dst = appendOptString(dst, t.Description, t.Description != "")
		dst = appendOptString(dst, t.Impedance, t.Impedance != "")
	}
	return dst
}

func parseTriggerTable(p []byte) ([]Trigger, error) {
	r := byteReader{data: p}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}

	triggers := make([]Trigger, 0, n)
	for i := uint64(0); i < n; i++ {
		var t Trigger
		if t.Code, err = r.string(); err != nil {
			return nil, err
		}
		if t.Sample, err = r.uvarint(); err != nil {
			return nil, err
		}
		if t.Duration, err = r.varint(); err != nil {
			return nil, err
		}
		if t.Condition, _, err = r.optString(); err != nil {
			return nil, err
		}
		if t.Description, _, err = r.optString(); err != nil {
			return nil, err
		}
		if t.Impedance, _, err = r.optString(); err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, nil
}
