package cntio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	hasStartTime = 1 << iota
	hasStartDate
	hasHospital
	hasMachineMake
	hasMachineModel
	hasMachineSerial
	hasPatientID
	hasPatientName
	hasPatientSex
	hasDateOfBirth
)

// Seconds between the Excel epoch (1899-12-30) and the Unix epoch.
const excelEpochOffset = 2209161600

// Excel-format day numbers are only considered valid acquisition dates
// within this window, covering mid-1975 through the end of year 9999.
const (
	minExcelDate = 27538
	maxExcelDate = 2958464
)

// RecordingInfo carries the optional recording metadata. Every field is
// optional and getters report presence separately from the value, so an
// absent field can be told apart from a present-but-empty one.
type RecordingInfo struct {
	has           uint32
	startTime     time.Time
	startDate     float64 // Excel-format day number
	startFraction float64 // second fraction
	hospital      string
	machineMake   string
	machineModel  string
	machineSerial string
	patientID     string
	patientName   string
	patientSex    byte
	dobYear       int
	dobMonth      time.Month
	dobDay        int
}

// SetStartTime sets the acquisition start time.
func (n *RecordingInfo) SetStartTime(t time.Time) {
	n.startTime, n.has = t, n.has|hasStartTime
}

// SetStartDate sets the acquisition start as an Excel-format day number
// plus a second fraction.
func (n *RecordingInfo) SetStartDate(days, fraction float64) {
	n.startDate, n.startFraction, n.has = days, fraction, n.has|hasStartDate
}

// SetHospital sets the hospital name.
func (n *RecordingInfo) SetHospital(s string) { n.hospital, n.has = s, n.has|hasHospital }

// SetMachine sets the acquisition machine make, model and serial number.
func (n *RecordingInfo) SetMachine(maker, model, serial string) {
	n.machineMake, n.machineModel, n.machineSerial = maker, model, serial
	n.has |= hasMachineMake | hasMachineModel | hasMachineSerial
}

// SetPatient sets the patient ID and name.
func (n *RecordingInfo) SetPatient(id, name string) {
	n.patientID, n.patientName = id, name
	n.has |= hasPatientID | hasPatientName
}

// SetPatientSex sets the patient sex, customarily 'M' or 'F'.
func (n *RecordingInfo) SetPatientSex(sex byte) {
	n.patientSex, n.has = sex, n.has|hasPatientSex
}

// SetDateOfBirth sets the patient date of birth.
func (n *RecordingInfo) SetDateOfBirth(year int, month time.Month, day int) {
	n.dobYear, n.dobMonth, n.dobDay = year, month, day
	n.has |= hasDateOfBirth
}

// StartTime returns the acquisition start time in UTC. When only the
// Excel-format start date is on record the time is derived from it; a
// day number outside the valid window is reported as absent.
func (n *RecordingInfo) StartTime() (time.Time, bool) {
	if n.has&hasStartTime != 0 {
		return n.startTime.UTC(), true
	}
	if n.has&hasStartDate != 0 && n.startDate >= minExcelDate && n.startDate <= maxExcelDate {
		sec := math.Round(n.startDate*86400) - excelEpochOffset
		return time.Unix(int64(sec), int64(n.startFraction*1e9)).UTC(), true
	}
	return time.Time{}, false
}

// StartDateAndFraction returns the acquisition start as an Excel-format
// day number plus a second fraction, deriving it from the Unix start
// time when only that is on record.
func (n *RecordingInfo) StartDateAndFraction() (float64, float64, bool) {
	if n.has&hasStartDate != 0 {
		return n.startDate, n.startFraction, true
	}
	if n.has&hasStartTime != 0 {
		days := float64(n.startTime.Unix()+excelEpochOffset) / 86400
		frac := float64(n.startTime.Nanosecond()) / 1e9
		return days, frac, true
	}
	return 0, 0, false
}

// Hospital returns the hospital name.
func (n *RecordingInfo) Hospital() (string, bool) { return n.hospital, n.has&hasHospital != 0 }

// MachineMake returns the acquisition machine make.
func (n *RecordingInfo) MachineMake() (string, bool) {
	return n.machineMake, n.has&hasMachineMake != 0
}

// MachineModel returns the acquisition machine model.
func (n *RecordingInfo) MachineModel() (string, bool) {
	return n.machineModel, n.has&hasMachineModel != 0
}

// MachineSerial returns the acquisition machine serial number.
func (n *RecordingInfo) MachineSerial() (string, bool) {
	return n.machineSerial, n.has&hasMachineSerial != 0
}

// PatientID returns the patient identifier.
func (n *RecordingInfo) PatientID() (string, bool) { return n.patientID, n.has&hasPatientID != 0 }

// PatientName returns the patient name.
func (n *RecordingInfo) PatientName() (string, bool) {
	return n.patientName, n.has&hasPatientName != 0
}

// PatientSex returns the patient sex byte. A NUL byte counts as absent.
func (n *RecordingInfo) PatientSex() (byte, bool) {
	return n.patientSex, n.has&hasPatientSex != 0 && n.patientSex != 0
}

// DateOfBirth returns the patient date of birth.
func (n *RecordingInfo) DateOfBirth() (year int, month time.Month, day int, ok bool) {
	return n.dobYear, n.dobMonth, n.dobDay, n.has&hasDateOfBirth != 0
}

// --------------------------------------------------------------------

func appendRecordingInfo(dst []byte, n *RecordingInfo) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, n.has)
	if n.has&hasStartTime != 0 {
		dst = binary.LittleEndian.AppendUint64(dst, uint64(n.startTime.Unix()))
	}
	if n.has&hasStartDate != 0 {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(n.startDate))
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(n.startFraction))
	}
	for _, f := range [...]struct {
		bit uint32
		val string
	}{
		{hasHospital, n.hospital},
		{hasMachineMake, n.machineMake},
		{hasMachineModel, n.machineModel},
		{hasMachineSerial, n.machineSerial},
		{hasPatientID, n.patientID},
		{hasPatientName, n.patientName},
	} {
		if n.has&f.bit != 0 {
			dst = appendString(dst, f.val)
		}
	}
	if n.has&hasPatientSex != 0 {
		dst = append(dst, n.patientSex)
	}
	if n.has&hasDateOfBirth != 0 {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(n.dobYear))
		dst = append(dst, byte(n.dobMonth), byte(n.dobDay))
	}
	return dst
}

func parseRecordingInfo(p []byte) (*RecordingInfo, error) {
	r := byteReader{data: p}
	raw, err := r.take(4)
	if err != nil {
		return nil, err
	}

	n := &RecordingInfo{has: binary.LittleEndian.Uint32(raw)}
	if n.has&hasStartTime != 0 {
		if raw, err = r.take(8); err != nil {
			return nil, err
		}
		n.startTime = time.Unix(int64(binary.LittleEndian.Uint64(raw)), 0).UTC()
	}
	if n.has&hasStartDate != 0 {
		if raw, err = r.take(16); err != nil {
			return nil, err
		}
		n.startDate = math.Float64frombits(binary.LittleEndian.Uint64(raw))
		n.startFraction = math.Float64frombits(binary.LittleEndian.Uint64(raw[8:]))
	}
	for _, f := range [...]struct {
		bit uint32
		val *string
	}{
		{hasHospital, &n.hospital},
		{hasMachineMake, &n.machineMake},
		{hasMachineModel, &n.machineModel},
		{hasMachineSerial, &n.machineSerial},
		{hasPatientID, &n.patientID},
		{hasPatientName, &n.patientName},
	} {
		if n.has&f.bit != 0 {
			if *f.val, err = r.string(); err != nil {
				return nil, err
			}
		}
	}
	if n.has&hasPatientSex != 0 {
		if raw, err = r.take(1); err != nil {
			return nil, err
		}
		n.patientSex = raw[0]
	}
	if n.has&hasDateOfBirth != 0 {
		if raw, err = r.take(4); err != nil {
			return nil, err
		}
		n.dobYear = int(binary.LittleEndian.Uint16(raw))
		n.dobMonth = time.Month(raw[2])
		n.dobDay = int(raw[3])
	}
	return n, nil
}
