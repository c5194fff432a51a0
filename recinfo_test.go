package cntio_test

import (
	"time"

	"github.com/bsm/cntio"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("RecordingInfo", func() {
	var subject *cntio.RecordingInfo

	BeforeEach(func() {
		subject = new(cntio.RecordingInfo)
	})

	It("should derive start times from excel dates", func() {
		subject.SetStartDate(45444, 0.25)

		st, ok := subject.StartTime()
		Expect(ok).To(BeTrue())
		Expect(st).To(BeTemporally("==", time.Date(2024, time.June, 1, 0, 0, 0, 250000000, time.UTC)))
	})

	It("should treat out-of-window excel dates as absent start times", func() {
		for _, days := range []float64{0, 1.0, 27537, 2958465, 3e6} {
			subject.SetStartDate(days, 0)
			_, ok := subject.StartTime()
			Expect(ok).To(BeFalse(), "for days=%v", days)
		}

		// the raw day number remains on record
		days, _, ok := subject.StartDateAndFraction()
		Expect(ok).To(BeTrue())
		Expect(days).To(Equal(3e6))
	})

	It("should derive excel dates from start times", func() {
		subject.SetStartTime(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))

		days, frac, ok := subject.StartDateAndFraction()
		Expect(ok).To(BeTrue())
		Expect(days).To(Equal(45444.0))
		Expect(frac).To(Equal(0.0))
	})
})
