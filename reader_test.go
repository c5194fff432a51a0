package cntio_test

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/bsm/cntio"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reader", func() {
	var dir, fname string
	var subject *cntio.Reader
	var samples []float32

	// The suite seeds 1000 samples x 2 channels in blocks of 256, so the
	// store holds 4 blocks of 256 + 256 + 256 + 232 samples.
	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "cntio-test")
		Expect(err).NotTo(HaveOccurred())
		fname = filepath.Join(dir, "rec.cnt")

		Expect(seedFile(fname, 1000, nil)).To(Succeed())
		samples = seedSamples(1000, 2, 1)

		subject, err = cntio.OpenFile(fname)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = subject.Close()
		_ = os.RemoveAll(dir)
	})

	It("should init", func() {
		Expect(subject.Variant()).To(Equal(cntio.Legacy))
		Expect(subject.SampleRate()).To(Equal(512))
		Expect(subject.SampleCount()).To(Equal(uint64(1000)))
		Expect(subject.ChannelCount()).To(Equal(2))
		Expect(subject.NumBlocks()).To(Equal(4))
	})

	It("should fail to open missing files", func() {
		_, err := cntio.OpenFile(filepath.Join(dir, "missing.cnt"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("should expose channels", func() {
		c, err := subject.Channel(0)
		Expect(err).NotTo(HaveOccurred())

		label, ok := c.Label()
		Expect(ok).To(BeTrue())
		Expect(label).To(Equal("Fp1"))

		unit, ok := c.Unit()
		Expect(ok).To(BeTrue())
		Expect(unit).To(Equal("uV"))

		ref, ok := c.Reference()
		Expect(ok).To(BeTrue())
		Expect(ref).To(Equal("CPz"))

		// never written, must read back as absent rather than empty
		_, ok = c.Status()
		Expect(ok).To(BeFalse())
		_, ok = c.Type()
		Expect(ok).To(BeFalse())

		_, err = subject.Channel(2)
		Expect(err).To(MatchError(cntio.ErrIndex))
		_, err = subject.Channel(-1)
		Expect(err).To(MatchError(cntio.ErrIndex))
	})

	It("should read back samples bit-for-bit", func() {
		Expect(subject.Samples(0, 1000)).To(Equal(samples))
	})

	It("should read sample sub-ranges", func() {
		// within one block
		Expect(subject.Samples(10, 20)).To(Equal(samples[20:40]))
		// across a block boundary
		Expect(subject.Samples(250, 260)).To(Equal(samples[500:520]))
		// exactly one block
		Expect(subject.Samples(256, 512)).To(Equal(samples[512:1024]))
		// tail
		Expect(subject.Samples(990, 1000)).To(Equal(samples[1980:2000]))
	})

	It("should split ranges without altering results", func() {
		for _, m := range []uint64{0, 1, 255, 256, 257, 700, 1000} {
			head, err := subject.Samples(0, m)
			Expect(err).NotTo(HaveOccurred())
			tail, err := subject.Samples(m, 1000)
			Expect(err).NotTo(HaveOccurred())
			Expect(append(head, tail...)).To(Equal(samples), "for m=%d", m)
		}
	})

	It("should handle range boundaries", func() {
		for _, k := range []uint64{0, 1, 256, 1000} {
			Expect(subject.Samples(k, k)).To(BeEmpty(), "for k=%d", k)
		}

		_, err := subject.Samples(0, 1001)
		Expect(err).To(MatchError(cntio.ErrRange))
		_, err = subject.Samples(20, 10)
		Expect(err).To(MatchError(cntio.ErrInvalid))
	})

	It("should serve zero-copy views", func() {
		view, err := subject.SamplesView(0, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(view).To(Equal(samples[:20]))

		// the view is recycled by the next call
		next, err := subject.SamplesView(500, 510)
		Expect(err).NotTo(HaveOccurred())
		Expect(next).To(Equal(samples[1000:1020]))
	})

	It("should expose triggers in insertion order", func() {
		Expect(subject.TriggerCount()).To(Equal(2))

		t0, err := subject.Trigger(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(t0).To(Equal(cntio.Trigger{Code: "1", Sample: 100}))

		t1, err := subject.Trigger(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(t1).To(Equal(cntio.Trigger{
			Code:        "imp",
			Sample:      400,
			Duration:    10,
			Condition:   "rest",
			Description: "Impedance",
			Impedance:   "1.2 3.4",
		}))

		_, err = subject.Trigger(2)
		Expect(err).To(MatchError(cntio.ErrIndex))
		_, err = subject.Trigger(-1)
		Expect(err).To(MatchError(cntio.ErrIndex))
	})

	It("should expose recording info", func() {
		info := subject.Info()

		st, ok := info.StartTime()
		Expect(ok).To(BeTrue())
		Expect(st).To(BeTemporally("==", time.Unix(1717171717, 0)))

		days, frac, ok := info.StartDateAndFraction()
		Expect(ok).To(BeTrue())
		Expect(days).To(BeNumerically("~", 45444.0, 1.0))
		Expect(frac).To(Equal(0.0))

		hospital, ok := info.Hospital()
		Expect(ok).To(BeTrue())
		Expect(hospital).To(Equal("St. Elsewhere"))

		model, ok := info.MachineModel()
		Expect(ok).To(BeTrue())
		Expect(model).To(Equal("EE-411"))

		sex, ok := info.PatientSex()
		Expect(ok).To(BeTrue())
		Expect(sex).To(Equal(byte('F')))

		year, month, day, ok := info.DateOfBirth()
		Expect(ok).To(BeTrue())
		Expect(year).To(Equal(1984))
		Expect(month).To(Equal(time.April))
		Expect(day).To(Equal(2))
	})

	It("should report absent info fields on bare stores", func() {
		bare := filepath.Join(dir, "bare.cnt")
		w, err := cntio.CreateFile(bare, 512, seedChannels(1), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())

		r, err := cntio.OpenFile(bare)
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()

		info := r.Info()
		_, ok := info.StartTime()
		Expect(ok).To(BeFalse())
		_, _, ok = info.StartDateAndFraction()
		Expect(ok).To(BeFalse())
		_, ok = info.Hospital()
		Expect(ok).To(BeFalse())
		Expect(r.TriggerCount()).To(Equal(0))
	})

	It("should fail operations after close", func() {
		Expect(subject.Close()).To(Succeed())
		Expect(subject.Close()).To(MatchError(cntio.ErrClosed))

		_, err := subject.Samples(0, 10)
		Expect(err).To(MatchError(cntio.ErrClosed))
	})

	Describe("corruption", func() {
		It("should reject truncated stores", func() {
			raw, err := os.ReadFile(fname)
			Expect(err).NotTo(HaveOccurred())

			for _, sz := range []int{0, 13, 48, len(raw) - 1} {
				Expect(os.WriteFile(fname, raw[:sz], 0o644)).To(Succeed())
				_, err = cntio.OpenFile(fname)
				Expect(err).To(MatchError(cntio.ErrCorrupt), "for size=%d", sz)
			}
		})

		It("should reject bad magic", func() {
			raw, err := os.ReadFile(fname)
			Expect(err).NotTo(HaveOccurred())

			raw[0] = 'X'
			Expect(os.WriteFile(fname, raw, 0o644)).To(Succeed())
			_, err = cntio.OpenFile(fname)
			Expect(err).To(MatchError(cntio.ErrCorrupt))
		})

		It("should reject duplicate chunks", func() {
			raw, err := os.ReadFile(fname)
			Expect(err).NotTo(HaveOccurred())

			// relabel the info chunk as a second channel chunk
			tableOff := binary.LittleEndian.Uint64(raw[28:])
			numChunks := int(binary.LittleEndian.Uint32(raw[36:]))
			for i := 0; i < numChunks; i++ {
				if entry := raw[tableOff+uint64(i*12):]; string(entry[:4]) == "info" {
					copy(entry, "chan")
				}
			}
			Expect(os.WriteFile(fname, raw, 0o644)).To(Succeed())
			_, err = cntio.OpenFile(fname)
			Expect(err).To(MatchError(cntio.ErrCorrupt))
		})

		It("should reject out-of-range chunk and block offsets", func() {
			huge := filepath.Join(dir, "huge.cnt")
			Expect(seedFile(huge, 100, &cntio.WriterOptions{Large: true})).To(Succeed())

			pristine, err := os.ReadFile(huge)
			Expect(err).NotTo(HaveOccurred())
			tableOff := binary.LittleEndian.Uint64(pristine[28:])
			numChunks := int(binary.LittleEndian.Uint32(pristine[36:]))

			// a chunk offset near MaxInt64 must not wrap past the bounds check
			raw := append([]byte(nil), pristine...)
			binary.LittleEndian.PutUint64(raw[tableOff+4:], math.MaxInt64)
			Expect(os.WriteFile(huge, raw, 0o644)).To(Succeed())
			_, err = cntio.OpenFile(huge)
			Expect(err).To(MatchError(cntio.ErrCorrupt))

			// same for a sample block offset
			raw = append([]byte(nil), pristine...)
			for i := 0; i < numChunks; i++ {
				if entry := raw[tableOff+uint64(i*20):]; string(entry[:4]) == "blks" {
					blksOff := binary.LittleEndian.Uint64(entry[4:])
					binary.LittleEndian.PutUint64(raw[blksOff:], math.MaxInt64)
				}
			}
			Expect(os.WriteFile(huge, raw, 0o644)).To(Succeed())
			_, err = cntio.OpenFile(huge)
			Expect(err).To(MatchError(cntio.ErrCorrupt))

			// and for the table offset in the header itself
			raw = append([]byte(nil), pristine...)
			binary.LittleEndian.PutUint64(raw[28:], math.MaxInt64)
			Expect(os.WriteFile(huge, raw, 0o644)).To(Succeed())
			_, err = cntio.OpenFile(huge)
			Expect(err).To(MatchError(cntio.ErrCorrupt))
		})
	})
})
