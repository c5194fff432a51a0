package cntio_test

import (
	"os"
	"path/filepath"

	"github.com/bsm/cntio"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Writer", func() {
	var dir, fname string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "cntio-test")
		Expect(err).NotTo(HaveOccurred())
		fname = filepath.Join(dir, "rec.cnt")
	})

	AfterEach(func() {
		_ = os.RemoveAll(dir)
	})

	It("should reject empty channel tables", func() {
		_, err := cntio.CreateFile(fname, 512, cntio.NewChannelTable(), nil)
		Expect(err).To(MatchError(cntio.ErrInvalid))

		_, err = cntio.CreateFile(fname, 512, nil, nil)
		Expect(err).To(MatchError(cntio.ErrInvalid))
	})

	It("should reject bad sample rates", func() {
		_, err := cntio.CreateFile(fname, 0, seedChannels(2), nil)
		Expect(err).To(MatchError(cntio.ErrInvalid))
	})

	It("should reject partial frames", func() {
		w, err := cntio.CreateFile(fname, 512, seedChannels(2), nil)
		Expect(err).NotTo(HaveOccurred())
		defer w.Close()

		Expect(w.AddSamples(make([]float32, 7))).To(MatchError(cntio.ErrInvalid))
	})

	It("should write empty recordings", func() {
		w, err := cntio.CreateFile(fname, 512, seedChannels(2), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())

		r, err := cntio.OpenFile(fname)
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()

		Expect(r.SampleCount()).To(Equal(uint64(0)))
		Expect(r.NumBlocks()).To(Equal(0))
		Expect(r.Samples(0, 0)).To(BeEmpty())
	})

	It("should stream full blocks and flush the remainder on close", func() {
		w, err := cntio.CreateFile(fname, 512, seedChannels(2), &cntio.WriterOptions{BlockSize: 100})
		Expect(err).NotTo(HaveOccurred())

		Expect(w.AddSamples(seedSamples(250, 2, 1))).To(Succeed())
		Expect(w.SampleCount()).To(Equal(uint64(250)))
		Expect(w.Close()).To(Succeed())

		r, err := cntio.OpenFile(fname)
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()

		Expect(r.SampleCount()).To(Equal(uint64(250)))
		Expect(r.NumBlocks()).To(Equal(3)) // 100 + 100 + 50
	})

	It("should fail operations after close", func() {
		w, err := cntio.CreateFile(fname, 512, seedChannels(2), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())

		Expect(w.Close()).To(MatchError(cntio.ErrClosed))
		Expect(w.AddSamples(make([]float32, 2))).To(MatchError(cntio.ErrClosed))
		Expect(w.AddTrigger(cntio.Trigger{Code: "1"})).To(MatchError(cntio.ErrClosed))
		Expect(w.SetInfo(seedInfo())).To(MatchError(cntio.ErrClosed))
	})

	It("should snapshot the channel table at creation time", func() {
		channels := seedChannels(2)
		w, err := cntio.CreateFile(fname, 512, channels, nil)
		Expect(err).NotTo(HaveOccurred())

		channels.Add("EOG", "CPz", "uV") // must not affect the session
		Expect(w.ChannelCount()).To(Equal(2))
		Expect(w.AddSamples(seedSamples(10, 2, 1))).To(Succeed())
		Expect(w.Close()).To(Succeed())

		r, err := cntio.OpenFile(fname)
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()
		Expect(r.ChannelCount()).To(Equal(2))
	})

	It("should write the large variant", func() {
		Expect(seedFile(fname, 500, &cntio.WriterOptions{Large: true})).To(Succeed())

		r, err := cntio.OpenFile(fname)
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()

		Expect(r.Variant()).To(Equal(cntio.Large))
		Expect(r.SampleCount()).To(Equal(uint64(500)))
		Expect(r.Samples(0, 500)).To(Equal(seedSamples(500, 2, 1)))
		Expect(r.TriggerCount()).To(Equal(2))
	})

	It("should require a close before the store is readable", func() {
		w, err := cntio.CreateFile(fname, 512, seedChannels(2), &cntio.WriterOptions{BlockSize: 100})
		Expect(err).NotTo(HaveOccurred())
		Expect(w.AddSamples(seedSamples(150, 2, 1))).To(Succeed())

		// no chunk table yet
		_, err = cntio.OpenFile(fname)
		Expect(err).To(MatchError(cntio.ErrCorrupt))

		Expect(w.Close()).To(Succeed())
		r, err := cntio.OpenFile(fname)
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()
		Expect(r.SampleCount()).To(Equal(uint64(150)))
	})
})
