package scrape_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"CrawlerJobStreet/internal/browser"
	"CrawlerJobStreet/internal/logging"
	"CrawlerJobStreet/internal/scrape"
)

var _ = Describe("Locator", func() {
	var (
		b   *fakeBrowser
		loc *scrape.Locator
		ctx context.Context
	)

	BeforeEach(func() {
		b = newFakeBrowser()
		loc = scrape.NewLocator(b, time.Millisecond, logging.Discard().WithField("test", "locator"))
		ctx = context.Background()
	})

	Describe("Locate", func() {
		It("returns the first candidate that matches", func() {
			want := el("second")
			b.set("#second", want)

			got, err := loc.Locate(ctx, []string{"#first", "#second"}, 10*time.Millisecond, scrape.Present)
			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(BeIdenticalTo(want))
			Expect(b.finds["#first"]).To(BeNumerically(">", 1))
		})

		It("waits for an element that shows up late", func() {
			b.set("#late", el("late"))
			b.delay["#late"] = 5

			got, err := loc.Locate(ctx, []string{"#late"}, 200*time.Millisecond, scrape.Present)
			Expect(err).ToNot(HaveOccurred())
			Expect(got).ToNot(BeNil())
			Expect(b.finds["#late"]).To(Equal(6))
		})

		It("skips hidden elements when visibility is required", func() {
			hidden := el("hidden")
			hidden.hidden = true
			shown := el("shown")
			b.set("div", hidden, shown)

			got, err := loc.Locate(ctx, []string{"div"}, 10*time.Millisecond, scrape.Visible)
			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(BeIdenticalTo(shown))
		})

		It("fails with a NotFoundError carrying the selector", func() {
			_, err := loc.Locate(ctx, []string{"#missing"}, 5*time.Millisecond, scrape.Present)
			Expect(errors.Is(err, scrape.ErrElementNotFound)).To(BeTrue())

			var nf *scrape.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
			Expect(nf.Selector).To(Equal("#missing"))
		})

		It("stops waiting when the context ends", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := loc.Locate(cctx, []string{"#missing"}, time.Second, scrape.Present)
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Describe("LocateAll", func() {
		It("returns all matches of the first matching candidate", func() {
			b.set("article", card(1), card(2))

			got, err := loc.LocateAll(ctx, []string{"li", "article"}, 5*time.Millisecond)
			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(HaveLen(2))
		})
	})

	Describe("WaitText", func() {
		It("matches trimmed text exactly", func() {
			b.set("h3", el("  Pilih lowongan kerja \n"))
			Expect(loc.WaitText(ctx, []string{"h3"}, "Pilih lowongan kerja", 5*time.Millisecond)).To(Succeed())
		})

		It("times out on a partial match", func() {
			b.set("h3", el("Pilih lowongan kerja lain"))
			err := loc.WaitText(ctx, []string{"h3"}, "Pilih lowongan kerja", 5*time.Millisecond)
			Expect(err).To(MatchError(scrape.ErrWaitTimeout))
		})
	})

	Describe("Click", func() {
		It("reports success", func() {
			e := el("ok")
			Expect(loc.Click(ctx, e)).To(BeTrue())
			Expect(e.clicks).To(Equal(1))
		})

		DescribeTable("turns rejected clicks into false",
			func(clickErr error) {
				e := el("x")
				e.clickErr = clickErr
				Expect(loc.Click(ctx, e)).To(BeFalse())
			},
			Entry("stale element", browser.ErrStaleElement),
			Entry("intercepted click", browser.ErrClickIntercepted),
			Entry("anything else", errors.New("boom")),
		)
	})
})
