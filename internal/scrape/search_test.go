package scrape_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"CrawlerJobStreet/internal/config"
	"CrawlerJobStreet/internal/logging"
	"CrawlerJobStreet/internal/scrape"
)

var _ = Describe("Search", func() {
	var (
		b    *fakeBrowser
		cfg  config.Config
		page *resultsPage
		ctx  context.Context
	)

	session := func() *scrape.Session {
		return scrape.New(b, cfg, &scriptedCodes{}, logging.Discard())
	}

	BeforeEach(func() {
		b = newFakeBrowser()
		cfg = testConfig()
		page = setupResults(b, cfg, "1,234 jobs")
		b.set(cfg.Selectors.JobCard[0], card(1))
		ctx = context.Background()
	})

	It("fills the search bar, sorts by date and reads the count", func() {
		page.keyword.value = "previous search"

		Expect(session().Search(ctx, "linux", "Jakarta Raya")).To(Equal(1234))
		Expect(page.keyword.value).To(Equal("linux"))
		Expect(page.location.value).To(Equal("Jakarta Raya"))
		Expect(page.keyword.enters).To(Equal(1))
		Expect(page.trigger.clicks).To(Equal(1))
		Expect(page.byDate.clicks).To(Equal(1))
	})

	It("uses the second sort trigger when the first is missing", func() {
		b.remove(cfg.Selectors.SortTrigger[0])
		alt := el("Sort")
		b.set(cfg.Selectors.SortTrigger[1], alt)

		Expect(session().Search(ctx, "linux", "Jakarta Raya")).To(Equal(1234))
		Expect(alt.clicks).To(Equal(1))
	})

	It("still reads the count when sorting fails", func() {
		b.remove(cfg.Selectors.SortMenu[0])

		Expect(session().Search(ctx, "linux", "Jakarta Raya")).To(Equal(1234))
		Expect(page.byDate.clicks).To(BeZero())
	})

	It("falls back to sleeping when the split view heading differs", func() {
		b.set(cfg.Selectors.InitialViewHeading[0], el("Something else"))

		Expect(session().Search(ctx, "linux", "Jakarta Raya")).To(Equal(1234))
	})

	It("reads the count from a later candidate", func() {
		b.remove(cfg.Selectors.TotalCount[0])
		b.set(cfg.Selectors.TotalCount[3], el("87 lowongan"))

		Expect(session().Search(ctx, "linux", "Jakarta Raya")).To(Equal(87))
	})

	It("returns 0 when no count element exists", func() {
		b.remove(cfg.Selectors.TotalCount[0])

		Expect(session().Search(ctx, "linux", "Jakarta Raya")).To(BeZero())
	})

	It("returns 0 when the count has no digits", func() {
		page.count.text = "No jobs"

		Expect(session().Search(ctx, "linux", "Jakarta Raya")).To(BeZero())
	})

	It("returns 0 when the search bar is missing", func() {
		b.remove(cfg.Selectors.KeywordInput[0])

		Expect(session().Search(ctx, "linux", "Jakarta Raya")).To(BeZero())
		Expect(page.trigger.clicks).To(BeZero())
	})
})

var _ = DescribeTable("ParseTotal",
	func(text string, want int, ok bool) {
		n, err := scrape.ParseTotal(text)
		if !ok {
			Expect(err).To(HaveOccurred())
			return
		}
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(want))
	},
	Entry("plain", "42 jobs", 42, true),
	Entry("thousands separator", "1,234 jobs", 1234, true),
	Entry("leading text", "Showing 7 of many", 7, true),
	Entry("zero", "0 jobs", 0, true),
	Entry("no digits", "No jobs", 0, false),
	Entry("commas only", ", ,", 0, false),
)
