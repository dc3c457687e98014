package scrape_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"CrawlerJobStreet/internal/browser"
	"CrawlerJobStreet/internal/config"
	"CrawlerJobStreet/internal/logging"
	"CrawlerJobStreet/internal/scrape"
)

var _ = Describe("NextPage", func() {
	var (
		b    *fakeBrowser
		cfg  config.Config
		next *fakeElement
		ctx  context.Context
	)

	session := func() *scrape.Session {
		return scrape.New(b, cfg, &scriptedCodes{}, logging.Discard())
	}

	BeforeEach(func() {
		b = newFakeBrowser()
		cfg = testConfig()
		setupResults(b, cfg, "40 jobs")
		b.set(cfg.Selectors.JobCard[0], card(1))
		b.url = "https://id.jobstreet.com/linux-jobs"

		next = el("Selanjutnya")
		next.onClick = func() { b.url = "https://id.jobstreet.com/linux-jobs?page=2" }
		b.set(cfg.Selectors.NextPage[0], next)
		ctx = context.Background()
	})

	It("stops without clicking when the control is hidden", func() {
		next.attrs["aria-hidden"] = "true"

		Expect(session().NextPage(ctx)).To(BeFalse())
		Expect(next.clicks).To(BeZero())
		Expect(b.url).To(Equal("https://id.jobstreet.com/linux-jobs"))
	})

	It("advances when the click reloads the split view", func() {
		next.attrs["aria-hidden"] = "false"

		Expect(session().NextPage(ctx)).To(BeTrue())
		Expect(next.clicks).To(Equal(1))
		Expect(b.url).To(HaveSuffix("?page=2"))
	})

	It("stops when there is no next control", func() {
		b.remove(cfg.Selectors.NextPage[0])

		Expect(session().NextPage(ctx)).To(BeFalse())
	})

	It("stops when the click is rejected", func() {
		next.clickErr = browser.ErrStaleElement

		Expect(session().NextPage(ctx)).To(BeFalse())
	})

	It("stops when the page does not change", func() {
		next.onClick = nil

		Expect(session().NextPage(ctx)).To(BeFalse())
	})

	It("stops when the next page never finishes loading", func() {
		next.onClick = func() {
			b.url = "https://id.jobstreet.com/linux-jobs?page=2"
			b.remove(cfg.Selectors.JobCard[0])
		}

		Expect(session().NextPage(ctx)).To(BeFalse())
	})
})
