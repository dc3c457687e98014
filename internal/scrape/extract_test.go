package scrape_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"CrawlerJobStreet/internal/browser"
	"CrawlerJobStreet/internal/config"
	"CrawlerJobStreet/internal/logging"
	"CrawlerJobStreet/internal/model"
	"CrawlerJobStreet/internal/scrape"
)

func fixture(name string) string {
	b, err := os.ReadFile(filepath.Join("testdata", name))
	Expect(err).ToNot(HaveOccurred())
	return string(b)
}

var _ = Describe("Extract", func() {
	var (
		b    *fakeBrowser
		cfg  config.Config
		pane *fakeElement
		ctx  context.Context
		now  = time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC)
	)

	session := func() *scrape.Session {
		return scrape.New(b, cfg, &scriptedCodes{}, logging.Discard(),
			scrape.WithClock(func() time.Time { return now }))
	}

	BeforeEach(func() {
		b = newFakeBrowser()
		cfg = testConfig()
		pane = el("")
		b.set(cfg.Selectors.DetailPane[0], pane)
		ctx = context.Background()
	})

	It("reads every field of a full detail pane", func() {
		pane.html = fixture("detail.html")

		rec, err := session().Extract(ctx, card(1))
		Expect(err).ToNot(HaveOccurred())
		Expect(rec).ToNot(BeNil())

		Expect(model.Deref(rec.Title)).To(Equal("Senior Linux Engineer"))
		Expect(model.Deref(rec.Location)).To(Equal("Jakarta Selatan, Jakarta Raya"))
		Expect(model.Deref(rec.Classification)).To(Equal("Information & Communication Technology"))
		Expect(model.Deref(rec.Type)).To(Equal("Full time"))
		Expect(model.Deref(rec.SalaryRange)).To(Equal("Rp 15.000.000 - Rp 20.000.000"))
		Expect(rec.PostedDate.String()).To(Equal("10-06-2023"))
		Expect(model.Deref(rec.Requirements)).To(Equal("Manage production servers.\nLinux\nAnsible"))
		Expect(model.Deref(rec.ApplyLink)).To(Equal("https://id.jobstreet.com/id/job/12345/apply?ref=search"))
		Expect(model.Deref(rec.URL)).To(Equal("https://id.jobstreet.com/id/job/12345/"))

		Expect(model.Deref(rec.CompanyProfile.Name)).To(Equal("PT Contoh Teknologi"))
		Expect(model.Deref(rec.CompanyProfile.Rating)).To(Equal("4.2"))
		Expect(model.Deref(rec.BusinessType)).To(Equal("Information Technology"))
		Expect(model.Deref(rec.EmployeesCount)).To(Equal("51-200"))
		Expect(rec.Benefits).To(Equal([]string{"Health insurance", "Remote work"}))
	})

	It("leaves absent fields nil", func() {
		pane.html = fixture("detail_minimal.html")

		rec, err := session().Extract(ctx, card(1))
		Expect(err).ToNot(HaveOccurred())
		Expect(model.Deref(rec.Title)).To(Equal("Junior SRE"))
		Expect(rec.PostedDate.Kind).To(Equal(model.PostedOlderThan30Days))
		Expect(rec.SalaryRange).To(BeNil())
		Expect(rec.Requirements).To(BeNil())
		Expect(rec.ApplyLink).To(BeNil())
		Expect(rec.URL).To(BeNil())
		Expect(rec.CompanyProfile.Name).To(BeNil())
		Expect(rec.BusinessType).To(BeNil())
		Expect(rec.EmployeesCount).To(BeNil())
		Expect(rec.Benefits).To(BeNil())
	})

	It("keeps an empty, non-nil benefit list when the section is blank", func() {
		pane.html = fixture("detail_empty_benefits.html")

		rec, err := session().Extract(ctx, card(1))
		Expect(err).ToNot(HaveOccurred())
		Expect(rec.Benefits).ToNot(BeNil())
		Expect(rec.Benefits).To(BeEmpty())
		Expect(rec.BusinessType).To(BeNil())
		Expect(model.Deref(rec.URL)).To(Equal("https://id.jobstreet.com/id/job/9/"))
	})

	It("skips a card that cannot be clicked", func() {
		c := card(1)
		c.clickErr = browser.ErrStaleElement
		pane.html = fixture("detail.html")

		rec, err := session().Extract(ctx, c)
		Expect(err).ToNot(HaveOccurred())
		Expect(rec).To(BeNil())
	})

	It("fails the card when the detail pane never appears", func() {
		b.remove(cfg.Selectors.DetailPane[0])

		rec, err := session().Extract(ctx, card(1))
		Expect(rec).To(BeNil())
		Expect(errors.Is(err, scrape.ErrElementNotFound)).To(BeTrue())
	})
})
