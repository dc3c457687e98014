package scrape_test

import (
	"bytes"
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"CrawlerJobStreet/internal/config"
	"CrawlerJobStreet/internal/logging"
	"CrawlerJobStreet/internal/model"
	"CrawlerJobStreet/internal/scrape"
)

type recordingSink struct {
	pages [][]model.JobRecord
}

func (s *recordingSink) WritePage(_ context.Context, records []model.JobRecord) error {
	s.pages = append(s.pages, records)
	return nil
}

func paneHTML(title string) string {
	return fmt.Sprintf(`<div data-automation="jobDetailsPage">
  <h1 data-automation="job-detail-title">%s</h1>
  <a data-automation="job-detail-apply" href="/id/job/%s/apply">Apply</a>
</div>`, title, title)
}

var _ = Describe("Session", func() {
	var (
		b        *fakeBrowser
		cfg      config.Config
		results  *resultsPage
		pane     *fakeElement
		next     *fakeElement
		codes    *scriptedCodes
		sink     *recordingSink
		progress *bytes.Buffer
		cards    map[string][]*fakeElement
		ctx      context.Context
	)

	newSession := func() *scrape.Session {
		return scrape.New(b, cfg, codes, logging.Discard(),
			scrape.WithSinks(sink), scrape.WithProgress(progress))
	}

	clickable := func(n int) *fakeElement {
		c := card(n)
		c.onClick = func() { pane.html = paneHTML(fmt.Sprintf("job%d", n)) }
		return c
	}

	BeforeEach(func() {
		b = newFakeBrowser()
		cfg = testConfig()
		setupLogin(b, cfg.Selectors, "123456")
		results = setupResults(b, cfg, "")
		pane = el("")
		b.set(cfg.Selectors.DetailPane[0], pane)
		next = el("Selanjutnya")
		next.attrs["aria-hidden"] = "true"
		b.set(cfg.Selectors.NextPage[0], next)

		codes = &scriptedCodes{codes: []string{"123456"}}
		sink = &recordingSink{}
		progress = &bytes.Buffer{}
		ctx = context.Background()

		cards = map[string][]*fakeElement{
			"a": nil,
			"b": {clickable(2), clickable(1)},
		}
		counts := map[string]string{"a": "0 jobs", "b": "2 jobs"}
		results.keyword.onEnter = func() {
			kw := results.keyword.value
			results.count.text = counts[kw]
			if len(cards[kw]) == 0 {
				b.remove(cfg.Selectors.JobCard[0])
				return
			}
			b.set(cfg.Selectors.JobCard[0], cards[kw]...)
		}
	})

	It("skips a keyword without results and numbers the rest from 1", func() {
		s := newSession()
		records, err := s.Run(ctx, []string{"a", "b"})
		Expect(err).ToNot(HaveOccurred())

		Expect(records).To(HaveLen(2))
		Expect(records[0].ID).To(Equal(1))
		Expect(records[1].ID).To(Equal(2))
		for _, r := range records {
			Expect(r.SearchKeyword).To(Equal("b"))
			Expect(r.Platform).To(Equal("JobStreet"))
		}
		Expect(model.Deref(records[0].Title)).To(Equal("job1"))
		Expect(model.Deref(records[1].Title)).To(Equal("job2"))
		Expect(model.Deref(records[0].URL)).To(Equal("https://id.jobstreet.com/id/job/job1/"))

		Expect(sink.pages).To(HaveLen(1))
		Expect(sink.pages[0]).To(HaveLen(2))
		Expect(next.clicks).To(BeZero())
		Expect(progress.String()).To(ContainSubstring("Processing job card 1/2 on page 1"))
		Expect(progress.String()).To(ContainSubstring("Total jobs scraped: 2"))
	})

	It("releases the browser exactly once", func() {
		s := newSession()
		_, err := s.Run(ctx, []string{"b"})
		Expect(err).ToNot(HaveOccurred())
		Expect(s.Close()).To(Succeed())
		Expect(b.closes).To(Equal(1))
	})

	It("processes cards in their numeric order", func() {
		b.set(cfg.Selectors.JobCard[0], card(3), card(1), card(2))

		got, err := newSession().JobCards(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(cardIDs(got)).To(Equal([]string{"jobcard-1", "jobcard-2", "jobcard-3"}))
	})

	It("follows the next page until the control is hidden", func() {
		cards["b"] = []*fakeElement{clickable(1)}
		next.attrs["aria-hidden"] = "false"
		next.onClick = func() {
			b.url += "?page=2"
			b.set(cfg.Selectors.JobCard[0], clickable(2))
			next.attrs["aria-hidden"] = "true"
		}

		records, err := newSession().Run(ctx, []string{"b"})
		Expect(err).ToNot(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(records[1].ID).To(Equal(2))
		Expect(sink.pages).To(HaveLen(2))
		Expect(next.clicks).To(Equal(1))
	})

	It("skips cards that fail without stopping the page", func() {
		broken := card(1)
		broken.onClick = func() { b.remove(cfg.Selectors.DetailPane[0]) }
		good := card(2)
		good.onClick = func() {
			b.set(cfg.Selectors.DetailPane[0], pane)
			pane.html = paneHTML("job2")
		}
		cards["b"] = []*fakeElement{good, broken}

		records, err := newSession().Run(ctx, []string{"b"})
		Expect(err).ToNot(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].ID).To(Equal(1))
		Expect(model.Deref(records[0].Title)).To(Equal("job2"))
	})

	It("aborts on zero results when the policy says so", func() {
		cfg.Policy.ZeroResults = config.ZeroResultsAbort

		records, err := newSession().Run(ctx, []string{"a", "b"})
		Expect(err).To(MatchError(scrape.ErrZeroResults))
		Expect(records).To(BeEmpty())
		Expect(b.closes).To(Equal(1))
	})

	It("stops before searching when login fails", func() {
		codes.codes = []string{"000000", "111111", "222222"}

		_, err := newSession().Run(ctx, []string{"b"})
		Expect(err).To(MatchError(scrape.ErrOTPFailed))
		Expect(results.keyword.enters).To(BeZero())
		Expect(b.closes).To(Equal(1))
	})

	It("turns a panic into an error and still closes the browser", func() {
		s := scrape.New(b, cfg, panickingCodes{}, logging.Discard())

		_, err := s.Run(ctx, []string{"b"})
		Expect(err).To(MatchError(ContainSubstring("operator went away")))
		Expect(b.closes).To(Equal(1))
	})
})
