// Package scrape drives the job site through a browser.Browser: login with
// an emailed one-time code, keyword search sorted by date, paging through
// results and extracting every listing's detail pane.
package scrape

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"CrawlerJobStreet/internal/browser"
	"CrawlerJobStreet/internal/config"
	"CrawlerJobStreet/internal/model"
)

// PageSink receives each page's records as soon as the page is done.
type PageSink interface {
	WritePage(ctx context.Context, records []model.JobRecord) error
}

// Session owns the browser for the whole run and accumulates the records.
type Session struct {
	b     browser.Browser
	cfg   config.Config
	codes CodeSource
	loc   *Locator
	log   *logrus.Entry

	sinks    []PageSink
	progress io.Writer
	now      func() time.Time

	records   []model.JobRecord
	closeOnce sync.Once
	closeErr  error
}

type Option func(*Session)

// WithSinks adds page sinks, called in order after every page.
func WithSinks(sinks ...PageSink) Option {
	return func(s *Session) { s.sinks = append(s.sinks, sinks...) }
}

// WithProgress sets where the per-page and per-card progress lines go.
func WithProgress(w io.Writer) Option {
	return func(s *Session) { s.progress = w }
}

// WithClock replaces time.Now for posted-date computation.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func New(b browser.Browser, cfg config.Config, codes CodeSource, log *logrus.Logger, opts ...Option) *Session {
	entry := log.WithField("component", "scrape")
	s := &Session{
		b:        b,
		cfg:      cfg,
		codes:    codes,
		loc:      NewLocator(b, cfg.Timing.PollInterval, entry.WithField("component", "locator")),
		log:      entry,
		progress: io.Discard,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close releases the browser. Only the first call reaches it.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.log.Info("closing the browser")
		s.closeErr = s.b.Close()
	})
	return s.closeErr
}

// Run logs in and scrapes every keyword in order. The browser is released
// before Run returns, whatever happened; the records gathered up to a
// failure are returned alongside the error.
func (s *Session) Run(ctx context.Context, keywords []string) (records []model.JobRecord, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scrape aborted: %v", r)
		}
		if err != nil {
			s.log.WithError(err).Error("error during job scraping")
		}
		if cerr := s.Close(); cerr != nil {
			s.log.WithError(cerr).Warn("closing browser")
		}
		elapsed := time.Since(start)
		s.log.WithFields(logrus.Fields{"jobs": len(s.records), "elapsed": elapsed.Round(time.Millisecond).String()}).Info("scrape finished")
		fmt.Fprintf(s.progress, "Total jobs scraped: %d, took %.2fs\n", len(s.records), elapsed.Seconds())
		records = s.records
	}()

	if err := s.b.Navigate(ctx, s.cfg.Site.URL); err != nil {
		return nil, fmt.Errorf("opening %s: %w", s.cfg.Site.URL, err)
	}
	if err := s.Login(ctx); err != nil {
		return nil, err
	}
	if err := sleep(ctx, s.cfg.Timing.PostLoginPause); err != nil {
		return nil, err
	}

	for _, kw := range keywords {
		if err := s.scrapeKeyword(ctx, kw); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (s *Session) scrapeKeyword(ctx context.Context, keyword string) error {
	log := s.log.WithField("keyword", keyword)
	if err := s.b.Navigate(ctx, s.cfg.Site.URL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Error("could not open search page, skipping keyword")
		return nil
	}

	sc := model.SearchContext{Keyword: keyword, Location: s.cfg.Site.Location}
	sc.Total = s.Search(ctx, sc.Keyword, sc.Location)
	if sc.Total == 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.cfg.Policy.ZeroResults == config.ZeroResultsAbort {
			return fmt.Errorf("%w: %q", ErrZeroResults, keyword)
		}
		log.Warn("job search failed or no jobs found, skipping keyword")
		fmt.Fprintf(s.progress, "No jobs found for %q, skipping\n", keyword)
		return nil
	}
	log.WithField("total", sc.Total).Info("jobs to process")
	fmt.Fprintf(s.progress, "Total jobs found for %q: %d\n", keyword, sc.Total)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if s.cfg.Timing.CardInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(s.cfg.Timing.CardInterval), 1)
	}

	for sc.Page = 1; ; sc.Page++ {
		page, err := s.scrapePage(ctx, &sc, limiter)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.progress, "Completed page %d, total jobs: %d\n", sc.Page, sc.Counter)
		log.WithFields(logrus.Fields{"page": sc.Page, "scraped": sc.Counter}).Info("completed page")
		s.flush(ctx, page)

		if !s.NextPage(ctx) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Info("no more pages to scrape")
			return nil
		}
	}
}

func (s *Session) scrapePage(ctx context.Context, sc *model.SearchContext, limiter *rate.Limiter) ([]model.JobRecord, error) {
	log := s.log.WithFields(logrus.Fields{"keyword": sc.Keyword, "page": sc.Page})
	cards, err := s.JobCards(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Error("job cards not found")
		return nil, nil
	}
	log.WithField("cards", len(cards)).Info("found job cards")

	var page []model.JobRecord
	for i, card := range cards {
		if err := limiter.Wait(ctx); err != nil {
			return page, err
		}
		fmt.Fprintf(s.progress, "Processing job card %d/%d on page %d\n", i+1, len(cards), sc.Page)
		started := time.Now()

		rec, err := s.Extract(ctx, card)
		if err != nil {
			if ctx.Err() != nil {
				return page, ctx.Err()
			}
			log.WithError(err).WithField("card", i+1).Warn("failed to extract job details")
			continue
		}
		if rec == nil {
			continue
		}

		rec.ID = len(s.records) + 1
		rec.SearchKeyword = sc.Keyword
		rec.Platform = s.cfg.Site.Platform
		s.records = append(s.records, *rec)
		page = append(page, *rec)
		sc.Counter++
		log.WithFields(logrus.Fields{
			"id":      rec.ID,
			"title":   model.Deref(rec.Title),
			"elapsed": time.Since(started).Round(time.Millisecond).String(),
		}).Info("job processed")
	}
	return page, nil
}

func (s *Session) flush(ctx context.Context, page []model.JobRecord) {
	if len(page) == 0 {
		return
	}
	for _, sink := range s.sinks {
		if err := sink.WritePage(ctx, page); err != nil {
			s.log.WithError(err).Error("page sink failed")
		}
	}
}

// JobCards returns the result cards on the current page ordered by the
// numeric index in their id. Cards can render out of DOM order.
func (s *Session) JobCards(ctx context.Context) ([]browser.Element, error) {
	cards, err := s.loc.LocateAll(ctx, s.cfg.Selectors.JobCard, s.cfg.Timing.LongWait)
	if err != nil {
		return nil, err
	}
	type indexed struct {
		el  browser.Element
		idx int
	}
	list := make([]indexed, 0, len(cards))
	for _, c := range cards {
		list = append(list, indexed{el: c, idx: s.cardIndex(ctx, c)})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].idx < list[j].idx })

	out := make([]browser.Element, len(list))
	for i, c := range list {
		out[i] = c.el
	}
	return out, nil
}

// cardIndex parses N from "jobcard-N"; unreadable ids sort last.
func (s *Session) cardIndex(ctx context.Context, card browser.Element) int {
	const unknown = int(^uint(0) >> 1)
	id, ok, err := card.Attribute(ctx, "id")
	if err != nil || !ok {
		return unknown
	}
	raw := strings.TrimPrefix(id, s.cfg.Site.CardIDPrefix)
	if i := strings.LastIndex(raw, "-"); i >= 0 {
		raw = raw[i+1:]
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return unknown
	}
	return n
}
