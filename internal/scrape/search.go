package scrape

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"CrawlerJobStreet/internal/browser"
)

var totalPattern = regexp.MustCompile(`[\d,]+`)

// Search submits keyword and location, sorts the results by date and returns
// the total result count. Anything that prevents reading the count yields 0.
func (s *Session) Search(ctx context.Context, keyword, location string) int {
	sel := s.cfg.Selectors
	t := s.cfg.Timing
	log := s.log.WithFields(logrus.Fields{"keyword": keyword, "location": location})

	kw, err := s.loc.Locate(ctx, sel.KeywordInput, t.LongWait, Present)
	if err != nil {
		log.WithError(err).Error("job keyword search failed")
		return 0
	}
	if err := s.fill(ctx, kw, keyword); err != nil {
		log.WithError(err).Error("typing keyword")
		return 0
	}
	where, err := s.loc.Locate(ctx, sel.LocationInput, t.LongWait, Present)
	if err != nil {
		log.WithError(err).Error("job keyword search failed")
		return 0
	}
	if err := s.fill(ctx, where, location); err != nil {
		log.WithError(err).Error("typing location")
		return 0
	}
	if err := kw.PressEnter(ctx); err != nil {
		log.WithError(err).Error("submitting search")
		return 0
	}
	log.Info("searching for jobs")

	s.awaitSplitView(ctx)
	if err := s.sortByDate(ctx); err != nil {
		log.WithError(err).Warn("failed to sort jobs by date")
	} else {
		log.Info("sorted jobs by date")
	}
	return s.readTotal(ctx, log)
}

func (s *Session) fill(ctx context.Context, el browser.Element, text string) error {
	s.loc.Click(ctx, el)
	if err := el.Clear(ctx); err != nil {
		return err
	}
	return el.SendKeys(ctx, text)
}

// splitViewLoaded is true once the initial-view placeholder carries the
// expected heading and at least one card is on the page.
func (s *Session) splitViewLoaded(ctx context.Context) bool {
	sel := s.cfg.Selectors
	return s.loc.Exists(ctx, sel.InitialView) &&
		s.loc.TextEquals(ctx, sel.InitialViewHeading, s.cfg.Site.InitialViewHeading) &&
		s.loc.Exists(ctx, sel.JobCard)
}

func (s *Session) waitSplitView(ctx context.Context) error {
	return s.loc.Until(ctx, s.cfg.Timing.LongWait, s.splitViewLoaded)
}

// awaitSplitView falls back to a fixed sleep when the page never shows the
// exact marker.
func (s *Session) awaitSplitView(ctx context.Context) {
	if err := s.waitSplitView(ctx); err != nil {
		s.log.WithError(err).Warn("wait split view failed, fallback to sleep")
		_ = sleep(ctx, s.cfg.Timing.FallbackSleep)
	}
}

func (s *Session) sortByDate(ctx context.Context) error {
	sel := s.cfg.Selectors
	t := s.cfg.Timing

	trigger, err := s.loc.Locate(ctx, sel.SortTrigger, t.LongWait, Present)
	if err != nil {
		return fmt.Errorf("sort button: %w", err)
	}
	if !s.loc.Click(ctx, trigger) {
		return errors.New("sort button not clickable")
	}
	if _, err := s.loc.Locate(ctx, sel.SortMenu, t.ShortWait, Visible); err != nil {
		return fmt.Errorf("sort menu: %w", err)
	}
	byDate, err := s.loc.Locate(ctx, sel.SortByDate, t.ShortWait, Visible)
	if err != nil {
		return fmt.Errorf("sort by date item: %w", err)
	}
	if !s.loc.Click(ctx, byDate) {
		return errors.New("sort by date item not clickable")
	}
	s.awaitSplitView(ctx)
	return nil
}

func (s *Session) readTotal(ctx context.Context, log *logrus.Entry) int {
	el, err := s.loc.Locate(ctx, s.cfg.Selectors.TotalCount, s.cfg.Timing.LongWait, Present)
	if err != nil {
		log.WithError(err).Error("job count not found with any selector")
		return 0
	}
	text, err := el.Text(ctx)
	if err != nil {
		log.WithError(err).Error("reading job count")
		return 0
	}
	n, err := ParseTotal(text)
	if err != nil {
		log.WithError(err).WithField("text", text).Error("parsing job count")
		return 0
	}
	log.WithField("total", n).Info("total jobs found")
	return n
}

// ParseTotal reads the first run of digits and commas, e.g. "1,234 jobs".
func ParseTotal(text string) (int, error) {
	m := totalPattern.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("no number in %q", text)
	}
	return strconv.Atoi(strings.ReplaceAll(m, ",", ""))
}
