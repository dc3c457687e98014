package scrape

import (
	"context"
	"strings"
)

// NextPage advances to the next results page. It returns false at the end
// of the results, and also when the next page never finishes loading.
func (s *Session) NextPage(ctx context.Context) bool {
	sel := s.cfg.Selectors
	t := s.cfg.Timing
	log := s.log.WithField("step", "next_page")

	next, err := s.loc.Locate(ctx, sel.NextPage, t.ShortWait, Present)
	if err != nil {
		log.WithError(err).Info("no next page control")
		return false
	}
	if v, ok, err := next.Attribute(ctx, s.cfg.Site.NextHiddenAttribute); err == nil && ok && strings.EqualFold(strings.TrimSpace(v), "true") {
		log.Info("next page control hidden, last page reached")
		return false
	}

	before, _ := s.b.CurrentURL(ctx)
	if !s.loc.Click(ctx, next) {
		return false
	}
	err = s.loc.Until(ctx, t.ShortWait, func(ctx context.Context) bool {
		u, err := s.b.CurrentURL(ctx)
		return err == nil && u != before
	})
	if err != nil {
		log.WithError(err).Warn("url did not change after clicking next")
		return false
	}
	if err := s.waitSplitView(ctx); err != nil {
		log.WithError(err).Warn("next page did not finish loading")
		return false
	}
	log.Info("navigated to the next page")
	return true
}
