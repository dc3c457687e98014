package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"CrawlerJobStreet/internal/model"
)

const postedMarker = "Posted"

var firstNumber = regexp.MustCompile(`\d+`)

// ParsePostedDate turns "Posted 5 days ago" into a day relative to now.
// Text without the marker, or without a number, is unknown; "30+" is the
// older-than-window sentinel.
func ParsePostedDate(text string, now time.Time) model.PostedDate {
	if text == "" || !strings.Contains(text, postedMarker) {
		return model.PostedDate{}
	}
	rest := strings.TrimSpace(strings.ReplaceAll(text, postedMarker, ""))
	if strings.Contains(rest, "30+") {
		return model.PostedDate{Kind: model.PostedOlderThan30Days}
	}
	m := firstNumber.FindString(rest)
	if m == "" {
		return model.PostedDate{}
	}
	days, err := strconv.Atoi(m)
	if err != nil {
		return model.PostedDate{}
	}
	y, mo, d := now.AddDate(0, 0, -days).Date()
	return model.PostedAt(time.Date(y, mo, d, 0, 0, 0, 0, now.Location()))
}
