package normalize

import "strings"

var textReplacer = strings.NewReplacer(
	"\u200b", "", "\u200c", "", "\u200d", "", "\u200e", "", "\u200f", "",
	"\u2060", "",
	"\ufeff", "",
	"\u2013", "-",
	"\u2014", "-",
)

// CleanText strips zero-width characters and turns en/em dashes into '-'.
func CleanText(s string) string {
	if s == "" {
		return s
	}
	return textReplacer.Replace(s)
}
