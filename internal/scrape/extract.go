package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"CrawlerJobStreet/internal/browser"
	"CrawlerJobStreet/internal/config"
	"CrawlerJobStreet/internal/model"
	"CrawlerJobStreet/internal/normalize"
)

// Extract opens a card and reads its detail pane. A card that cannot be
// clicked yields (nil, nil). A missing detail pane is an error for this card
// only.
func (s *Session) Extract(ctx context.Context, card browser.Element) (*model.JobRecord, error) {
	if !s.loc.Click(ctx, card) {
		return nil, nil
	}
	pane, err := s.loc.Locate(ctx, s.cfg.Selectors.DetailPane, s.cfg.Timing.LongWait, Present)
	if err != nil {
		return nil, fmt.Errorf("job details not found after clicking the card: %w", err)
	}
	raw, err := pane.OuterHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading job details: %w", err)
	}
	d := detailParser{
		sel:  s.cfg.Selectors,
		site: s.cfg.Site,
		now:  s.now(),
		log:  s.log.WithField("step", "extract"),
	}
	return d.parse(raw)
}

type detailParser struct {
	sel  config.Selectors
	site config.Site
	now  time.Time
	log  *logrus.Entry
}

func (d detailParser) parse(raw string) (*model.JobRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing job details: %w", err)
	}
	root := doc.Selection

	rec := &model.JobRecord{
		Title:          d.text(root, config.FieldTitle),
		Location:       d.text(root, config.FieldLocation),
		Classification: d.text(root, config.FieldClassification),
		Type:           d.text(root, config.FieldType),
		Requirements:   d.blockText(root, config.FieldRequirements),
	}
	rec.CompanyProfile.Name = d.text(root, config.FieldCompany)
	rec.CompanyProfile.Rating = d.text(root, config.FieldRating)

	if salary := d.text(root, config.FieldSalary); salary != nil {
		v := strings.TrimSpace(normalize.CleanText(strings.ReplaceAll(*salary, d.site.SalarySuffix, "")))
		if v != "" {
			rec.SalaryRange = &v
		}
	}

	rec.PostedDate = normalize.ParsePostedDate(d.postedText(root), d.now)

	if href, ok := d.attr(root, config.FieldApplyLink, "href"); ok {
		link := d.absolute(href)
		rec.ApplyLink = &link
		canonical := link
		if i := strings.Index(link, "apply"); i >= 0 {
			canonical = link[:i]
		}
		rec.URL = &canonical
	}

	d.companyProfile(root, &rec.CompanyProfile)
	return rec, nil
}

// first returns the first match among the field's candidate selectors.
func (d detailParser) first(root *goquery.Selection, field string) *goquery.Selection {
	for _, sel := range d.sel.Fields[field] {
		if found := root.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func (d detailParser) text(root *goquery.Selection, field string) *string {
	found := d.first(root, field)
	if found == nil {
		d.log.WithField("field", field).Debug("field not found")
		return nil
	}
	return nonEmpty(collapse(found.Text()))
}

// blockText keeps one line per text node so paragraphs and list items of
// the job description stay apart.
func (d detailParser) blockText(root *goquery.Selection, field string) *string {
	found := d.first(root, field)
	if found == nil {
		return nil
	}
	var lines []string
	for _, n := range found.Nodes {
		collectText(n, &lines)
	}
	return nonEmpty(strings.Join(lines, "\n"))
}

func collectText(n *html.Node, lines *[]string) {
	if n.Type == html.TextNode {
		if t := collapse(n.Data); t != "" {
			*lines = append(*lines, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}

func (d detailParser) attr(root *goquery.Selection, field, name string) (string, bool) {
	found := d.first(root, field)
	if found == nil {
		return "", false
	}
	v, ok := found.Attr(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// absolute resolves a relative href against the site URL, as a browser
// would report it.
func (d detailParser) absolute(href string) string {
	ref, err := url.Parse(href)
	if err != nil || ref.IsAbs() {
		return href
	}
	base, err := url.Parse(d.site.URL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// postedText finds the span whose own text carries the posted marker. The
// marker has no stable selector of its own.
func (d detailParser) postedText(root *goquery.Selection) string {
	var text string
	for _, sel := range d.sel.Fields[config.FieldPosted] {
		root.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !strings.Contains(ownText(s), d.site.PostedMarker) {
				return true
			}
			text = normalize.CleanText(collapse(s.Text()))
			return false
		})
		if text != "" {
			return text
		}
	}
	return ""
}

func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return b.String()
}

// companyProfile fills business type, employee count and benefits. A missing
// profile card leaves all three nil.
func (d detailParser) companyProfile(root *goquery.Selection, p *model.CompanyProfile) {
	card := findAny(root, d.sel.CompanyProfile)
	if card == nil {
		d.log.Info("no company profile card found")
		return
	}

	if business := findAny(card, d.sel.BusinessSection); business != nil {
		spans := business.ChildrenFiltered("span")
		if spans.Length() >= 1 {
			p.BusinessType = nonEmpty(normalize.CleanText(collapse(spans.Eq(0).Text())))
		}
		if spans.Length() >= 2 {
			if f := strings.Fields(spans.Eq(1).Text()); len(f) > 0 {
				p.EmployeesCount = nonEmpty(normalize.CleanText(f[0]))
			}
		}
	} else {
		d.log.Info("business type and employee count section not found")
	}

	benefits := findAny(card, d.sel.BenefitsSection)
	if benefits == nil {
		d.log.Info("benefits section not found")
		return
	}
	list := []string{}
	benefits.ChildrenFiltered("span").Each(func(i int, span *goquery.Selection) {
		div := span.ChildrenFiltered("div").First()
		if div.Length() == 0 {
			d.log.WithField("span", i+1).Warn("benefit div not found")
			return
		}
		if t := normalize.CleanText(collapse(div.Text())); t != "" {
			list = append(list, t)
		}
	})
	p.Benefits = list
}

func findAny(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if found := root.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }

func nonEmpty(s string) *string {
	s = normalize.CleanText(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	return &s
}
