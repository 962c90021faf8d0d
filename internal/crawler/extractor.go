package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"sjsage522/listingharvester/internal/listing"

	"github.com/PuerkitoBio/goquery"
)

// Extractor turns rendered listing markup into records
type Extractor struct {
	BaseURL   *url.URL
	Selectors Selectors
}

// NewExtractor creates an extractor resolving root-relative links against baseURL
func NewExtractor(baseURL string, selectors Selectors) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("base URL %q is not absolute", baseURL)
	}
	return &Extractor{BaseURL: base, Selectors: selectors}, nil
}

// Extract parses markup and returns one record per resolvable card, in document order
func (e *Extractor) Extract(markup, pageURL string) []listing.Record {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	return e.ExtractDocument(doc, pageURL)
}

// ExtractDocument is Extract for an already parsed document
func (e *Extractor) ExtractDocument(doc *goquery.Document, pageURL string) []listing.Record {
	page, err := url.Parse(pageURL)
	if err != nil || !page.IsAbs() {
		page = e.BaseURL
	}

	var records []listing.Record
	doc.Find(e.Selectors.Card).Each(func(_ int, s *goquery.Selection) {
		if record, ok := e.extractCard(s, page); ok {
			records = append(records, record)
		}
	})
	return records
}

// extractCard parses a single card; false means the card is skipped
func (e *Extractor) extractCard(s *goquery.Selection, page *url.URL) (listing.Record, bool) {
	href, _ := s.Attr("href")
	link, ok := e.ResolveURL(href, page)
	if !ok {
		return listing.Record{}, false
	}

	// Description slots are positional: odometer first, price second
	var descriptions []string
	s.Find(e.Selectors.Description).Each(func(_ int, d *goquery.Selection) {
		descriptions = append(descriptions, strings.TrimSpace(d.Text()))
	})

	var distanceText, priceText string
	if len(descriptions) >= 1 {
		distanceText = descriptions[0]
	}
	if len(descriptions) >= 2 {
		priceText = descriptions[1]
	}

	return listing.Record{
		Title:        e.text(s, e.Selectors.Title),
		Price:        listing.IntPtr(listing.ParsePrice(priceText)),
		PriceText:    priceText,
		Distance:     listing.IntPtr(listing.ParseInteger(distanceText)),
		DistanceText: distanceText,
		BottomNote:   e.bottomNote(s),
		Tag:          e.text(s, e.Selectors.Tag),
		URL:          link,
		ImageURL:     e.attr(s, e.Selectors.Thumbnail, "src"),
	}, true
}

// ResolveURL resolves href into an absolute http(s) link without fragment.
// Root-relative hrefs resolve against the site origin, everything else against page.
func (e *Extractor) ResolveURL(href string, page *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	base := page
	if strings.HasPrefix(href, "/") || base == nil {
		base = e.BaseURL
	}

	resolved := base.ResolveReference(ref)
	if resolved.Host == "" || (resolved.Scheme != "http" && resolved.Scheme != "https") {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

func (e *Extractor) bottomNote(s *goquery.Selection) string {
	sel := s.Find(e.Selectors.BottomNote).First()
	if sel.Length() == 0 {
		return ""
	}
	if title, exists := sel.Attr("title"); exists {
		return title
	}
	return strings.TrimSpace(sel.Text())
}

func (e *Extractor) text(s *goquery.Selection, selector string) string {
	sel := s.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(sel.Text())
}

func (e *Extractor) attr(s *goquery.Selection, selector, name string) string {
	sel := s.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	value, _ := sel.Attr(name)
	return strings.TrimSpace(value)
}
