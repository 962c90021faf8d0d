package crawler

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"sjsage522/listingharvester/helpers"
	"sjsage522/listingharvester/services/proxy"

	"github.com/PuerkitoBio/goquery"
)

// FetchFunc fetches a page body as UTF-8
type FetchFunc func(ctx context.Context, url string) (io.Reader, error)

// StaticRenderer serves server-rendered pages fetched once over plain HTTP.
// Its sessions never change, so a run over them converges after the stall rounds.
type StaticRenderer struct {
	fetch FetchFunc
}

// NewStaticRenderer creates a renderer that fetches pages with browser-like headers.
// Requests go through proxies when the pool has any.
func NewStaticRenderer(acceptLanguage string, proxies *proxy.Pool) *StaticRenderer {
	client := helpers.NewClient(proxies.ProxyFunc())
	return &StaticRenderer{
		fetch: func(ctx context.Context, url string) (io.Reader, error) {
			return helpers.FetchWithClient(ctx, client, url, acceptLanguage)
		},
	}
}

// Open fetches targetURL and parses it
func (r *StaticRenderer) Open(ctx context.Context, targetURL string) (Session, error) {
	body, err := r.fetch(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	return &staticSession{markup: string(raw), doc: doc}, nil
}

type staticSession struct {
	markup string
	doc    *goquery.Document
}

func (s *staticSession) CurrentMarkup(ctx context.Context) (string, error) {
	return s.markup, ctx.Err()
}

func (s *staticSession) ElementCount(ctx context.Context, selector string) (int, error) {
	return s.doc.Find(selector).Length(), ctx.Err()
}

func (s *staticSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("selector %q not present in static page", selector)
	}
	return nil
}

func (s *staticSession) ScrollElementIntoView(ctx context.Context, selector string, index int, timeout time.Duration) Attempt {
	return Skipped
}

func (s *staticSession) ScrollByOffset(ctx context.Context, px int) Attempt {
	return Skipped
}

func (s *staticSession) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) Attempt {
	return Succeeded
}

func (s *staticSession) ClickIfPresent(ctx context.Context, labels []string) bool {
	return false
}

func (s *staticSession) ViewportHeight() int {
	return 0
}

func (s *staticSession) Close() error {
	return nil
}
