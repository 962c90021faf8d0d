package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type testCard struct {
	Href   string
	Title  string
	Descs  []string
	Bottom string
	// BottomTitle is set as the title attribute of the bottom note when non-empty
	BottomTitle string
	Image       string
	Tag         string
}

func renderCard(c testCard) string {
	var b strings.Builder
	b.WriteString(`<article class="kt-post-card">`)
	fmt.Fprintf(&b, `<a class="kt-post-card__action" href="%s">`, c.Href)
	if c.Image != "" {
		fmt.Fprintf(&b, `<div class="kt-post-card-thumbnail"><img class="kt-image-block__image" src="%s"></div>`, c.Image)
	}
	b.WriteString(`<div class="kt-post-card__body">`)
	if c.Title != "" {
		fmt.Fprintf(&b, `<h2 class="kt-post-card__title"> %s </h2>`, c.Title)
	}
	for _, d := range c.Descs {
		fmt.Fprintf(&b, `<div class="kt-post-card__description">%s</div>`, d)
	}
	if c.Bottom != "" || c.BottomTitle != "" {
		if c.BottomTitle != "" {
			fmt.Fprintf(&b, `<span class="kt-post-card__bottom-description" title="%s">%s</span>`, c.BottomTitle, c.Bottom)
		} else {
			fmt.Fprintf(&b, `<span class="kt-post-card__bottom-description">%s</span>`, c.Bottom)
		}
	}
	if c.Tag != "" {
		fmt.Fprintf(&b, `<span class="kt-post-card__red-text">%s</span>`, c.Tag)
	}
	b.WriteString(`</div></a></article>`)
	return b.String()
}

func renderPage(cards ...testCard) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html lang="fa"><head><title>آگهی‌ها</title></head><body><div class="browse-post-list">`)
	for _, c := range cards {
		b.WriteString(renderCard(c))
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func pricedCard(id string, price string) testCard {
	return testCard{
		Href:  "/v/" + id,
		Title: "خودرو " + id,
		Descs: []string{"۱۰۰٬۰۰۰ کیلومتر", price},
	}
}

// fakeRenderer hands out a prepared session
type fakeRenderer struct {
	session *fakeSession
	openErr error
	opened  []string
}

func (r *fakeRenderer) Open(ctx context.Context, targetURL string) (Session, error) {
	r.opened = append(r.opened, targetURL)
	if r.openErr != nil {
		return nil, r.openErr
	}
	return r.session, nil
}

// fakeSession serves one markup snapshot per round
type fakeSession struct {
	mu sync.Mutex

	pageFor   func(round int) string
	round     int
	domCount  int
	countErr  error
	waitErr   error
	markupErr error
	// failMarkupAt makes CurrentMarkup fail on that round (1-based); zero never fails
	failMarkupAt int
	intoView     Attempt
	viewport     int
	onMarkup     func(round int)

	closed    int
	clicks    int
	intoViews []int
	offsets   []int
	idleWaits int
}

func (s *fakeSession) CurrentMarkup(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.round++
	if s.onMarkup != nil {
		s.onMarkup(s.round)
	}
	if s.failMarkupAt != 0 && s.round == s.failMarkupAt {
		return "", s.markupErr
	}
	return s.pageFor(s.round), nil
}

func (s *fakeSession) ElementCount(ctx context.Context, selector string) (int, error) {
	return s.domCount, s.countErr
}

func (s *fakeSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return s.waitErr
}

func (s *fakeSession) ScrollElementIntoView(ctx context.Context, selector string, index int, timeout time.Duration) Attempt {
	s.intoViews = append(s.intoViews, index)
	return s.intoView
}

func (s *fakeSession) ScrollByOffset(ctx context.Context, px int) Attempt {
	s.offsets = append(s.offsets, px)
	return Succeeded
}

func (s *fakeSession) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) Attempt {
	s.idleWaits++
	return TimedOut
}

func (s *fakeSession) ClickIfPresent(ctx context.Context, labels []string) bool {
	s.clicks++
	return false
}

func (s *fakeSession) ViewportHeight() int {
	return s.viewport
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

// fakeClock advances only when the collector sleeps
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.t = c.t.Add(d)
	return ctx.Err()
}
