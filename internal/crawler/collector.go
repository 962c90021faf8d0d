package crawler

import (
	"context"
	"time"

	"sjsage522/listingharvester/internal/listing"
	"sjsage522/listingharvester/logger"
	errs "sjsage522/listingharvester/pkg/errors"
)

// Result is the outcome of a successful collection run
type Result struct {
	Records  []listing.Record
	State    State
	Rounds   int
	DOMCount int
	Elapsed  time.Duration
}

// Collector drives a rendering session through scroll rounds until no new ads appear
// or the time budget runs out
type Collector struct {
	renderer  Renderer
	extractor *Extractor
	config    Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCollector creates a new scroll collector
func NewCollector(renderer Renderer, extractor *Extractor, config Config) *Collector {
	return &Collector{
		renderer:  renderer,
		extractor: extractor,
		config:    config,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Collect gathers the distinct listings rendered on targetURL.
// The session is closed on every return path.
func (c *Collector) Collect(ctx context.Context, targetURL string) (*Result, error) {
	log := logger.ForCollector(targetURL)
	start := c.now()
	state := StateInit

	session, err := c.renderer.Open(ctx, targetURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.NewCancelled(targetURL, ctx.Err())
		}
		return nil, errs.NewNavigation(targetURL, "failed to open page", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Debug().Err(err).Msg("Closing session failed")
		}
	}()

	state = StateWaitingFirstContent
	adSelector := c.extractor.Selectors.AdElement
	if err := session.WaitForSelector(ctx, adSelector, c.config.FirstContentTimeout); err != nil {
		if ctx.Err() != nil {
			return nil, errs.NewCancelled(targetURL, ctx.Err())
		}
		return nil, errs.NewNoContent(targetURL, c.config.FirstContentTimeout, err)
	}

	state = StateCollecting
	seen := listing.NewSet()
	stall, previous, rounds, domCount := 0, 0, 0, 0

	for state == StateCollecting {
		if err := ctx.Err(); err != nil {
			return nil, errs.NewCancelled(targetURL, err)
		}
		rounds++

		markup, err := session.CurrentMarkup(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errs.NewCancelled(targetURL, ctx.Err())
			}
			return nil, errs.NewRendering(targetURL, "failed to read page markup", err)
		}
		added := seen.Merge(c.extractor.Extract(markup, targetURL))

		// Rendered count can trail or exceed the collected count under virtualization
		domCount, err = session.ElementCount(ctx, adSelector)
		if err != nil {
			log.Debug().Err(err).Msg("Counting ads failed")
			domCount = 0
		}

		if seen.Len() == previous {
			stall++
		} else {
			stall = 0
		}

		log.Debug().
			Int("round", rounds).
			Int("added", added).
			Int("collected", seen.Len()).
			Int("dom_count", domCount).
			Int("stall", stall).
			Msg("Collection round")

		switch {
		case stall >= c.config.StallRounds:
			state = StateConverged
		case c.now().Sub(start) > c.config.MaxDuration:
			state = StateTimedOut
		default:
			c.advance(ctx, session, domCount)
			previous = seen.Len()
		}
	}

	result := &Result{
		Records:  seen.Records(),
		State:    state,
		Rounds:   rounds,
		DOMCount: domCount,
		Elapsed:  c.now().Sub(start),
	}

	log.Info().
		Str("state", string(state)).
		Int("rounds", rounds).
		Int("collected", len(result.Records)).
		Dur("elapsed", result.Elapsed).
		Msg("Collection finished")

	return result, nil
}

// advance pushes the page to render more ads. Every step is best effort.
func (c *Collector) advance(ctx context.Context, session Session, domCount int) {
	if len(c.config.LoadMoreLabels) > 0 {
		session.ClickIfPresent(ctx, c.config.LoadMoreLabels)
	}

	if domCount > 0 {
		attempt := session.ScrollElementIntoView(ctx, c.extractor.Selectors.AdElement, domCount-1, c.config.ScrollIntoViewTimeout)
		if attempt != Succeeded {
			offset := int(float64(session.ViewportHeight()) * c.config.FallbackScrollRatio)
			if offset <= 0 {
				offset = c.config.EmptyPageScroll
			}
			session.ScrollByOffset(ctx, offset)
		}
	} else {
		session.ScrollByOffset(ctx, c.config.EmptyPageScroll)
	}

	session.WaitForNetworkIdle(ctx, c.config.NetworkIdleTimeout)
	_ = c.sleep(ctx, c.config.SettleDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
