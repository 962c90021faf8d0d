// Package pipeline runs one listing harvest from URL to encoded report.
package pipeline

import (
	"context"
	"net/url"
	"strings"

	"sjsage522/listingharvester/config"
	"sjsage522/listingharvester/internal/crawler"
	"sjsage522/listingharvester/internal/listing"
	"sjsage522/listingharvester/internal/report"
	"sjsage522/listingharvester/logger"
	errs "sjsage522/listingharvester/pkg/errors"
	"sjsage522/listingharvester/services/cache"
	"sjsage522/listingharvester/services/proxy"
)

// Collector gathers the listings rendered on one page
type Collector interface {
	Collect(ctx context.Context, targetURL string) (*crawler.Result, error)
}

// Output is an encoded report ready to hand back to the requester
type Output struct {
	Payload     []byte
	ContentType string
	Filename    string
	Caption     string
	Count       int
	Collected   int
	State       crawler.State
	Stats       *report.OutlierStats
}

// Options tunes a Runner
type Options struct {
	// OutlierFactor scales the IQR below the first quartile; zero means report.DefaultOutlierFactor
	OutlierFactor float64
	Filename      string
	// MaxConcurrent bounds parallel runs; zero means unbounded
	MaxConcurrent int
	Cooldown      *cache.Cooldown
}

// Runner collects, filters, ranks and encodes listings for one URL at a time per slot
type Runner struct {
	collector  Collector
	serializer report.Serializer
	opts       Options
	slots      chan struct{}
}

// NewRunner creates a runner from its collaborators
func NewRunner(collector Collector, serializer report.Serializer, opts Options) *Runner {
	if opts.Filename == "" {
		opts.Filename = "cars.xlsx"
	}
	if opts.OutlierFactor <= 0 {
		opts.OutlierFactor = report.DefaultOutlierFactor
	}
	r := &Runner{
		collector:  collector,
		serializer: serializer,
		opts:       opts,
	}
	if opts.MaxConcurrent > 0 {
		r.slots = make(chan struct{}, opts.MaxConcurrent)
	}
	return r
}

// NewRunnerFromConfig wires the renderer, collector and spreadsheet serializer named by cfg
func NewRunnerFromConfig(cfg *config.Config, cooldown *cache.Cooldown) (*Runner, error) {
	collector, err := NewCollector(cfg)
	if err != nil {
		return nil, err
	}
	return NewRunner(collector, report.NewXLSXSerializer(), Options{
		OutlierFactor: cfg.OutlierFactor,
		Filename:      cfg.ReportFilename,
		MaxConcurrent: cfg.MaxConcurrentRuns,
		Cooldown:      cooldown,
	}), nil
}

// Run harvests targetURL and returns the encoded report.
// Navigation failures start a cooldown for the target host.
func (r *Runner) Run(ctx context.Context, targetURL string) (*Output, error) {
	targetURL = strings.TrimSpace(targetURL)
	if err := ValidateURL(targetURL); err != nil {
		return nil, err
	}

	if err := r.acquire(ctx); err != nil {
		return nil, errs.NewCancelled(targetURL, err)
	}
	defer r.release()

	log := logger.ForCollector(targetURL)

	cooling, err := r.opts.Cooldown.Active(targetURL)
	if err != nil {
		log.Warn().Err(err).Msg("Cooldown check failed, continuing")
	}
	if cooling {
		return nil, errs.NewNavigation(targetURL, "host is cooling down after a failed navigation", nil)
	}

	result, err := r.collector.Collect(ctx, targetURL)
	if err != nil {
		if errs.IsType(err, errs.ErrorTypeNavigation) {
			if cerr := r.opts.Cooldown.Start(targetURL); cerr != nil {
				log.Warn().Err(cerr).Msg("Failed to start cooldown")
			}
		}
		return nil, err
	}

	rep := report.Produce(result.Records, r.opts.OutlierFactor)
	payload, err := rep.Encode(r.serializer)
	if err != nil {
		return nil, err
	}

	event := log.Info().
		Int("collected", len(result.Records)).
		Int("rows", rep.Count).
		Str("state", string(result.State))
	if rep.Stats != nil {
		event = event.Int("dropped", rep.Stats.Dropped).Float64("cutoff", rep.Stats.Cutoff)
	}
	event.Msg("Report produced")

	return &Output{
		Payload:     payload,
		ContentType: r.serializer.ContentType(),
		Filename:    r.opts.Filename,
		Caption:     rep.Caption(),
		Count:       rep.Count,
		Collected:   len(result.Records),
		State:       result.State,
		Stats:       rep.Stats,
	}, nil
}

func (r *Runner) acquire(ctx context.Context) error {
	if r.slots == nil {
		return ctx.Err()
	}
	select {
	case r.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) release() {
	if r.slots != nil {
		<-r.slots
	}
}

// Collect runs a single collection against targetURL with the renderer and limits in cfg
func Collect(ctx context.Context, targetURL string, cfg *config.Config) ([]listing.Record, error) {
	targetURL = strings.TrimSpace(targetURL)
	if err := ValidateURL(targetURL); err != nil {
		return nil, err
	}
	collector, err := NewCollector(cfg)
	if err != nil {
		return nil, err
	}
	result, err := collector.Collect(ctx, targetURL)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

// NewCollector builds a scroll collector for the renderer selected in cfg
func NewCollector(cfg *config.Config) (*crawler.Collector, error) {
	extractor, err := crawler.NewExtractor(cfg.BaseURL, crawler.DefaultSelectors())
	if err != nil {
		return nil, errs.NewConfiguration("invalid base URL", err)
	}

	proxies, err := proxy.NewPool(cfg.ProxyURLs)
	if err != nil {
		return nil, errs.NewConfiguration("invalid PROXY_URLS", err)
	}

	var renderer crawler.Renderer
	switch cfg.Renderer {
	case config.RendererStatic:
		renderer = crawler.NewStaticRenderer(cfg.Locale, proxies)
	case config.RendererBrowser, "":
		renderer = crawler.NewRodRenderer(crawler.RodOptions{
			Headless:       cfg.Headless,
			ViewportWidth:  cfg.ViewportWidth,
			ViewportHeight: cfg.ViewportHeight,
			Locale:         cfg.Locale,
			Bin:            cfg.BrowserBin,
			Proxies:        proxies,
		})
	default:
		return nil, errs.NewConfiguration("unknown renderer "+cfg.Renderer, nil)
	}

	return crawler.NewCollector(renderer, extractor, CrawlerConfig(cfg)), nil
}

// CrawlerConfig maps application settings onto the collection loop settings
func CrawlerConfig(cfg *config.Config) crawler.Config {
	c := crawler.DefaultConfig()
	if cfg.MaxDuration > 0 {
		c.MaxDuration = cfg.MaxDuration
	}
	if cfg.StallRounds > 0 {
		c.StallRounds = cfg.StallRounds
	}
	if cfg.FirstContentTimeout > 0 {
		c.FirstContentTimeout = cfg.FirstContentTimeout
	}
	if cfg.NetworkIdleTimeout > 0 {
		c.NetworkIdleTimeout = cfg.NetworkIdleTimeout
	}
	if cfg.SettleDelay > 0 {
		c.SettleDelay = cfg.SettleDelay
	}
	if cfg.LoadMoreLabels != nil {
		c.LoadMoreLabels = cfg.LoadMoreLabels
	}
	return c
}

// ValidateURL accepts absolute http and https links only
func ValidateURL(targetURL string) error {
	if !strings.Contains(targetURL, "http") {
		return errs.NewValidation(targetURL, "please send a valid listing link")
	}
	u, err := url.Parse(targetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errs.NewValidation(targetURL, "please send a valid listing link")
	}
	return nil
}
