package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sjsage522/listingharvester/config"
	"sjsage522/listingharvester/internal/crawler"
	"sjsage522/listingharvester/internal/listing"
	"sjsage522/listingharvester/internal/report"
	errs "sjsage522/listingharvester/pkg/errors"
	"sjsage522/listingharvester/services/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type mockCollector struct {
	mu      sync.Mutex
	result  *crawler.Result
	err     error
	calls   []string
	block   chan struct{}
	started chan struct{}
}

func (m *mockCollector) Collect(ctx context.Context, targetURL string) (*crawler.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, targetURL)
	m.mu.Unlock()
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	return m.result, m.err
}

type mockCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func (m *mockCache) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (m *mockCache) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mockCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

type mockSerializer struct {
	rows []report.Row
	err  error
}

func (m *mockSerializer) Serialize(rows []report.Row, columns []report.Column) ([]byte, error) {
	m.rows = rows
	if m.err != nil {
		return nil, m.err
	}
	return []byte(fmt.Sprintf("%d rows", len(rows))), nil
}

func (m *mockSerializer) ContentType() string { return "text/plain" }

func record(id string, price int64) listing.Record {
	return listing.Record{
		Title: id,
		Price: listing.IntPtr(price, true),
		URL:   "https://divar.ir/v/" + id,
	}
}

func TestRunProducesReport(t *testing.T) {
	collector := &mockCollector{result: &crawler.Result{
		Records: []listing.Record{
			record("a", 120), record("b", 100), record("c", 5),
			record("d", 115), record("e", 105), record("f", 110),
			{Title: "negotiable", PriceText: "توافقی", URL: "https://divar.ir/v/g"},
		},
		State:  crawler.StateConverged,
		Rounds: 8,
	}}
	serializer := &mockSerializer{}
	runner := NewRunner(collector, serializer, Options{OutlierFactor: 1.5})

	out, err := runner.Run(context.Background(), "  https://divar.ir/s/tehran/car  ")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://divar.ir/s/tehran/car"}, collector.calls)
	assert.Equal(t, "5 rows", string(out.Payload))
	assert.Equal(t, 5, out.Count)
	assert.Equal(t, 7, out.Collected)
	assert.Equal(t, crawler.StateConverged, out.State)
	assert.Equal(t, "cars.xlsx", out.Filename)
	assert.Equal(t, "text/plain", out.ContentType)
	assert.Equal(t, "Found 5 priced ads.", out.Caption)
	require.NotNil(t, out.Stats)
	assert.Equal(t, 1, out.Stats.Dropped)
	assert.Equal(t, int64(100), *serializer.rows[0].Price)
}

func TestRunDefaultsOutlierFactor(t *testing.T) {
	collector := &mockCollector{result: &crawler.Result{
		Records: []listing.Record{
			record("a", 120), record("b", 100), record("c", 5),
			record("d", 115), record("e", 105), record("f", 110),
		},
		State: crawler.StateConverged,
	}}
	serializer := &mockSerializer{}
	runner := NewRunner(collector, serializer, Options{})

	out, err := runner.Run(context.Background(), "https://divar.ir/s/tehran/car")
	require.NoError(t, err)

	// a zero factor would cut at q1 = 101.25 and drop the 100 listing as well
	require.NotNil(t, out.Stats)
	assert.Equal(t, 1, out.Stats.Dropped)
	assert.InDelta(t, 82.5, out.Stats.Cutoff, 1e-9)
	assert.Equal(t, 5, out.Count)
	assert.Equal(t, int64(100), *serializer.rows[0].Price)
}

func TestRunRejectsInvalidLinks(t *testing.T) {
	collector := &mockCollector{}
	runner := NewRunner(collector, &mockSerializer{}, Options{})

	for _, input := range []string{"", "hello", "divar.ir/s/tehran", "ftp://http.example", "http://", "https//divar.ir"} {
		_, err := runner.Run(context.Background(), input)
		require.Error(t, err, input)
		assert.True(t, errs.IsType(err, errs.ErrorTypeValidation), input)
	}
	assert.Empty(t, collector.calls)
}

func TestRunNavigationFailureStartsCooldown(t *testing.T) {
	mc := &mockCache{values: map[string][]byte{}}
	collector := &mockCollector{err: errs.NewNavigation("https://divar.ir/s/tehran", "failed to open page", errors.New("timeout"))}
	runner := NewRunner(collector, &mockSerializer{}, Options{Cooldown: cache.NewCooldown(mc, time.Minute)})

	_, err := runner.Run(context.Background(), "https://divar.ir/s/tehran")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeNavigation))
	assert.Len(t, mc.values, 1)

	// the next run against the same host is refused without collecting
	_, err = runner.Run(context.Background(), "https://divar.ir/s/mashhad")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeNavigation))
	assert.Contains(t, err.Error(), "cooling down")
	assert.Len(t, collector.calls, 1)
}

func TestRunNoContentDoesNotStartCooldown(t *testing.T) {
	mc := &mockCache{values: map[string][]byte{}}
	collector := &mockCollector{err: errs.NewNoContent("https://divar.ir/s/tehran", 20*time.Second, nil)}
	runner := NewRunner(collector, &mockSerializer{}, Options{Cooldown: cache.NewCooldown(mc, time.Minute)})

	_, err := runner.Run(context.Background(), "https://divar.ir/s/tehran")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeNoContent))
	assert.Empty(t, mc.values)
}

func TestRunSerializationFailure(t *testing.T) {
	collector := &mockCollector{result: &crawler.Result{Records: []listing.Record{record("a", 1)}}}
	serializer := &mockSerializer{err: errs.NewSerialization("failed to encode workbook", errors.New("disk full"))}
	runner := NewRunner(collector, serializer, Options{})

	_, err := runner.Run(context.Background(), "https://divar.ir/s/tehran")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeSerialization))
}

func TestRunBoundsConcurrency(t *testing.T) {
	collector := &mockCollector{
		result:  &crawler.Result{},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	runner := NewRunner(collector, &mockSerializer{}, Options{MaxConcurrent: 1})

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), "https://divar.ir/s/tehran")
		done <- err
	}()
	<-collector.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := runner.Run(ctx, "https://divar.ir/s/mashhad")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeCancelled))

	close(collector.block)
	require.NoError(t, <-done)

	// the slot is free again
	_, err = runner.Run(context.Background(), "https://divar.ir/s/shiraz")
	assert.NoError(t, err)
	assert.Len(t, collector.calls, 2)
}

func TestCrawlerConfig(t *testing.T) {
	cfg := &config.Config{
		MaxDuration:         90 * time.Second,
		StallRounds:         4,
		FirstContentTimeout: 5 * time.Second,
		NetworkIdleTimeout:  time.Second,
		SettleDelay:         100 * time.Millisecond,
		LoadMoreLabels:      []string{"more"},
	}

	c := CrawlerConfig(cfg)
	assert.Equal(t, 90*time.Second, c.MaxDuration)
	assert.Equal(t, 4, c.StallRounds)
	assert.Equal(t, 5*time.Second, c.FirstContentTimeout)
	assert.Equal(t, time.Second, c.NetworkIdleTimeout)
	assert.Equal(t, 100*time.Millisecond, c.SettleDelay)
	assert.Equal(t, []string{"more"}, c.LoadMoreLabels)
	assert.Equal(t, 3*time.Second, c.ScrollIntoViewTimeout)
	assert.Equal(t, 0.9, c.FallbackScrollRatio)
	assert.Equal(t, 400, c.EmptyPageScroll)

	defaults := CrawlerConfig(&config.Config{})
	assert.Equal(t, crawler.DefaultConfig(), defaults)
}

func TestNewCollectorRejectsBadConfig(t *testing.T) {
	_, err := NewCollector(&config.Config{BaseURL: "https://divar.ir", Renderer: "carrier-pigeon"})
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeConfiguration))

	_, err = NewCollector(&config.Config{BaseURL: "divar", Renderer: config.RendererStatic})
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeConfiguration))

	_, err = NewCollector(&config.Config{BaseURL: "https://divar.ir", Renderer: config.RendererStatic, ProxyURLs: []string{"ftp://10.0.0.2:21"}})
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeConfiguration))
}

func staticConfig(baseURL string) *config.Config {
	return &config.Config{
		BaseURL:             baseURL,
		Locale:              "fa-IR",
		Renderer:            config.RendererStatic,
		MaxDuration:         10 * time.Second,
		StallRounds:         2,
		FirstContentTimeout: time.Second,
		SettleDelay:         time.Millisecond,
		OutlierFactor:       1.5,
		ReportFilename:      "cars.xlsx",
		MaxConcurrentRuns:   1,
	}
}

func listingServer(t *testing.T) *httptest.Server {
	t.Helper()
	prices := []string{"۱۲۰", "۱۰۰", "۵", "۱۱۵", "۱۰۵", "۱۱۰"}
	var b strings.Builder
	b.WriteString(`<html><body>`)
	for i, p := range prices {
		fmt.Fprintf(&b, `<article class="kt-post-card"><a class="kt-post-card__action" href="/v/ad-%d">`+
			`<h2 class="kt-post-card__title">آگهی %d</h2>`+
			`<div class="kt-post-card__description">۱۰٬۰۰۰ کیلومتر</div>`+
			`<div class="kt-post-card__description">%s میلیون تومان</div></a></article>`, i, i, p)
	}
	b.WriteString(`</body></html>`)
	page := b.String()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCollectWithStaticRenderer(t *testing.T) {
	server := listingServer(t)

	records, err := Collect(context.Background(), server.URL+"/s/tehran/car", staticConfig(server.URL))
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, server.URL+"/v/ad-0", records[0].URL)
	assert.Equal(t, int64(120), *records[0].Price)
	assert.Equal(t, int64(10000), *records[0].Distance)
}

func TestRunnerFromConfigEndToEnd(t *testing.T) {
	server := listingServer(t)

	runner, err := NewRunnerFromConfig(staticConfig(server.URL), nil)
	require.NoError(t, err)

	out, err := runner.Run(context.Background(), server.URL+"/s/tehran/car")
	require.NoError(t, err)
	assert.Equal(t, 5, out.Count)
	assert.Equal(t, 6, out.Collected)
	assert.Equal(t, crawler.StateConverged, out.State)
	require.NotNil(t, out.Stats)
	assert.Equal(t, 1, out.Stats.Dropped)

	f, err := excelize.OpenReader(bytes.NewReader(out.Payload))
	require.NoError(t, err)
	defer f.Close()

	first, err := f.GetCellValue("cars", "B2")
	require.NoError(t, err)
	assert.Equal(t, "100", first)
	last, err := f.GetCellValue("cars", "B6")
	require.NoError(t, err)
	assert.Equal(t, "120", last)
}
