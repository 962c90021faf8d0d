package crawler

import (
	"context"
	"time"
)

// Attempt is the outcome of a best-effort session action.
// Best-effort actions never fail a run, so they report an Attempt instead of an error.
type Attempt int

const (
	Succeeded Attempt = iota
	TimedOut
	Skipped
)

func (a Attempt) String() string {
	switch a {
	case Succeeded:
		return "succeeded"
	case TimedOut:
		return "timed_out"
	default:
		return "skipped"
	}
}

// Renderer opens rendering sessions on target pages
type Renderer interface {
	// Open navigates to targetURL and waits for basic document readiness
	Open(ctx context.Context, targetURL string) (Session, error)
}

// Session is one rendered page owned by a single collection run
type Session interface {
	CurrentMarkup(ctx context.Context) (string, error)
	ElementCount(ctx context.Context, selector string) (int, error)
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	ScrollElementIntoView(ctx context.Context, selector string, index int, timeout time.Duration) Attempt
	ScrollByOffset(ctx context.Context, px int) Attempt
	WaitForNetworkIdle(ctx context.Context, timeout time.Duration) Attempt
	// ClickIfPresent clicks the first control whose text contains one of labels
	ClickIfPresent(ctx context.Context, labels []string) bool

	ViewportHeight() int
	Close() error
}
