package crawler

import "time"

// Selectors contains CSS selectors for the parts of an ad card
type Selectors struct {
	// AdElement matches one rendered ad; used for waiting, counting and scrolling
	AdElement string
	// Card matches the link element of one ad; every field below is looked up inside it
	Card        string
	Title       string
	Description string
	BottomNote  string
	Thumbnail   string
	Tag         string
}

// DefaultSelectors returns the selectors for divar.ir post cards
func DefaultSelectors() Selectors {
	return Selectors{
		AdElement:   "article.kt-post-card",
		Card:        "article.kt-post-card a.kt-post-card__action",
		Title:       ".kt-post-card__title",
		Description: ".kt-post-card__description",
		BottomNote:  ".kt-post-card__bottom-description",
		Thumbnail:   ".kt-post-card-thumbnail img.kt-image-block__image",
		Tag:         ".kt-post-card__red-text",
	}
}

// Config controls one collection run
type Config struct {
	// MaxDuration bounds the wall time spent in the collection loop
	MaxDuration time.Duration
	// StallRounds is how many rounds without a new listing end the run
	StallRounds           int
	FirstContentTimeout   time.Duration
	ScrollIntoViewTimeout time.Duration
	NetworkIdleTimeout    time.Duration
	SettleDelay           time.Duration
	LoadMoreLabels        []string
	// FallbackScrollRatio is the share of the viewport height scrolled when the last ad cannot be focused
	FallbackScrollRatio float64
	// EmptyPageScroll is the offset scrolled when no ad is rendered at all
	EmptyPageScroll int
}

// DefaultConfig returns the collection settings used against divar.ir
func DefaultConfig() Config {
	return Config{
		MaxDuration:           240 * time.Second,
		StallRounds:           6,
		FirstContentTimeout:   20 * time.Second,
		ScrollIntoViewTimeout: 3 * time.Second,
		NetworkIdleTimeout:    1500 * time.Millisecond,
		SettleDelay:           300 * time.Millisecond,
		LoadMoreLabels:        []string{"نمایش بیشتر", "بیشتر", "Load more"},
		FallbackScrollRatio:   0.9,
		EmptyPageScroll:       400,
	}
}

// State is a phase of the collection loop
type State string

const (
	StateInit                State = "init"
	StateWaitingFirstContent State = "waiting_first_content"
	StateCollecting          State = "collecting"
	StateConverged           State = "converged"
	StateTimedOut            State = "timed_out"
)
