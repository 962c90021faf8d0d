package cache

import (
	"errors"
	"net/url"
	"strings"
	"time"

	errs "sjsage522/listingharvester/pkg/errors"
)

const cooldownPrefix = "harvest:cooldown:"

// Cooldown pauses collection against a host after its page failed to load.
// A nil *Cooldown is valid and never reports a host as cooling down.
type Cooldown struct {
	cache  CacheService
	period time.Duration
}

// NewCooldown creates a cooldown tracker backed by c
func NewCooldown(c CacheService, period time.Duration) *Cooldown {
	return &Cooldown{cache: c, period: period}
}

// Active reports whether the host of targetURL is cooling down
func (c *Cooldown) Active(targetURL string) (bool, error) {
	if c == nil || c.period <= 0 {
		return false, nil
	}
	key, ok := cooldownKey(targetURL)
	if !ok {
		return false, nil
	}

	_, err := c.cache.Get(key)
	if errors.Is(err, ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, errs.NewCache(key, "failed to read cooldown", err)
	}
	return true, nil
}

// Start begins the cooldown for the host of targetURL
func (c *Cooldown) Start(targetURL string) error {
	if c == nil || c.period <= 0 {
		return nil
	}
	key, ok := cooldownKey(targetURL)
	if !ok {
		return nil
	}

	stamp := []byte(time.Now().UTC().Format(time.RFC3339))
	if err := c.cache.Set(key, stamp, c.period); err != nil {
		return errs.NewCache(key, "failed to start cooldown", err)
	}
	return nil
}

// Clear ends the cooldown for the host of targetURL
func (c *Cooldown) Clear(targetURL string) error {
	if c == nil {
		return nil
	}
	key, ok := cooldownKey(targetURL)
	if !ok {
		return nil
	}
	if err := c.cache.Delete(key); err != nil && !errors.Is(err, ErrMiss) {
		return errs.NewCache(key, "failed to clear cooldown", err)
	}
	return nil
}

// Period returns how long a host stays paused
func (c *Cooldown) Period() time.Duration {
	if c == nil {
		return 0
	}
	return c.period
}

func cooldownKey(targetURL string) (string, bool) {
	u, err := url.Parse(targetURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return cooldownPrefix + strings.ToLower(u.Hostname()), true
}
