package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"sjsage522/listingharvester/logger"
)

// Supported upstream proxy schemes
var schemes = map[string]bool{
	"http":   true,
	"https":  true,
	"socks5": true,
}

// Pool hands out configured upstream proxies round robin.
// A nil or empty pool means direct connections.
type Pool struct {
	proxies []*url.URL
	next    atomic.Uint64
}

// NewPool parses raw proxy URLs such as socks5://10.0.0.2:1080
func NewPool(raw []string) (*Pool, error) {
	pool := &Pool{}
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		u, err := url.Parse(item)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", item, err)
		}
		if !schemes[u.Scheme] {
			return nil, fmt.Errorf("invalid proxy %q: unsupported scheme %q", item, u.Scheme)
		}
		if u.Host == "" || u.Port() == "" {
			return nil, fmt.Errorf("invalid proxy %q: host and port are required", item)
		}
		pool.proxies = append(pool.proxies, u)
	}

	if len(pool.proxies) > 0 {
		logger.Info("Using %d upstream proxies", len(pool.proxies))
	}
	return pool, nil
}

// Len returns the number of configured proxies
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.proxies)
}

// Next returns the proxy for the next connection, or nil for a direct one
func (p *Pool) Next() *url.URL {
	if p.Len() == 0 {
		return nil
	}
	i := p.next.Add(1) - 1
	return p.proxies[i%uint64(len(p.proxies))]
}

// ProxyFunc adapts the pool to http.Transport.Proxy
func (p *Pool) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(*http.Request) (*url.URL, error) {
		return p.Next(), nil
	}
}

// ServerFlag returns the next proxy as a browser --proxy-server value.
// Browsers take no credentials on the flag, so user info is dropped.
func (p *Pool) ServerFlag() string {
	u := p.Next()
	if u == nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
