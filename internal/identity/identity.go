// Package identity supplies the outbound request identity used by the
// fetcher: a user agent and, when configured, a proxy.
package identity

import (
	"math/rand"
	"net/url"
	"sync"
)

// fallbackAgents keeps the pool non-empty when no agents are configured.
var fallbackAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

// Identity is one outbound request identity. Proxy is nil when no proxy
// pool is configured.
type Identity struct {
	UserAgent string
	Proxy     *url.URL
}

// Pool hands out identities for outbound requests. Safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	rng     *rand.Rand
	agents  []string
	proxies []*url.URL
}

// NewPool builds a pool from the configured user agents and proxy URLs.
// Unparsable proxy entries are skipped; an empty agent list falls back to a
// built-in set so Next never returns an empty user agent.
func NewPool(agents, proxies []string, seed int64) *Pool {
	p := &Pool{rng: rand.New(rand.NewSource(seed))}

	for _, ua := range agents {
		if ua != "" {
			p.agents = append(p.agents, ua)
		}
	}
	if len(p.agents) == 0 {
		p.agents = fallbackAgents
	}

	for _, raw := range proxies {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		p.proxies = append(p.proxies, u)
	}

	return p
}

// Next returns the identity to use for the next request attempt.
func (p *Pool) Next() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := Identity{UserAgent: p.agents[p.rng.Intn(len(p.agents))]}
	if len(p.proxies) > 0 {
		id.Proxy = p.proxies[p.rng.Intn(len(p.proxies))]
	}
	return id
}
