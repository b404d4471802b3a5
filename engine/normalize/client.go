// Package normalize provides clients for the external concept-normalization
// services (gene, disease, therapy, variation) and the per-run resolution
// cache used by the transformation engine.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/varikb/varikb/engine/domain"
	"github.com/varikb/varikb/pkg/fn"
	"github.com/varikb/varikb/pkg/resilience"
)

// Kind identifies a concept-normalization service.
type Kind string

const (
	KindGene      Kind = "gene"
	KindDisease   Kind = "disease"
	KindTherapy   Kind = "therapy"
	KindVariation Kind = "variation"
)

// Match is the best normalization result for a concept: the merged canonical
// ID, its primary label, and the mappings the normalizer merged under it.
type Match struct {
	ID       string           `json:"id"`
	Label    string           `json:"label"`
	Mappings []domain.Mapping `json:"mappings,omitempty"`
}

// Normalizer resolves an ordered list of candidate query strings to a best
// match. A nil match with a nil error means the service found no match.
type Normalizer interface {
	Kind() Kind
	Normalize(ctx context.Context, queries []string) (*Match, error)
}

// Client is an HTTP client for one normalization service. Calls are
// GET-style and idempotent, so responses are cached with a short TTL,
// transient failures are retried with backoff, and the whole service is
// guarded by a rate limiter and a circuit breaker.
type Client struct {
	kind    Kind
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	retry   fn.RetryOpts
	resp    *gocache.Cache
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(opts fn.RetryOpts) Option {
	return func(c *Client) { c.retry = opts }
}

// WithResponseTTL sets how long responses (including no-matches) are cached.
func WithResponseTTL(ttl time.Duration) Option {
	return func(c *Client) { c.resp = gocache.New(ttl, 2*ttl) }
}

// NewClient creates a client for one concept kind.
func NewClient(kind Kind, baseURL string, opts ...Option) *Client {
	c := &Client{
		kind:    kind,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(50), 100),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		retry: fn.RetryOpts{
			MaxAttempts: 3,
			InitialWait: 200 * time.Millisecond,
			MaxWait:     2 * time.Second,
			Jitter:      true,
		},
		resp: gocache.New(10*time.Minute, 20*time.Minute),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Kind returns the concept kind this client resolves.
func (c *Client) Kind() Kind { return c.kind }

// normalizeResponse is the service's wire format.
type normalizeResponse struct {
	Match *Match `json:"match"`
}

// Normalize tries each candidate query in order and returns the first match.
// No-match responses are cached so repeated misses stay cheap. A transport
// or server error aborts the remaining candidates.
func (c *Client) Normalize(ctx context.Context, queries []string) (*Match, error) {
	for _, q := range queries {
		if q == "" {
			continue
		}
		m, err := c.normalizeOne(ctx, q)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}
	return nil, nil
}

func (c *Client) normalizeOne(ctx context.Context, query string) (*Match, error) {
	key := string(c.kind) + ":" + query
	if cached, found := c.resp.Get(key); found {
		if m, ok := cached.(*Match); ok {
			return m, nil
		}
		return nil, nil // cached no-match
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	match, err := fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[*Match] {
		return fn.FromPair(c.fetch(ctx, query))
	}).Unwrap()
	if err != nil {
		return nil, err
	}

	if match == nil {
		c.resp.Set(key, nil, gocache.DefaultExpiration)
	} else {
		c.resp.Set(key, match, gocache.DefaultExpiration)
	}
	return match, nil
}

// fetch performs one normalize call through the circuit breaker.
func (c *Client) fetch(ctx context.Context, query string) (*Match, error) {
	var match *Match
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		u := fmt.Sprintf("%s/%s/normalize?q=%s", c.baseURL, c.kind, url.QueryEscape(query))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s normalize: %w", c.kind, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s normalize: status %d", c.kind, resp.StatusCode)
		}
		var body normalizeResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("%s normalize decode: %w", c.kind, err)
		}
		match = body.Match
		return nil
	})
	return match, err
}
