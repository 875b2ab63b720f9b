package discovery

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fedhub/internal/domain"
	"fedhub/internal/infra/statement"

	"github.com/patrickmn/go-cache"
)

// WellKnownPath is where an entity publishes its self-signed configuration.
const WellKnownPath = "/.well-known/openid-federation"

const (
	ContentTypeEntityStatement = "application/entity-statement+jwt"

	defaultTimeout    = 5 * time.Second
	maxStatementBytes = 1 << 20
)

// Client fetches entity configurations and subordinate statements. Every
// fetch failure surfaces as ErrDiscoveryFailed; retry policy belongs to the
// caller. An optional TTL cache, bounded by each statement's expiry, can be
// enabled per instance.
type Client struct {
	httpClient *http.Client
	codec      *statement.Codec
	timeout    time.Duration
	cache      *cache.Cache
	cacheTTL   time.Duration
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithCache enables statement caching with the given maximum TTL; each
// entry additionally expires no later than its statement does.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.cache = cache.New(ttl, 2*ttl)
			c.cacheTTL = ttl
		}
	}
}

func NewClient(codec *statement.Codec, opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		codec:      codec,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) FetchEntityConfiguration(ctx context.Context, entityID string) (*domain.EntityStatement, error) {
	key := "config|" + entityID
	if stmt := c.cached(key); stmt != nil {
		return stmt, nil
	}
	stmt, err := c.get(ctx, strings.TrimSuffix(entityID, "/")+WellKnownPath)
	if err != nil {
		return nil, err
	}
	if stmt.Issuer != entityID || stmt.Subject != entityID {
		return nil, fmt.Errorf("%w: %s returned a configuration for %s", domain.ErrDiscoveryFailed, entityID, stmt.Subject)
	}
	c.store(key, stmt)
	return stmt, nil
}

func (c *Client) FetchSubordinateStatement(ctx context.Context, superior *domain.EntityStatement, subordinateID string) (*domain.EntityStatement, error) {
	if superior == nil {
		return nil, fmt.Errorf("%w: no superior configuration", domain.ErrDiscoveryFailed)
	}
	endpoint := superior.FetchEndpoint()
	if endpoint == "" {
		return nil, fmt.Errorf("%w: %s exposes no fetch endpoint", domain.ErrDiscoveryFailed, superior.Subject)
	}
	key := "subordinate|" + superior.Subject + "|" + subordinateID
	if stmt := c.cached(key); stmt != nil {
		return stmt, nil
	}
	fetchURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: bad fetch endpoint %q: %v", domain.ErrDiscoveryFailed, endpoint, err)
	}
	query := fetchURL.Query()
	query.Set("sub", subordinateID)
	fetchURL.RawQuery = query.Encode()

	stmt, err := c.get(ctx, fetchURL.String())
	if err != nil {
		return nil, err
	}
	if stmt.Issuer != superior.Subject || stmt.Subject != subordinateID {
		return nil, fmt.Errorf("%w: %s returned a statement %s -> %s, wanted %s -> %s",
			domain.ErrDiscoveryFailed, superior.Subject, stmt.Issuer, stmt.Subject, superior.Subject, subordinateID)
	}
	c.store(key, stmt)
	return stmt, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*domain.EntityStatement, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDiscoveryFailed, err)
	}
	req.Header.Set("Accept", ContentTypeEntityStatement)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", domain.ErrDiscoveryFailed, rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: GET %s: status %d", domain.ErrDiscoveryFailed, rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatementBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", domain.ErrDiscoveryFailed, rawURL, err)
	}

	mediaType := resp.Header.Get("Content-Type")
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}
	var stmt *domain.EntityStatement
	if mediaType == "application/json" {
		stmt, err = c.codec.Decode(body)
	} else {
		stmt, err = c.codec.Parse(strings.TrimSpace(string(body)))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", domain.ErrDiscoveryFailed, rawURL, err)
	}
	return stmt, nil
}

func (c *Client) cached(key string) *domain.EntityStatement {
	if c.cache == nil {
		return nil
	}
	entry, ok := c.cache.Get(key)
	if !ok {
		return nil
	}
	stmt, ok := entry.(*domain.EntityStatement)
	if !ok || !stmt.ExpiresAt.After(time.Now()) {
		return nil
	}
	return stmt
}

func (c *Client) store(key string, stmt *domain.EntityStatement) {
	if c.cache == nil || stmt.JWTID == "" {
		return
	}
	ttl := time.Until(stmt.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if ttl > c.cacheTTL {
		ttl = c.cacheTTL
	}
	c.cache.Set(key, stmt, ttl)
}
