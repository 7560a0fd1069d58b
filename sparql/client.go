// Package sparql queries a SPARQL 1.1 endpoint such as the Wikidata Query
// Service and caches raw result documents.
package sparql

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultEndpoint is the public Wikidata Query Service.
	DefaultEndpoint = "https://query.wikidata.org/sparql"

	// DefaultUserAgent identifies the client, as WDQS policy requires.
	DefaultUserAgent = "nelgraph/1.0 (https://github.com/brunobiangulo/nelgraph)"

	defaultTimeout  = 20 * time.Second
	defaultCacheTTL = 24 * time.Hour
	maxErrorBody    = 512
)

// Config configures a Client.
type Config struct {
	Endpoint  string        `json:"endpoint" yaml:"endpoint"`
	UserAgent string        `json:"user_agent" yaml:"user_agent"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	CacheTTL  time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// Client issues SELECT queries over HTTP GET.
type Client struct {
	Endpoint  string
	UserAgent string
	HTTP      *http.Client
	Cache     Cache
	CacheTTL  time.Duration
}

// New builds a client, filling unset fields with defaults. cache may be nil.
func New(cfg Config, cache Cache) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return &Client{
		Endpoint:  cfg.Endpoint,
		UserAgent: cfg.UserAgent,
		HTTP:      &http.Client{Timeout: cfg.Timeout},
		Cache:     cache,
		CacheTTL:  cfg.CacheTTL,
	}
}

// Results is a SPARQL 1.1 JSON results document.
type Results struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]Binding `json:"bindings"`
	} `json:"results"`
}

// Binding is one RDF term in a solution.
type Binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// Query runs a SELECT query. Cached bodies are served without a request.
func (c *Client) Query(ctx context.Context, query string) (*Results, error) {
	key := cacheKey(c.Endpoint, query)
	if c.Cache != nil {
		if body, ok := c.Cache.Get(ctx, key); ok {
			var res Results
			if err := json.Unmarshal(body, &res); err == nil {
				return &res, nil
			}
			slog.Warn("sparql: discarding unreadable cache entry", "key", key)
		}
	}

	body, err := c.fetch(ctx, query)
	if err != nil {
		return nil, err
	}
	var res Results
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("sparql.Query: decoding results: %w", err)
	}

	if c.Cache != nil {
		if err := c.Cache.Set(ctx, key, body, c.CacheTTL); err != nil {
			slog.Warn("sparql: cache write failed", "error", err)
		}
	}
	return &res, nil
}

func (c *Client) fetch(ctx context.Context, query string) ([]byte, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("sparql.Query: bad endpoint: %w", err)
	}
	q := u.Query()
	q.Set("query", query)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("sparql.Query: %w", err)
	}
	req.Header.Set("Accept", "application/sparql-results+json")
	req.Header.Set("User-Agent", c.UserAgent)

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sparql.Query: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sparql.Query: reading body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, fmt.Errorf("sparql.Query: endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	slog.Debug("sparql: query done", "bytes", len(body), "elapsed", time.Since(start).Round(time.Millisecond))
	return body, nil
}

func cacheKey(endpoint, query string) string {
	sum := sha256.Sum256([]byte(endpoint + "\n" + query))
	return "sparql:" + hex.EncodeToString(sum[:])
}
