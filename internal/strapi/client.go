// Package strapi talks to a Strapi-style CMS REST API and exposes its collections as
// domain types. Both the v4 ("attributes") and v5 (flat) response shapes are accepted.
package strapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cowork/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const cachePrefix = "strapi:"

// HTTPError is a non-2xx answer from the CMS.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Name       string
	Message    string
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("strapi %s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Unwrap maps 404 to model.ErrNotFound.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return model.ErrNotFound
	}
	return nil
}

// Client is a CMS client with optional Redis caching of catalog reads.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client for baseURL authenticating with an API token.
func NewClient(baseURL, token string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// UseRedisCache enables caching of spaces and add-ons for ttl.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// InvalidateCatalog drops cached catalog entries.
func (c *Client) InvalidateCatalog(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	iter := c.redis.Scan(ctx, 0, cachePrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, cachePrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, cachePrefix+key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out *envelope) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// send wraps body as {"data": body}, which is what the CMS expects on writes.
func (c *Client) send(ctx context.Context, method, path string, body any, out *envelope) error {
	return c.do(ctx, method, path, nil, map[string]any{"data": body}, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out *envelope) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("strapi %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp, method, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response, method, path string) error {
	httpErr := &HTTPError{StatusCode: resp.StatusCode, Method: method, Path: path}

	var payload struct {
		Error struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &payload) == nil {
		httpErr.Name = payload.Error.Name
		httpErr.Message = payload.Error.Message
	}
	return httpErr
}

// HealthCheck pings the CMS health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/_health", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}
