// Package transport uploads route files to the file conversion service and
// returns the converted GeoJSON.
package transport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/signalsfoundry/route-playback/internal/logging"
	"github.com/signalsfoundry/route-playback/internal/observability"
	"github.com/signalsfoundry/route-playback/model"
)

// ConvertPath is the conversion endpoint on the converter service.
const ConvertPath = "/kml2geojson"

// ErrTransport marks any failed exchange with the converter.
var ErrTransport = errors.New("transport error")

// StatusError reports a converter response with a non-2xx HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("converter responded %d", e.Code)
	}
	return fmt.Sprintf("converter responded %d: %s", e.Code, e.Body)
}

// Unwrap lets errors.Is match ErrTransport.
func (e *StatusError) Unwrap() error { return ErrTransport }

// CacheRecorder receives converter cache and failure observations.
type CacheRecorder interface {
	ObserveCacheLookup(hit bool)
	IncConvertErrors()
}

// Client talks to the converter over HTTP. It caches results by content hash
// and collapses concurrent uploads of the same file into one request.
type Client struct {
	baseURL string
	http    *http.Client
	log     logging.Logger
	metrics CacheRecorder

	cache *expirable.LRU[string, model.ConversionResult]
	group singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithCacheRecorder wires cache hit/miss metrics.
func WithCacheRecorder(r CacheRecorder) Option {
	return func(c *Client) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithCache sets the response cache size and entry TTL. A size of zero
// disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(c *Client) {
		if size <= 0 {
			c.cache = nil
			return
		}
		c.cache = expirable.NewLRU[string, model.ConversionResult](size, nil, ttl)
	}
}

// NewClient returns a client for the converter at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log:     logging.Noop(),
		metrics: nopRecorder{},
		cache:   expirable.NewLRU[string, model.ConversionResult](32, nil, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert uploads content as a multipart form under the field "file" and
// decodes the converter's response.
func (c *Client) Convert(ctx context.Context, filename string, content []byte) (model.ConversionResult, error) {
	sum := sha256.Sum256(content)
	key := hex.EncodeToString(sum[:])

	if c.cache != nil {
		if res, ok := c.cache.Get(key); ok {
			c.metrics.ObserveCacheLookup(true)
			return res, nil
		}
		c.metrics.ObserveCacheLookup(false)
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.convert(ctx, filename, content)
	})
	if err != nil {
		if !shared {
			c.metrics.IncConvertErrors()
		}
		return model.ConversionResult{}, err
	}
	res := v.(model.ConversionResult)
	if c.cache != nil {
		c.cache.Add(key, res)
	}
	return res, nil
}

func (c *Client) convert(ctx context.Context, filename string, content []byte) (res model.ConversionResult, err error) {
	ctx, span := observability.StartSpan(ctx, "transport.Convert",
		attribute.String("file.name", filename),
		attribute.Int("file.size", len(content)),
	)
	defer func() { observability.EndSpan(span, err) }()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return res, fmt.Errorf("%w: build form: %v", ErrTransport, err)
	}
	if _, err := part.Write(content); err != nil {
		return res, fmt.Errorf("%w: build form: %v", ErrTransport, err)
	}
	if err := mw.Close(); err != nil {
		return res, fmt.Errorf("%w: build form: %v", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ConvertPath, &body)
	if err != nil {
		return res, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if id := logging.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return res, fmt.Errorf("%w: post %s: %v", ErrTransport, ConvertPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return res, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return model.ConversionResult{}, fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}

	c.log.Info(ctx, "converted route file",
		logging.String("file", filename),
		logging.Int("features", len(res.GeoJSON.Features)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

type nopRecorder struct{}

func (nopRecorder) ObserveCacheLookup(bool) {}
func (nopRecorder) IncConvertErrors()       {}
