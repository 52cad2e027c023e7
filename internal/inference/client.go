package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/ai-image-tools/internal/imageencoder"
	"github.com/example/ai-image-tools/internal/prediction"
)

// maxResponseBytes bounds how much of a response body is kept.
const maxResponseBytes = 10 << 20

// Endpoint pairs a classifier URL with its bearer token. The zero value is
// unusable; build one with NewEndpoint at startup and pass it by value.
type Endpoint struct {
	url   string
	token string
}

// NewEndpoint constructs an endpoint. Surrounding whitespace is trimmed.
func NewEndpoint(url, token string) Endpoint {
	return Endpoint{url: strings.TrimSpace(url), token: strings.TrimSpace(token)}
}

// URL returns the endpoint address.
func (e Endpoint) URL() string { return e.url }

// HasToken reports whether a bearer token is configured.
func (e Endpoint) HasToken() bool { return e.token != "" }

// String omits the token.
func (e Endpoint) String() string { return e.url }

// Client posts image payloads to hosted classifiers.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each call. Zero leaves the transport default in place.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient constructs a classification client.
func NewClient(logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		logger:     logger.Named("inference_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wirePrediction struct {
	Label *string  `json:"label"`
	Score *float64 `json:"score"`
}

// Classify sends payload to endpoint in a single POST and returns the
// label/score table. An empty table is a valid result.
func (c *Client) Classify(ctx context.Context, payload []byte, endpoint Endpoint) (prediction.Result, error) {
	if len(payload) == 0 {
		return nil, &imageencoder.EncodingError{Stage: "read", Err: errors.New("empty payload")}
	}
	if endpoint.token == "" {
		return nil, &ConfigError{Field: "token", Message: "bearer token is not set"}
	}
	if endpoint.url == "" {
		return nil, &ConfigError{Field: "url", Message: "endpoint URL is not set"}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &ConfigError{Field: "url", Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+endpoint.token)
	req.Header.Set("Content-Type", imageencoder.ContentType(payload))
	req.Header.Set("Accept", "application/json")

	logger := c.logger.With(zap.String("endpoint", endpoint.url))
	started := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("classification request failed", zap.Error(err))
		return nil, &TransportError{URL: endpoint.url, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		logger.Warn("failed to read classification response", zap.Error(err))
		return nil, &TransportError{URL: endpoint.url, Err: err}
	}
	body := string(raw)

	logger.Debug("classification response received",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(started)),
		zap.Int("body_bytes", len(raw)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: body}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "application/json") {
		return nil, &UnexpectedContentError{ContentType: contentType, Body: body}
	}

	return decodeResult(raw)
}

func decodeResult(raw []byte) (prediction.Result, error) {
	var items []wirePrediction
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &MalformedResponseError{Body: string(raw), Err: err}
	}
	if items == nil {
		return nil, &MalformedResponseError{Body: string(raw), Err: errors.New("expected a JSON array")}
	}

	result := make(prediction.Result, 0, len(items))
	for i, item := range items {
		if item.Label == nil || item.Score == nil {
			return nil, &MalformedResponseError{
				Body: string(raw),
				Err:  fmt.Errorf("entry %d is missing label or score", i),
			}
		}
		if score := *item.Score; score < 0 || score > 1 {
			return nil, &MalformedResponseError{
				Body: string(raw),
				Err:  fmt.Errorf("entry %d score %v is outside [0, 1]", i, score),
			}
		}
		result = append(result, prediction.Prediction{Label: *item.Label, Score: *item.Score})
	}
	return result, nil
}
