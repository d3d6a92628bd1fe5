// Package classifier calls the external text classifier that sorts relayed
// messages into categories and optionally rewrites them.
package classifier

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

	"signalrelay/internal/config"
	"signalrelay/internal/logger"
	"signalrelay/internal/pkg/circuit"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 1 << 20

// Counter receives one result label per call: ok, error, open or limited.
type Counter interface {
	Classifier(result string)
}

type Client struct {
	url     string
	apiKey  string
	headers map[string]string
	timeout time.Duration
	http    *http.Client
	breaker *circuit.CircuitBreaker
	limiter *rate.Limiter
	counter Counter
}

func New(cfg config.ClassifierConfig, counter Counter) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		url:     strings.TrimSpace(cfg.URL),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		headers: cfg.Headers,
		timeout: cfg.Timeout(),
		http:    &http.Client{},
		breaker: circuit.NewCircuitBreaker("classifier", cfg.BreakerThreshold,
			time.Duration(cfg.BreakerCooldown)*time.Second),
		limiter: rate.NewLimiter(limit, burst),
		counter: counter,
	}
}

type request struct {
	Text string `json:"text"`
}

// Classify returns the category and the reformatted text, which is empty
// when the classifier returned none. Any transport, status or body problem
// is an error; an open breaker fails fast with circuit.ErrOpen. The timeout
// covers the rate limiter wait as well as the call itself.
func (c *Client) Classify(ctx context.Context, text string) (string, string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.count("limited")
		return "", "", fmt.Errorf("classifier rate limit: %w", err)
	}
	var category, formatted string
	err := c.breaker.Execute(func() error {
		var err error
		category, formatted, err = c.call(ctx, text)
		return err
	})
	switch {
	case errors.Is(err, circuit.ErrOpen):
		c.count("open")
		return "", "", fmt.Errorf("classifier: %w", err)
	case err != nil:
		c.count("error")
		return "", "", err
	}
	c.count("ok")
	return category, formatted, nil
}

func (c *Client) call(ctx context.Context, text string) (string, string, error) {
	body, err := json.Marshal(request{Text: text})
	if err != nil {
		return "", "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	logger.LogClassifierRequest(c.url, text)

	resp, err := c.http.Do(req)
	if err != nil {
		logger.LogClassifierResponse(c.url, 0, err.Error())
		return "", "", fmt.Errorf("classifier call: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", "", fmt.Errorf("classifier read: %w", err)
	}
	logger.LogClassifierResponse(c.url, resp.StatusCode, string(raw))
	if resp.StatusCode/100 != 2 {
		return "", "", fmt.Errorf("classifier status=%d", resp.StatusCode)
	}
	return parseResponse(raw)
}

// parseResponse accepts {"category": ..., "formatted_text": ...} either at the
// top level or under "data".
func parseResponse(raw []byte) (string, string, error) {
	if !gjson.ValidBytes(raw) {
		return "", "", fmt.Errorf("classifier: malformed body")
	}
	root := gjson.ParseBytes(raw)
	if data := root.Get("data"); data.IsObject() {
		root = data
	}
	cat := root.Get("category")
	if cat.Type != gjson.String || strings.TrimSpace(cat.String()) == "" {
		return "", "", fmt.Errorf("classifier: missing category")
	}
	formatted := root.Get("formatted_text")
	if formatted.Exists() && formatted.Type != gjson.String && formatted.Type != gjson.Null {
		return "", "", fmt.Errorf("classifier: formatted_text must be a string or null")
	}
	return strings.TrimSpace(cat.String()), formatted.String(), nil
}

func (c *Client) count(result string) {
	if c.counter != nil {
		c.counter.Classifier(result)
	}
}
