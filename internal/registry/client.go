// Package registry is the HTTP client for the patient and surgery registry.
// It implements dedup.Registry for both entity kinds and maps transport and
// status failures onto the dedup sentinel errors.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/auth"
)

// APIError is a non-2xx answer that has no sentinel mapping.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("registry %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("registry %s: status %d: %s", e.Op, e.Status, e.Message)
}

// CallObserver receives one observation per request.
type CallObserver interface {
	ObserveRegistryCall(op, result string, d time.Duration)
}

// Config points the client at a registry and sets its rate limit.
type Config struct {
	BaseURL string
	Tokens  auth.TokenSource
	Timeout time.Duration
	// RequestsPerSecond of zero disables client-side limiting.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            zerolog.Logger
	Metrics           CallObserver
}

// Client talks to the registry over HTTP for both entity kinds.
type Client struct {
	base    *url.URL
	http    *http.Client
	tokens  auth.TokenSource
	limiter *rate.Limiter
	log     zerolog.Logger
	metrics CallObserver
	now     func() time.Time
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("registry: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("registry: parse base URL: %w", err)
	}
	if cfg.Tokens == nil {
		return nil, errors.New("registry: token source is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}
	return &Client{
		base:    base,
		http:    hc,
		tokens:  cfg.Tokens,
		limiter: limiter,
		log:     cfg.Logger.With().Str("component", "registry_client").Logger(),
		metrics: cfg.Metrics,
		now:     time.Now,
	}, nil
}

// Patients returns the patient registry.
func (c *Client) Patients() dedup.PatientRegistry { return &patients{c: c} }

// Surgeries returns the surgery registry.
func (c *Client) Surgeries() dedup.SurgeryRegistry { return &surgeries{c: c} }

type errorBody struct {
	Message string `json:"message"`
}

// do sends one request and decodes a 2xx JSON body into out. It makes a
// single attempt.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	start := c.now()
	defer func() { c.observe(op, err, start) }()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, dedup.ErrFatalSession, err)
	}
	if err := auth.CheckExpiry(token, c.now()); err != nil {
		return fmt.Errorf("%s: %w: %w", op, dedup.ErrFatalSession, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit: %w", op, err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := context.Cause(ctx); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		return fmt.Errorf("%s: %w: %w", op, dedup.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: %w: decode response: %w", op, dedup.ErrNetwork, err)
		}
		return nil
	}

	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
	apiErr := &APIError{Op: op, Status: resp.StatusCode, Message: eb.Message}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", dedup.ErrFatalSession, apiErr)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", dedup.ErrNotFound, apiErr)
	case http.StatusConflict:
		return fmt.Errorf("%w: %w", dedup.ErrAlreadyClaimed, apiErr)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", dedup.ErrInvalid, apiErr)
	default:
		return apiErr
	}
}

func (c *Client) observe(op string, err error, start time.Time) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, dedup.ErrFatalSession):
		result = "unauthorized"
	case errors.Is(err, dedup.ErrNetwork):
		result = "network"
	case errors.Is(err, dedup.ErrAlreadyClaimed):
		result = "conflict"
	case errors.Is(err, dedup.ErrNotFound):
		result = "not_found"
	default:
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			result = strconv.Itoa(apiErr.Status)
		} else {
			result = "error"
		}
	}
	d := c.now().Sub(start)
	if c.metrics != nil {
		c.metrics.ObserveRegistryCall(op, result, d)
	}
	c.log.Debug().Str("op", op).Str("result", result).Dur("latency", d).Msg("registry call")
}

// Ping probes the registry's unauthenticated health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", dedup.ErrNetwork, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{Op: "health", Status: resp.StatusCode}
	}
	return nil
}
