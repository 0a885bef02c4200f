// Package webhook notifies external systems of resolved records with
// HMAC-SHA256 signed POSTs. Deliveries are queued and retried off the
// workflow's goroutine.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renandw/anesthesiaReports-sub000/internal/dedup"
)

// ErrQueueFull is returned when a notification cannot be queued.
var ErrQueueFull = errors.New("webhook queue full")

// Event is the JSON body POSTed to the endpoint.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	RunID     string          `json:"run_id"`
	Path      dedup.Path      `json:"path"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Attempt is the outcome of one POST.
type Attempt struct {
	EventID    string
	Attempt    int
	StatusCode int
	Duration   time.Duration
	Err        error
}

// SignPayload computes an HMAC-SHA256 signature of the payload using the given secret,
// returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the HMAC-SHA256
// of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.httpClient = c }
}

// WithRetryDelays sets the wait before each retry. Its length is the retry count.
func WithRetryDelays(d ...time.Duration) Option {
	return func(n *Notifier) { n.retryDelays = d }
}

// WithQueueSize bounds the number of undelivered events.
func WithQueueSize(size int) Option {
	return func(n *Notifier) { n.queue = make(chan Event, size) }
}

// WithAttemptHook is called after every POST. Tests use it to observe deliveries.
func WithAttemptHook(fn func(Attempt)) Option {
	return func(n *Notifier) { n.onAttempt = fn }
}

// Notifier posts signed events to one endpoint from a bounded queue.
type Notifier struct {
	url         string
	secret      string
	httpClient  *http.Client
	retryDelays []time.Duration
	queue       chan Event
	onAttempt   func(Attempt)
	log         zerolog.Logger
}

// NewNotifier validates rawURL and applies opts. Call Run to start delivering.
func NewNotifier(rawURL, secret string, log zerolog.Logger, opts ...Option) (*Notifier, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	n := &Notifier{
		url:         rawURL,
		secret:      secret,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{time.Second, 30 * time.Second, 5 * time.Minute},
		queue:       make(chan Event, 256),
		log:         log.With().Str("component", "webhook").Logger(),
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// validateURL checks that the URL is non-empty and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || rawURL == "" {
		return fmt.Errorf("invalid webhook url %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook url must use http or https, got %q", u.Scheme)
	}
	return nil
}

// Enqueue schedules ev for delivery without blocking.
func (n *Notifier) Enqueue(ev Event) error {
	select {
	case n.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued events until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-n.queue:
			n.deliver(ctx, ev)
		}
	}
}

// deliver POSTs ev, retrying non-2xx answers and transport failures.
func (n *Notifier) deliver(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.log.Error().Err(err).Str("event_id", ev.ID).Msg("marshal webhook event")
		return
	}
	for attempt := 1; ; attempt++ {
		a := n.post(ctx, ev.ID, payload)
		a.Attempt = attempt
		if n.onAttempt != nil {
			n.onAttempt(a)
		}
		if a.Err == nil {
			return
		}
		if attempt > len(n.retryDelays) {
			n.log.Warn().Err(a.Err).Str("event_id", ev.ID).Int("attempts", attempt).Msg("webhook delivery abandoned")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(n.retryDelays[attempt-1]):
		}
	}
}

func (n *Notifier) post(ctx context.Context, eventID string, payload []byte) Attempt {
	a := Attempt{EventID: eventID}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		a.Err = err
		return a
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+SignPayload(payload, n.secret))
	req.Header.Set("X-Webhook-ID", eventID)
	req.Header.Set("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339))

	start := time.Now()
	resp, err := n.httpClient.Do(req)
	a.Duration = time.Since(start)
	if err != nil {
		a.Err = err
		return a
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	a.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.Err = fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return a
}

// Sink queues a "<kind>.resolved" event for every resolution.
func Sink[E dedup.Entity](n *Notifier) dedup.Sink[E] {
	return dedup.SinkFunc[E](func(_ context.Context, r dedup.Resolution[E]) error {
		data, err := json.Marshal(r.Entity)
		if err != nil {
			return fmt.Errorf("marshal entity: %w", err)
		}
		return n.Enqueue(Event{
			ID:        uuid.NewString(),
			Type:      r.Kind + ".resolved",
			RunID:     r.RunID,
			Path:      r.Path,
			Data:      data,
			Timestamp: time.Now().UTC(),
		})
	})
}
