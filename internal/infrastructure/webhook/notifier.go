// Package webhook posts session journal events to configured endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/felixgeelhaar/edimap/pkg/domain/events"
	"github.com/felixgeelhaar/fortify/retry"
)

// SignatureHeader carries the HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Edimap-Signature"

// Endpoint is one delivery target.
type Endpoint struct {
	Name   string
	URL    string
	Secret string
	// Events restricts delivery to these event types. Empty means all.
	Events     []string
	MaxRetries int
	RetryDelay time.Duration
}

func (ep Endpoint) wants(eventType string) bool {
	return len(ep.Events) == 0 || slices.Contains(ep.Events, eventType)
}

// Payload is the JSON body sent to endpoints.
type Payload struct {
	EventType string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Data      *events.BaseEvent `json:"data"`
}

// Notifier delivers events asynchronously. Deliveries that exhaust their
// retries land in the dead letter store.
type Notifier struct {
	endpoints  []Endpoint
	client     *http.Client
	deadLetter *DeadLetterStore
	logger     *slog.Logger
	inflight   sync.WaitGroup
}

// NewNotifier creates a notifier. deadLetter and logger may be nil.
func NewNotifier(endpoints []Endpoint, deadLetter *DeadLetterStore, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		endpoints: endpoints,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		deadLetter: deadLetter,
		logger:     logger,
	}
}

// Handler adapts the notifier to an event dispatcher.
func (n *Notifier) Handler() events.EventHandlerFunc {
	return func(ctx context.Context, ev events.DomainEvent) error {
		if be, ok := ev.(*events.BaseEvent); ok {
			n.Notify(ctx, be)
		}
		return nil
	}
}

// Notify starts one delivery per matching endpoint and returns immediately.
func (n *Notifier) Notify(ctx context.Context, event *events.BaseEvent) {
	body, err := json.Marshal(Payload{
		EventType: event.Type,
		Timestamp: event.Timestamp,
		Data:      event,
	})
	if err != nil {
		n.logger.Warn("failed to encode webhook payload", "type", event.Type, "error", err)
		return
	}

	for _, ep := range n.endpoints {
		if !ep.wants(event.Type) {
			continue
		}
		n.inflight.Add(1)
		go func(ep Endpoint) {
			defer n.inflight.Done()
			n.deliver(context.WithoutCancel(ctx), ep, event.Type, body)
		}(ep)
	}
}

// Wait blocks until every started delivery has finished.
func (n *Notifier) Wait() {
	n.inflight.Wait()
}

func (n *Notifier) deliver(ctx context.Context, ep Endpoint, eventType string, body []byte) {
	attempts := ep.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	delay := ep.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	r := retry.New[struct{}](retry.Config{
		MaxAttempts:   attempts,
		InitialDelay:  delay,
		BackoffPolicy: retry.BackoffExponential,
	})
	_, err := r.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.send(ctx, ep, body)
	})
	if err == nil {
		return
	}

	n.logger.Warn("webhook delivery failed", "webhook", ep.Name, "type", eventType, "error", err)
	if n.deadLetter == nil {
		return
	}
	dl := DeadLetter{
		Timestamp:   time.Now().UTC(),
		WebhookName: ep.Name,
		URL:         ep.URL,
		EventType:   eventType,
		Payload:     string(body),
		Error:       err.Error(),
		Attempts:    attempts,
	}
	if err := n.deadLetter.Append(dl); err != nil {
		n.logger.Warn("failed to record dead letter", "webhook", ep.Name, "error", err)
	}
}

func (n *Notifier) send(ctx context.Context, ep Endpoint, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "edimap-webhook/1.0")
	if ep.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, ep.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
