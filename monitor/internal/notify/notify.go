package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// WebhookTimeout bounds a single webhook POST so a slow receiver cannot stall
// the poll cycle.
const WebhookTimeout = 5 * time.Second

// Sink receives formatted alert messages.
type Sink interface {
	Send(ctx context.Context, message string) error
}

// DispatchError reports a message that could not be delivered.
type DispatchError struct {
	// URL is the redacted target (scheme and host only). Empty for fan-out errors.
	URL string
	// StatusCode is the HTTP status when the receiver answered, else 0.
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	switch {
	case e.URL == "":
		return fmt.Sprintf("dispatch: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("dispatch %s: webhook returned HTTP %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("dispatch %s: %v", e.URL, e.Err)
	}
}

func (e *DispatchError) Unwrap() error { return e.Err }

// New returns the console sink, plus a webhook sink when webhookURL is set.
func New(webhookURL string, console io.Writer) Sink {
	c := NewConsole(console)
	if webhookURL == "" {
		return c
	}
	return Multi{c, NewWebhook(webhookURL)}
}

// Console writes "[ALERT] <message>" lines to w.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Send(_ context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.w, "[ALERT] %s\n", message); err != nil {
		return &DispatchError{Err: fmt.Errorf("console: %w", err)}
	}
	return nil
}

// Webhook POSTs {"text": message} to a URL (Slack, Mattermost, Rocket.Chat
// and most generic incoming-webhook receivers accept this shape).
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(rawURL string) *Webhook {
	return &Webhook{
		url:    rawURL,
		client: &http.Client{Timeout: WebhookTimeout},
	}
}

type webhookPayload struct {
	Text string `json:"text"`
}

func (w *Webhook) Send(ctx context.Context, message string) error {
	body, err := json.Marshal(webhookPayload{Text: message})
	if err != nil {
		return &DispatchError{URL: redact(w.url), Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return &DispatchError{URL: redact(w.url), Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		// *url.Error repeats the full URL, token included; keep only the cause.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return &DispatchError{URL: redact(w.url), Err: fmt.Errorf("http post: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 400 {
		return &DispatchError{
			URL:        redact(w.url),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("webhook returned HTTP %d", resp.StatusCode),
		}
	}
	slog.Debug("notify: webhook delivered", "url", redact(w.url), "status", resp.StatusCode)
	return nil
}

// Multi sends to every sink in order and reports all failures together.
type Multi []Sink

func (m Multi) Send(ctx context.Context, message string) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return &DispatchError{Err: errors.Join(errs...)}
}

// redact keeps scheme and host so webhook tokens embedded in the path never
// reach the logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "webhook"
	}
	return u.Scheme + "://" + u.Host
}
