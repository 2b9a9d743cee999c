// Package booking executes appointment bookings on behalf of the live
// engine. The completion provider signals a booking by emitting a JSON
// action object instead of prose; this package owns the downstream call.
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
)

// Request is one validated appointment booking.
type Request struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Notes    string `json:"notes,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	// BrowserSessionID correlates the booking with the originating client
	// session. Populated by the engine, not the model.
	BrowserSessionID string `json:"browser_session_id,omitempty"`
}

// Validate checks the fields the downstream scheduler requires.
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(r.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(r.Date) == "" {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(r.Time) == "" {
		missing = append(missing, "time")
	}
	if len(missing) > 0 {
		return core.NewInvalidRequestErrorWithParam(
			fmt.Sprintf("booking is missing required fields: %s", strings.Join(missing, ", ")),
			strings.Join(missing, ","))
	}
	return nil
}

// Service executes bookings.
type Service interface {
	// Name returns the service identifier.
	Name() string

	// Create books the appointment. A nil error means the downstream
	// scheduler accepted it.
	Create(ctx context.Context, req Request) error
}

// HTTPService posts bookings to a webhook endpoint.
type HTTPService struct {
	url        string
	httpClient *http.Client
}

// HTTPOption configures the HTTP service.
type HTTPOption func(*HTTPService)

// WithHTTPClient overrides the HTTP client (used by tests).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPService) { s.httpClient = c }
}

// NewHTTP creates a webhook-backed booking service.
func NewHTTP(url string, opts ...HTTPOption) *HTTPService {
	s := &HTTPService{
		url:        url,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the service identifier.
func (s *HTTPService) Name() string { return "webhook" }

// Create posts the booking as JSON. Each attempt carries a fresh
// idempotency key; the engine never retries, so duplicate submissions can
// only come from operator replays.
func (s *HTTPService) Create(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal booking: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create booking request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return core.NewAPIError(fmt.Sprintf("booking request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(respBody))
	if msg == "" {
		msg = resp.Status
	}
	return core.NewAPIError(fmt.Sprintf("booking rejected (status %d): %s", resp.StatusCode, msg))
}

// Noop is the degraded booking service used when no webhook is configured.
// Bookings fail with a configuration error the engine surfaces to the user.
type Noop struct{}

// Name returns the service identifier.
func (Noop) Name() string { return "noop" }

// Create always fails: there is nowhere to send the booking.
func (Noop) Create(context.Context, Request) error {
	return core.NewConfigurationError("booking is not configured", "booking_webhook_url")
}
