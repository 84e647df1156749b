// Package notify sends transactional email through an external delivery API.
//
// Delivery is best effort. Callers treat failures as non-fatal: an escrow
// release or dispute escalation must never roll back because an email could
// not be sent.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Eaziking2002/talent-afro-sub001/internal/circuitbreaker"
	"github.com/Eaziking2002/talent-afro-sub001/internal/retry"
)

// ErrDeliveryUnavailable is returned when the delivery API has failed
// repeatedly and the client is refusing requests until it recovers.
var ErrDeliveryUnavailable = errors.New("notify: delivery API unavailable")

// Email is a single outbound message.
type Email struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// Client posts email to the delivery API.
type Client struct {
	apiURL  string
	apiKey  string
	from    string
	http    *http.Client
	breaker *circuitbreaker.Breaker
}

var _ Sender = (*Client)(nil)

// NewClient creates a notification client.
func NewClient(apiURL, apiKey, from string) *Client {
	return &Client{
		apiURL:  apiURL,
		apiKey:  apiKey,
		from:    from,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

// Send delivers one email, retrying transient failures.
func (c *Client) Send(ctx context.Context, email Email) error {
	if email.From == "" {
		email.From = c.from
	}

	body, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	return retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		if !c.breaker.Allow(c.apiURL) {
			return retry.Permanent(ErrDeliveryUnavailable)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			c.breaker.RecordFailure(c.apiURL)
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode < 300:
			c.breaker.RecordSuccess(c.apiURL)
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			// Bad request or bad credentials, retrying won't help.
			// Not a breaker failure: the API is up, the payload is wrong.
			return retry.Permanent(fmt.Errorf("notify API rejected email: %s", resp.Status))
		default:
			c.breaker.RecordFailure(c.apiURL)
			return fmt.Errorf("notify API unavailable: %s", resp.Status)
		}
	})
}

// NopSender discards email. Used when no delivery API is configured.
type NopSender struct{}

func (NopSender) Send(ctx context.Context, email Email) error { return nil }
