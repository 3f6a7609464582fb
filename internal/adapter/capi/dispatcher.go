package capi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/StevenCC12/server-side-capi/internal/domain"
	"github.com/StevenCC12/server-side-capi/internal/pkg/config"
)

// maxResponseSize caps how much of a vendor response is read. Real responses
// are a few hundred bytes.
const maxResponseSize = 1 << 20

// Dispatcher posts envelopes to the Meta Conversions API. It implements
// domain.EventDispatcher. No retries, no backoff; a failure surfaces as a
// *domain.DeliveryError and the caller decides what to do with it.
type Dispatcher struct {
	client *http.Client
	url    string
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher for the configured pixel. The endpoint
// URL is fixed at startup; the access credential travels as a query
// parameter, per the vendor contract.
func NewDispatcher(cfg *config.Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: &http.Client{Timeout: cfg.DispatchTimeout},
		url: fmt.Sprintf("%s/%s/%s/events?access_token=%s",
			cfg.GraphAPIBase, cfg.GraphAPIVersion, cfg.PixelID, cfg.AccessToken),
		logger: logger.With("component", "capi_dispatcher"),
	}
}

// Send posts the envelope and returns the vendor's JSON response body.
func (d *Dispatcher) Send(ctx context.Context, envelope *domain.Envelope) (json.RawMessage, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, &domain.DeliveryError{Err: fmt.Errorf("failed to marshal envelope: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.DeliveryError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &domain.DeliveryError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &domain.DeliveryError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Warn("conversions api rejected envelope", "status", resp.StatusCode)
		return nil, &domain.DeliveryError{
			StatusCode: resp.StatusCode,
			Detail:     vendorDetail(respBody),
		}
	}

	if !json.Valid(respBody) {
		return nil, &domain.DeliveryError{
			StatusCode: resp.StatusCode,
			Detail:     "response body is not valid JSON",
		}
	}

	return json.RawMessage(respBody), nil
}

// vendorDetail extracts the vendor's error message from an error response
// body, falling back to the raw body.
func vendorDetail(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return string(body)
}
