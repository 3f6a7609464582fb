package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/StevenCC12/server-side-capi/internal/adapter/api"
	"github.com/StevenCC12/server-side-capi/internal/adapter/capi"
	"github.com/StevenCC12/server-side-capi/internal/adapter/metrics"
	"github.com/StevenCC12/server-side-capi/internal/adapter/pii"
	"github.com/StevenCC12/server-side-capi/internal/adapter/repository/memory"
	"github.com/StevenCC12/server-side-capi/internal/domain"
	"github.com/StevenCC12/server-side-capi/internal/pkg/config"
	"github.com/StevenCC12/server-side-capi/internal/usecase"
)

var relayMetrics = metrics.NewRelayMetrics()

// vendorStub records every envelope the relay sends to the Conversions API.
type vendorStub struct {
	mu        sync.Mutex
	envelopes []domain.Envelope
}

func (v *vendorStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var envelope domain.Envelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		v.mu.Lock()
		v.envelopes = append(v.envelopes, envelope)
		v.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"events_received":1,"fbtrace_id":"test-trace"}`))
	})
}

func (v *vendorStub) received() []domain.Envelope {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Envelope, len(v.envelopes))
	copy(out, v.envelopes)
	return out
}

func newRelay(t *testing.T, vendorURL string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		PixelID:            "12345",
		AccessToken:        "secret",
		GraphAPIBase:       vendorURL,
		GraphAPIVersion:    "v22.0",
		DefaultCurrency:    "SEK",
		DefaultPhoneRegion: "SE",
		AllowedOrigins:     []string{"https://landing.example.com"},
		MaxBodySize:        1 << 20,
		DispatchTimeout:    2 * time.Second,
	}

	cache := memory.NewPendingEventCache(time.Hour, 100, logger)
	t.Cleanup(cache.Stop)

	dispatcher := capi.NewDispatcher(cfg, logger)
	phones := pii.NewPhoneNormalizer(cfg.DefaultPhoneRegion, logger)
	pipeline := usecase.NewProcessEventUseCase(cache, dispatcher, phones, relayMetrics, cfg, logger)

	return api.NewRouter(cfg, logger, pipeline)
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0 (test)")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestPurchaseDeduplicationFlow(t *testing.T) {
	stub := &vendorStub{}
	vendor := httptest.NewServer(stub.handler())
	defer vendor.Close()

	router := newRelay(t, vendor.URL)

	// The landing page parks the client-side event id before the webhook fires.
	rr := postJSON(t, router, "/cache-event-id", `{"email": "Buyer@Example.com", "event_id": "evt-123"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("cache-event-id status = %d, body = %s", rr.Code, rr.Body.String())
	}

	// The payment webhook reports the purchase without an event id.
	rr = postJSON(t, router, "/process-event", `{
		"event_name": "Purchase",
		"event_time": 1700000000,
		"action_source": "website",
		"user_data": {"email": "buyer@example.com", "first_name": "Anna", "phone": "070-291 12 11"},
		"custom_data": {"value": "297", "currency": "null", "utm_source": "facebook"}
	}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("process-event status = %d, body = %s", rr.Code, rr.Body.String())
	}

	envelopes := stub.received()
	if len(envelopes) != 1 {
		t.Fatalf("vendor received %d envelopes, want 1", len(envelopes))
	}

	event := envelopes[0].Data[0]
	if event.EventID != "evt-123" {
		t.Errorf("event id = %q, want the parked evt-123", event.EventID)
	}
	if event.UserData.Email != pii.HashField("buyer@example.com") {
		t.Errorf("em = %q, want hashed email", event.UserData.Email)
	}
	if event.UserData.Phone != pii.HashField("46702911211") {
		t.Errorf("ph = %q, want hash of normalized phone", event.UserData.Phone)
	}
	if event.UserData.ClientIP != "9.9.9.9" {
		t.Errorf("client ip = %q, want first forwarded entry", event.UserData.ClientIP)
	}
	if event.UserData.UserAgent != "Mozilla/5.0 (test)" {
		t.Errorf("user agent = %q", event.UserData.UserAgent)
	}
	if event.CustomData["value"] != 297.0 {
		t.Errorf("value = %v, want 297.0", event.CustomData["value"])
	}
	if event.CustomData["currency"] != "SEK" {
		t.Errorf("currency = %v, want default SEK", event.CustomData["currency"])
	}
	if event.CustomData["utm_source"] != "facebook" {
		t.Errorf("utm_source = %v, want passthrough", event.CustomData["utm_source"])
	}

	// The parked id was consumed: a duplicate webhook gets no event id.
	rr = postJSON(t, router, "/process-event", `{
		"event_name": "Purchase",
		"event_time": 1700000001,
		"action_source": "website",
		"user_data": {"email": "buyer@example.com"}
	}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("second process-event status = %d", rr.Code)
	}
	envelopes = stub.received()
	if got := envelopes[1].Data[0].EventID; got != "" {
		t.Errorf("second purchase event id = %q, want none (take is consume-once)", got)
	}
}

func TestVendorRejectionSurfacesAsGatewayError(t *testing.T) {
	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid parameter"}}`))
	}))
	defer vendor.Close()

	router := newRelay(t, vendor.URL)

	rr := postJSON(t, router, "/process-event", `{
		"event_name": "Lead",
		"event_time": 1700000000,
		"action_source": "website",
		"user_data": {"email": "anna@example.com"}
	}`)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}

	var resp struct {
		Results []domain.DeliveryResult `json:"results"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response body is not JSON: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Status != domain.StatusFailed {
		t.Fatalf("results = %+v, want one failed item", resp.Results)
	}
	if resp.Results[0].Error == "" {
		t.Error("failed result must carry the vendor detail")
	}
}

func TestHealthEndpoint(t *testing.T) {
	stub := &vendorStub{}
	vendor := httptest.NewServer(stub.handler())
	defer vendor.Close()

	router := newRelay(t, vendor.URL)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("health body is not JSON: %v", err)
	}
	if body["status"] != "ok" || body["mode"] != "live" {
		t.Errorf("health body = %v", body)
	}
}
