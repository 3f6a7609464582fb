package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORS(t *testing.T) {
	wrapped := CORS([]string{"https://landing.example.com"})(okHandler)

	t.Run("Allowed origin gets headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/process-event", nil)
		req.Header.Set("Origin", "https://landing.example.com")
		rr := httptest.NewRecorder()

		wrapped.ServeHTTP(rr, req)

		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://landing.example.com" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rr.Code)
		}
	})

	t.Run("Preflight short-circuits", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/process-event", nil)
		req.Header.Set("Origin", "https://landing.example.com")
		rr := httptest.NewRecorder()

		wrapped.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Methods"); got == "" {
			t.Error("preflight response missing Allow-Methods")
		}
	})

	t.Run("Unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/process-event", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rr := httptest.NewRecorder()

		wrapped.ServeHTTP(rr, req)

		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want none", got)
		}
	})
}

func TestLogging(t *testing.T) {
	makeHandler := func(status int, body string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(body))
		})
	}

	lastLogLine := func(t *testing.T, buf *bytes.Buffer) map[string]any {
		t.Helper()
		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("could not parse log line %q: %v", buf.String(), err)
		}
		return entry
	}

	tests := []struct {
		name        string
		status      int
		body        string
		wantOutcome string
		wantLevel   string
	}{
		{"All delivered", http.StatusOK, `{"results":[]}`, "delivered", "INFO"},
		{"Mixed batch", http.StatusMultiStatus, `{"results":[]}`, "partial", "INFO"},
		{"Rejected before dispatch", http.StatusBadRequest, `{"code":"bad_request"}`, "rejected", "INFO"},
		{"All deliveries failed", http.StatusBadGateway, `{"results":[]}`, "failed", "WARN"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			wrapped := Logging(logger)(makeHandler(tc.status, tc.body))

			req := httptest.NewRequest(http.MethodPost, "/process-event", nil)
			rr := httptest.NewRecorder()
			wrapped.ServeHTTP(rr, req)

			entry := lastLogLine(t, &buf)
			if got := entry["status"]; got != float64(tc.status) {
				t.Errorf("status = %v, want %d", got, tc.status)
			}
			if got := entry["outcome"]; got != tc.wantOutcome {
				t.Errorf("outcome = %v, want %q", got, tc.wantOutcome)
			}
			if got := entry["level"]; got != tc.wantLevel {
				t.Errorf("level = %v, want %q", got, tc.wantLevel)
			}
			if got := entry["bytes"]; got != float64(len(tc.body)) {
				t.Errorf("bytes = %v, want %d", got, len(tc.body))
			}
			if got := entry["path"]; got != "/process-event" {
				t.Errorf("path = %v", got)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Burst exhaustion returns 429", func(t *testing.T) {
		wrapped := RateLimit(1, 2, logger)(okHandler)

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			rr := httptest.NewRecorder()
			wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
			codes = append(codes, rr.Code)
		}

		if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
			t.Errorf("first two requests should pass, got %v", codes)
		}
		if codes[2] != http.StatusTooManyRequests {
			t.Errorf("third request = %d, want 429", codes[2])
		}
	})

	t.Run("Disabled when rps is zero", func(t *testing.T) {
		wrapped := RateLimit(0, 0, logger)(okHandler)

		for i := 0; i < 10; i++ {
			rr := httptest.NewRecorder()
			wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
			if rr.Code != http.StatusOK {
				t.Fatalf("request %d = %d, want 200", i, rr.Code)
			}
		}
	})
}
