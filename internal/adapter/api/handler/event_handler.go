package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/StevenCC12/server-side-capi/internal/domain"
)

// EventPipeline is the slice of the use case the HTTP layer needs.
type EventPipeline interface {
	ProcessBatch(ctx context.Context, batch *domain.EventBatch, meta domain.RequestMeta) []domain.DeliveryResult
	CachePendingEvent(ctx context.Context, email, eventID string) error
}

// EventHandler handles HTTP requests for event processing.
type EventHandler struct {
	pipeline    EventPipeline
	logger      *slog.Logger
	validate    *validator.Validate
	maxBodySize int64
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(pipeline EventPipeline, logger *slog.Logger, maxBodySize int64) *EventHandler {
	return &EventHandler{
		pipeline:    pipeline,
		logger:      logger,
		validate:    validator.New(),
		maxBodySize: maxBodySize,
	}
}

// processResponse is the body of a successful (or partially successful)
// processing call: one result per submitted event, in input order.
type processResponse struct {
	Results []domain.DeliveryResult `json:"results"`
}

// ProcessEvent accepts either a bare event object or a {data: [...]} batch,
// runs the pipeline and answers with a per-item result list.
func (h *EventHandler) ProcessEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest, "payload too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "failed to read request body", nil)
		return
	}

	batch, err := h.decodeBatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
		return
	}

	if details := h.validateBatch(batch); len(details) > 0 {
		writeError(w, http.StatusBadRequest, codeValidation, "event failed validation", details)
		return
	}

	results := h.pipeline.ProcessBatch(r.Context(), batch, requestMeta(r))
	writeJSON(w, batchStatus(results), processResponse{Results: results})
}

// CacheEventID stores a client-side event identifier ahead of the purchase
// webhook. Both fields are required.
func (h *EventHandler) CacheEventID(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req struct {
		Email   string `json:"email"`
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "failed to decode JSON", nil)
		return
	}
	if req.Email == "" || req.EventID == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "missing email or event_id", nil)
		return
	}

	if err := h.pipeline.CachePendingEvent(r.Context(), req.Email, req.EventID); err != nil {
		h.logger.Error("failed to cache pending event id", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to cache event id", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cached"})
}

// decodeBatch accepts both inbound shapes. A bare event becomes a batch of
// one.
func (h *EventHandler) decodeBatch(body []byte) (*domain.EventBatch, error) {
	var batch domain.EventBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, errors.New("failed to decode JSON")
	}
	if len(batch.Data) > 0 {
		return &batch, nil
	}

	var event domain.ConversionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, errors.New("failed to decode JSON")
	}
	return &domain.EventBatch{Data: []domain.ConversionEvent{event}}, nil
}

func (h *EventHandler) validateBatch(batch *domain.EventBatch) map[string]string {
	details := make(map[string]string)
	for i := range batch.Data {
		// An empty identity mapping is allowed, a missing one is not.
		if batch.Data[i].UserData == nil {
			details[fmt.Sprintf("data[%d].user_data", i)] = "is required"
		}
		if err := h.validate.Struct(&batch.Data[i]); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) {
				for _, fe := range fieldErrs {
					details[fmt.Sprintf("data[%d].%s", i, fieldName(fe))] = fieldMessage(fe)
				}
				continue
			}
			details[fmt.Sprintf("data[%d]", i)] = err.Error()
		}
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "EventName":
		return "event_name"
	case "EventTime":
		return "event_time"
	case "ActionSource":
		return "action_source"
	default:
		return fe.Field()
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "is invalid"
	}
}

// batchStatus maps per-item outcomes to one HTTP status: 200 when every item
// delivered, 502 when every item failed, 207 on a mix.
func batchStatus(results []domain.DeliveryResult) int {
	delivered := 0
	for _, r := range results {
		if r.Delivered() {
			delivered++
		}
	}
	switch delivered {
	case len(results):
		return http.StatusOK
	case 0:
		return http.StatusBadGateway
	default:
		return http.StatusMultiStatus
	}
}

// requestMeta extracts the transport-level identity sources the resolver
// falls back to.
func requestMeta(r *http.Request) domain.RequestMeta {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	return domain.RequestMeta{
		RemoteAddr:   host,
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		UserAgent:    r.Header.Get("User-Agent"),
	}
}
