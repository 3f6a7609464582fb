package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/StevenCC12/server-side-capi/internal/adapter/metrics"
	"github.com/StevenCC12/server-side-capi/internal/adapter/normalize"
	"github.com/StevenCC12/server-side-capi/internal/adapter/pii"
	"github.com/StevenCC12/server-side-capi/internal/domain"
	"github.com/StevenCC12/server-side-capi/internal/pkg/config"
)

// clientUserAgentKey is the documented custom-data key under which landing
// pages place the browser's user agent when the event reaches us through a
// third-party webhook instead of the browser itself. It is consumed during
// identity resolution and stripped from the forwarded custom data.
const clientUserAgentKey = "client_user_agent"

// purchaseEventName is the only event name eligible for a pending event-id
// lookup; other events never have a client-side counterpart cached ahead of
// the webhook.
const purchaseEventName = "Purchase"

// ProcessEventUseCase normalizes, pseudonymizes and forwards conversion
// events. All precedence chains that were historically copy-pasted across
// handler variants live here, in one place.
type ProcessEventUseCase struct {
	cache      domain.PendingEventCache
	dispatcher domain.EventDispatcher
	phones     *pii.PhoneNormalizer
	metrics    *metrics.RelayMetrics
	logger     *slog.Logger

	defaultCurrency   string
	testEventCode     string
	synthesizeEventID bool
}

// NewProcessEventUseCase creates a new ProcessEventUseCase.
func NewProcessEventUseCase(
	cache domain.PendingEventCache,
	dispatcher domain.EventDispatcher,
	phones *pii.PhoneNormalizer,
	m *metrics.RelayMetrics,
	cfg *config.Config,
	logger *slog.Logger,
) *ProcessEventUseCase {
	return &ProcessEventUseCase{
		cache:             cache,
		dispatcher:        dispatcher,
		phones:            phones,
		metrics:           m,
		logger:            logger,
		defaultCurrency:   cfg.DefaultCurrency,
		testEventCode:     cfg.TestEventCode,
		synthesizeEventID: cfg.SynthesizeEventID,
	}
}

// ProcessBatch processes every event of a batch independently and dispatches
// them concurrently. One event's delivery failure never prevents attempting
// the others; the caller receives one result per event, in input order.
func (uc *ProcessEventUseCase) ProcessBatch(ctx context.Context, batch *domain.EventBatch, meta domain.RequestMeta) []domain.DeliveryResult {
	results := make([]domain.DeliveryResult, len(batch.Data))

	var wg sync.WaitGroup
	for i := range batch.Data {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = uc.process(ctx, &batch.Data[i], meta, batch.TestEventCode)
		}(i)
	}
	wg.Wait()

	return results
}

// Process runs the pipeline for a single event.
func (uc *ProcessEventUseCase) Process(ctx context.Context, event *domain.ConversionEvent, meta domain.RequestMeta) domain.DeliveryResult {
	return uc.process(ctx, event, meta, "")
}

// CachePendingEvent stores a client-side event identifier for a later
// Purchase webhook, keyed by the normalized email.
func (uc *ProcessEventUseCase) CachePendingEvent(ctx context.Context, email, eventID string) error {
	normalized := pii.NormalizeEmail(email)
	if err := uc.cache.Put(ctx, normalized, eventID); err != nil {
		return fmt.Errorf("failed to cache pending event id: %w", err)
	}
	uc.logger.Info("cached pending event id", "event_id", eventID)
	return nil
}

func (uc *ProcessEventUseCase) process(ctx context.Context, event *domain.ConversionEvent, meta domain.RequestMeta, testCodeOverride string) domain.DeliveryResult {
	eventID := uc.resolveEventID(ctx, event)

	serverEvent := domain.ServerEvent{
		EventName:      event.EventName,
		EventTime:      event.EventTime,
		ActionSource:   event.ActionSource,
		EventID:        eventID,
		EventSourceURL: event.EventSourceURL,
		UserData:       uc.resolveIdentity(event, meta),
		CustomData:     uc.resolveCustomData(event),
	}

	envelope := &domain.Envelope{
		Data:          []domain.ServerEvent{serverEvent},
		TestEventCode: uc.resolveTestEventCode(testCodeOverride),
	}

	result := domain.DeliveryResult{
		EventName: event.EventName,
		EventID:   eventID,
	}

	start := time.Now()
	response, err := uc.dispatcher.Send(ctx, envelope)
	uc.metrics.DeliveryDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		uc.logger.Error("event delivery failed", "event_name", event.EventName, "event_id", eventID, "error", err)
		result.Status = domain.StatusFailed
		result.Error = err.Error()
	} else {
		result.Status = domain.StatusDelivered
		result.Response = response
	}

	uc.metrics.EventsTotal.WithLabelValues(event.EventName, result.Status).Inc()
	return result
}

// resolveEventID determines the deduplication key the vendor uses to merge
// client-side and server-side reports of the same real-world action.
// Precedence: explicit event_id, then (Purchase only) the pending cache keyed
// by normalized email, then a synthesized token when the deployment requires
// a non-empty identifier, else none.
func (uc *ProcessEventUseCase) resolveEventID(ctx context.Context, event *domain.ConversionEvent) string {
	if event.EventID != "" {
		return event.EventID
	}

	if event.EventName == purchaseEventName {
		email := pii.NormalizeEmail(event.UserDataField("email"))
		if email == "" {
			uc.logger.Warn("purchase event has no email to look up a pending event id")
		} else {
			id, ok, err := uc.cache.Take(ctx, email)
			switch {
			case err != nil:
				uc.logger.Warn("pending event id lookup failed", "error", err)
			case ok:
				uc.metrics.PendingCacheHits.Inc()
				uc.logger.Info("attached pending event id to purchase", "event_id", id)
				return id
			default:
				uc.metrics.PendingCacheMisses.Inc()
				uc.logger.Warn("no pending event id found for purchase email")
			}
		}
	}

	if uc.synthesizeEventID {
		return fmt.Sprintf("%s.%d", uuid.NewString(), time.Now().Unix())
	}
	return ""
}

// resolveIdentity builds the outbound identity block. A field appears in the
// output iff its source value survived trimming and format validation.
func (uc *ProcessEventUseCase) resolveIdentity(event *domain.ConversionEvent, meta domain.RequestMeta) domain.UserData {
	return domain.UserData{
		Email:      pii.HashField(event.UserDataField("email")),
		FirstName:  pii.HashField(event.UserDataField("first_name")),
		LastName:   pii.HashField(event.UserDataField("last_name")),
		Phone:      pii.HashField(uc.phones.Normalize(event.UserDataField("phone"))),
		City:       pii.HashField(event.UserDataField("city")),
		Zip:        pii.HashField(event.UserDataField("zip")),
		Country:    pii.HashField(strings.ToLower(event.UserDataField("country"))),
		ExternalID: pii.HashField(event.UserDataField("external_id")),
		ClickID:    normalize.ClickID(event.UserDataField("fbc")),
		BrowserID:  normalize.BrowserID(event.UserDataField("fbp")),
		ClientIP:   uc.resolveClientIP(event, meta),
		UserAgent:  uc.resolveUserAgent(event, meta),
	}
}

// resolveClientIP picks the highest-precedence IP source and validates it.
// An invalid candidate is treated as absent, never as an error.
func (uc *ProcessEventUseCase) resolveClientIP(event *domain.ConversionEvent, meta domain.RequestMeta) string {
	candidate := event.UserDataField("client_ip_address")
	if candidate == "" && meta.ForwardedFor != "" {
		first, _, _ := strings.Cut(meta.ForwardedFor, ",")
		candidate = strings.TrimSpace(first)
	}
	if candidate == "" {
		candidate = meta.RemoteAddr
	}
	return normalize.IP(candidate)
}

func (uc *ProcessEventUseCase) resolveUserAgent(event *domain.ConversionEvent, meta domain.RequestMeta) string {
	if ua := event.UserDataField("user_agent"); ua != "" {
		return ua
	}
	if event.CustomData != nil {
		if ua, ok := event.CustomData[clientUserAgentKey].(string); ok && ua != "" {
			return ua
		}
	}
	return meta.UserAgent
}

func (uc *ProcessEventUseCase) resolveCustomData(event *domain.ConversionEvent) map[string]any {
	custom := normalize.CustomData(event.CustomData, uc.defaultCurrency, uc.logger)
	delete(custom, clientUserAgentKey)
	return custom
}

func (uc *ProcessEventUseCase) resolveTestEventCode(override string) string {
	if override != "" {
		return override
	}
	return uc.testEventCode
}
