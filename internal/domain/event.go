package domain

import "encoding/json"

// ConversionEvent is a marketing event as supplied by a landing page or
// payment webhook. It is constructed from one inbound request, consumed once
// and discarded.
type ConversionEvent struct {
	EventName      string         `json:"event_name" validate:"required"`
	EventTime      int64          `json:"event_time" validate:"required,gt=0"`
	ActionSource   string         `json:"action_source" validate:"required"`
	EventID        string         `json:"event_id,omitempty"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	UserData       map[string]any `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

// UserDataField returns the named identity field as a string, or "" when the
// field is absent, null or not a string.
func (e *ConversionEvent) UserDataField(key string) string {
	if e.UserData == nil {
		return ""
	}
	s, _ := e.UserData[key].(string)
	return s
}

// EventBatch is the inbound batch shape. The inbound endpoint also accepts a
// bare ConversionEvent, which is treated as a batch of one.
type EventBatch struct {
	Data          []ConversionEvent `json:"data"`
	TestEventCode string            `json:"test_event_code,omitempty"`
}

// UserData is the identity block of an outbound event. PII fields carry
// SHA-256 hashes, never raw values. Every field is omitted when empty; the
// vendor treats an absent key and an empty string differently for matching.
type UserData struct {
	Email      string `json:"em,omitempty"`
	FirstName  string `json:"fn,omitempty"`
	LastName   string `json:"ln,omitempty"`
	Phone      string `json:"ph,omitempty"`
	City       string `json:"ct,omitempty"`
	Zip        string `json:"zp,omitempty"`
	Country    string `json:"country,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	ClickID    string `json:"fbc,omitempty"`
	BrowserID  string `json:"fbp,omitempty"`
	ClientIP   string `json:"client_ip_address,omitempty"`
	UserAgent  string `json:"client_user_agent,omitempty"`
}

// ServerEvent is one event in the vendor envelope.
type ServerEvent struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	ActionSource   string         `json:"action_source"`
	EventID        string         `json:"event_id,omitempty"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	UserData       UserData       `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

// Envelope is the Conversions API request body. Built fresh per dispatch and
// not retained.
type Envelope struct {
	Data          []ServerEvent `json:"data"`
	TestEventCode string        `json:"test_event_code,omitempty"`
}

// RequestMeta carries transport-level identity sources extracted from the
// inbound HTTP request. They are the lowest-precedence inputs to identity
// resolution.
type RequestMeta struct {
	RemoteAddr   string
	ForwardedFor string
	UserAgent    string
}

// DeliveryResult is the per-event outcome of a dispatch.
type DeliveryResult struct {
	EventName string          `json:"event_name"`
	EventID   string          `json:"event_id,omitempty"`
	Status    string          `json:"status"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}

const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Delivered reports whether the dispatch succeeded.
func (r DeliveryResult) Delivered() bool {
	return r.Status == StatusDelivered
}
