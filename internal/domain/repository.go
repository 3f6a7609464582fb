package domain

import (
	"context"
	"encoding/json"
)

// PendingEventCache bridges a client-side event identifier to a later
// server-side webhook, keyed by normalized email. Entries are short-lived and
// consumed at most once.
type PendingEventCache interface {
	// Put stores the event identifier under the given normalized email,
	// replacing any existing entry.
	Put(ctx context.Context, email, eventID string) error

	// Take returns and removes the entry for the given normalized email as
	// one atomic step, so concurrent readers never consume the same
	// identifier twice. The second return is false on a miss; a miss is not
	// an error.
	Take(ctx context.Context, email string) (string, bool, error)
}

// EventDispatcher posts an envelope to the Conversions API. A non-2xx result,
// a network failure or a non-JSON response body surfaces as a *DeliveryError.
// Retry policy, if any, belongs to the caller.
type EventDispatcher interface {
	Send(ctx context.Context, envelope *Envelope) (json.RawMessage, error)
}
