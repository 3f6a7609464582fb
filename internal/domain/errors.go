package domain

import "fmt"

// DeliveryError describes a failed vendor call: a non-2xx response, a
// transport failure or an unparseable response body. It is never retried by
// the pipeline.
type DeliveryError struct {
	StatusCode int    // 0 when the request never completed
	Detail     string // raw vendor error detail when available
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode == 0:
		return fmt.Sprintf("conversions api request failed: %v", e.Err)
	case e.Detail != "":
		return fmt.Sprintf("conversions api returned status %d: %s", e.StatusCode, e.Detail)
	default:
		return fmt.Sprintf("conversions api returned status %d", e.StatusCode)
	}
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
