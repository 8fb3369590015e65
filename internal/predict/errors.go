package predict

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags an error so callers can branch on classification instead of
// re-parsing message text at every call site.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindConfig            Kind = "config"
	KindResourceExhausted Kind = "resource_exhausted"
	KindNetwork           Kind = "network"
	KindUpstream          Kind = "upstream"
)

// Error is a classified failure from the prediction service or its transport.
type Error struct {
	Kind   Kind
	Status int // upstream HTTP status, 0 when the request never completed
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("prediction service: %s (status %d): %s", e.Kind, e.Status, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("prediction service: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("prediction service: %s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err, or KindUpstream if the error
// carries no tag.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUpstream
}

var resourceExhaustedMarkers = []string{
	"cuda out of memory",
	"gpu memory",
	"out of memory",
}

var networkMarkers = []string{
	"network",
	"timeout",
	"connection",
	"offline",
	"no such host",
}

// classifyDetail tags an upstream error payload by its text. Resource
// exhaustion wins over network since OOM payloads sometimes mention both.
func classifyDetail(detail string) Kind {
	lower := strings.ToLower(detail)
	for _, m := range resourceExhaustedMarkers {
		if strings.Contains(lower, m) {
			return KindResourceExhausted
		}
	}
	for _, m := range networkMarkers {
		if strings.Contains(lower, m) {
			return KindNetwork
		}
	}
	return KindUpstream
}

// classifyTransport wraps an error from the HTTP round-trip itself.
// A request that never reached the service is a connectivity problem.
func classifyTransport(err error) *Error {
	kind := KindNetwork
	if k := classifyDetail(err.Error()); k == KindResourceExhausted {
		kind = k
	}
	return &Error{Kind: kind, Detail: err.Error(), Err: err}
}
