// Package envelope defines the uniform response shape returned by every
// tool invocation: either a success carrying a result, or an error carrying
// a message.
package envelope

import "encoding/json"

// Status values used on the wire.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the tagged union returned to callers.
// Exactly one of Result (Status == "success") or Message (Status == "error") is meaningful.
type Envelope struct {
	Status  string `json:"status"`
	Result  any    `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}

// Success wraps a handler result.
func Success(result any) Envelope {
	return Envelope{Status: StatusSuccess, Result: result}
}

// Error builds an error envelope with the given message.
func Error(message string) Envelope {
	return Envelope{Status: StatusError, Message: message}
}

// IsError reports whether e is an error envelope.
func (e Envelope) IsError() bool {
	return e.Status == StatusError
}

// MarshalJSON always emits "result" on success, even when the result is nil,
// so callers can rely on the key being present.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.IsError() {
		return json.Marshal(struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}{StatusError, e.Message})
	}
	return json.Marshal(struct {
		Status string `json:"status"`
		Result any    `json:"result"`
	}{StatusSuccess, e.Result})
}

// Valid reports whether e carries one of the two wire statuses.
func (e Envelope) Valid() bool {
	return e.Status == StatusSuccess || e.Status == StatusError
}

// From reports whether v already is a valid envelope (by value or pointer)
// and returns it. Handlers use this path to self-report usage errors. An
// envelope without a recognised status, such as the zero value, does not
// match.
func From(v any) (Envelope, bool) {
	var e Envelope
	switch t := v.(type) {
	case Envelope:
		e = t
	case *Envelope:
		if t == nil {
			return Envelope{}, false
		}
		e = *t
	default:
		return Envelope{}, false
	}
	if !e.Valid() {
		return Envelope{}, false
	}
	return e, true
}
