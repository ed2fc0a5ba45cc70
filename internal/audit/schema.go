// Package audit records every upstream Game API call attempt for later
// inspection. Records are append-only: they are written once per attempt
// (including retries) and never mutated.
package audit

import (
	"encoding/json"
	"time"
)

// Record describes one upstream call attempt and its outcome.
type Record struct {
	// Timestamp when the attempt completed.
	Timestamp time.Time `json:"timestamp"`

	// Endpoint is the upstream path that was called (e.g., "/vendors").
	Endpoint string `json:"endpoint"`

	// Method is the HTTP method of the upstream call.
	Method string `json:"method"`

	// RequestBody is the JSON body sent upstream, nil for bodyless calls.
	RequestBody *string `json:"request_body,omitempty"`

	// ResponseBody is the upstream response body when it parsed as JSON.
	// A body that could not be parsed is recorded as nil rather than
	// failing the call.
	ResponseBody *string `json:"response_body,omitempty"`

	// StatusCode is the upstream HTTP status, 0 when the call never
	// produced a response (transport error).
	StatusCode int `json:"status_code"`

	// ErrorMessage holds the derived error for failed attempts.
	ErrorMessage *string `json:"error_message,omitempty"`

	// ExecutionTimeMS is the wall-clock duration of the attempt.
	ExecutionTimeMS int64 `json:"execution_time_ms"`
}

// NewRecord creates a record for one upstream attempt. The timestamp is set
// to the current time.
func NewRecord(method, endpoint string) *Record {
	return &Record{
		Timestamp: time.Now().UTC(),
		Method:    method,
		Endpoint:  endpoint,
	}
}

// WithRequestBody attaches the outbound request body. Nil or empty bodies
// are left unset.
func (r *Record) WithRequestBody(body []byte) *Record {
	if len(body) > 0 {
		s := string(body)
		r.RequestBody = &s
	}
	return r
}

// WithResponseBody attaches the upstream response body, but only when it is
// valid JSON. Unparseable bodies are dropped so a malformed upstream payload
// never poisons the audit trail.
func (r *Record) WithResponseBody(body []byte) *Record {
	if len(body) == 0 || !json.Valid(body) {
		return r
	}
	s := string(body)
	r.ResponseBody = &s
	return r
}

// WithStatus records the upstream HTTP status. Error messages for failed
// attempts are set separately via WithError or WithErrorMessage.
func (r *Record) WithStatus(statusCode int) *Record {
	r.StatusCode = statusCode
	return r
}

// WithError records the attempt's error message.
func (r *Record) WithError(err error) *Record {
	if err != nil {
		msg := err.Error()
		r.ErrorMessage = &msg
	}
	return r
}

// WithErrorMessage records an already-derived error message.
func (r *Record) WithErrorMessage(msg string) *Record {
	if msg != "" {
		r.ErrorMessage = &msg
	}
	return r
}

// WithDuration records the wall-clock execution time of the attempt.
func (r *Record) WithDuration(d time.Duration) *Record {
	r.ExecutionTimeMS = d.Milliseconds()
	return r
}
