package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cursor2b-collab/vip-sub001/internal/access"
	"github.com/cursor2b-collab/vip-sub001/internal/ratelimit"
	"github.com/cursor2b-collab/vip-sub001/internal/token"
	"github.com/cursor2b-collab/vip-sub001/internal/upstream"
)

// Envelope is the response body shape for every gateway response: either
// the upstream body relayed verbatim, or a locally-constructed error.
type Envelope struct {
	Success   bool `json:"success"`
	Message   any  `json:"message,omitempty"`
	ErrorCode int  `json:"errorCode,omitempty"`
}

// writeJSON encodes v as the response body with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes a locally-constructed error envelope.
func (s *Server) writeError(w http.ResponseWriter, status, errorCode int, message string) {
	s.writeJSON(w, status, Envelope{Success: false, ErrorCode: errorCode, Message: message})
}

// relay converts an upstream operation's outcome into the caller's
// response. Upstream envelopes are relayed verbatim under the upstream
// status; everything else becomes a structured gateway error. No error
// escapes to the process level.
func (s *Server) relay(w http.ResponseWriter, resp *upstream.Response, err error) {
	if err == nil {
		s.relayBody(w, resp)
		return
	}

	var ve *upstream.ValidationError
	if errors.As(err, &ve) {
		s.writeError(w, http.StatusBadRequest, http.StatusBadRequest, ve.Message)
		return
	}

	var le *ratelimit.LimitExceededError
	if errors.As(err, &le) {
		s.writeError(w, http.StatusTooManyRequests, http.StatusTooManyRequests, le.Error())
		return
	}

	if errors.Is(err, token.ErrMissingCredentials) {
		s.logger.Error("upstream credentials are not configured")
		s.writeError(w, http.StatusInternalServerError, http.StatusInternalServerError, err.Error())
		return
	}

	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		// The upstream already speaks the envelope; relay it raw so the
		// caller sees exactly what upstream said.
		if resp != nil && resp.Envelope != nil {
			s.relayRaw(w, resp)
			return
		}
		s.writeError(w, apiErr.Status, apiErr.Code, apiErr.Message)
		return
	}

	if errors.Is(err, upstream.ErrUpstreamTimeout) {
		s.writeError(w, http.StatusGatewayTimeout, http.StatusGatewayTimeout, err.Error())
		return
	}

	s.logger.Error("upstream operation failed", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, http.StatusInternalServerError, err.Error())
}

// relayBody writes a successful upstream response through to the caller.
func (s *Server) relayBody(w http.ResponseWriter, resp *upstream.Response) {
	if resp == nil {
		s.writeJSON(w, http.StatusOK, Envelope{Success: true})
		return
	}
	if resp.Envelope != nil {
		s.relayRaw(w, resp)
		return
	}
	// Upstream replied with something other than the envelope; wrap it.
	s.writeJSON(w, http.StatusOK, Envelope{Success: true, Message: string(resp.Body)})
}

// relayRaw copies the upstream body and status unchanged.
func (s *Server) relayRaw(w http.ResponseWriter, resp *upstream.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		s.logger.Error("failed to write relayed response", zap.Error(err))
	}
}

// writeDenied logs and reports an access denial. The reason is echoed to
// the caller; the gateway is internal-facing, revisit before any public
// exposure.
func (s *Server) writeDenied(w http.ResponseWriter, r *http.Request, err error) {
	var de *access.DeniedError
	reason := "access denied"
	if errors.As(err, &de) {
		reason = de.Reason
	}
	s.logger.Warn("request denied",
		zap.String("path", r.URL.Path),
		zap.String("reason", reason))
	s.writeError(w, http.StatusForbidden, http.StatusForbidden, reason)
}
