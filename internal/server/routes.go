package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cursor2b-collab/vip-sub001/internal/database"
	"github.com/cursor2b-collab/vip-sub001/internal/upstream"
)

// buildRoutes maps every inbound path to its method and handler. Paths are
// matched after prefix stripping, so entries here are the bare operation
// paths.
func (s *Server) buildRoutes() map[string]route {
	c := s.client
	return map[string]route{
		"/vendors/list":    {http.MethodGet, relayGet(s, c.VendorList)},
		"/games/mini/list": {http.MethodGet, relayGet(s, c.MiniGameList)},
		"/agent/balance":   {http.MethodGet, relayGet(s, c.AgentBalance)},
		"/status":          {http.MethodGet, relayGet(s, c.Status)},

		"/games/list":      {http.MethodPost, relayPost(s, c.GameList)},
		"/game/detail":     {http.MethodPost, relayPost(s, c.GameDetail)},
		"/game/launch-url": {http.MethodPost, relayPost(s, c.LaunchURL)},

		"/user/create":          {http.MethodPost, relayPost(s, c.CreateUser)},
		"/user/balance":         {http.MethodPost, relayPost(s, c.UserBalance)},
		"/user/deposit":         {http.MethodPost, relayPost(s, c.Deposit)},
		"/user/withdraw":        {http.MethodPost, relayPost(s, c.Withdraw)},
		"/user/withdraw-all":    {http.MethodPost, relayPost(s, c.WithdrawAll)},
		"/user/balance-history": {http.MethodPost, relayPost(s, c.BalanceHistory)},

		"/betting/history/by-date-v2": {http.MethodPost, relayPost(s, c.BettingHistoryByDate)},
		"/betting/history/by-id":      {http.MethodPost, relayPost(s, c.BettingHistoryByID)},
		"/transaction/history/by-id":  {http.MethodPost, relayPost(s, c.TransactionHistoryByID)},
		"/betting/history/detail":     {http.MethodPost, relayPost(s, c.BettingHistoryDetail)},

		"/game/user/set-rtp":    {http.MethodPost, relayPost(s, c.SetUserRTP)},
		"/game/user/get-rtp":    {http.MethodPost, relayPost(s, c.GetUserRTP)},
		"/game/users/reset-rtp": {http.MethodPost, relayPost(s, c.ResetUsersRTP)},
		"/game/users/batch-rtp": {http.MethodPost, relayPost(s, c.BatchRTP)},

		"/logs": {http.MethodGet, s.handleLogs},
	}
}

// relayGet adapts a body-less upstream operation into a handler.
func relayGet(s *Server, op func(context.Context) (*upstream.Response, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := op(r.Context())
		s.relay(w, resp, err)
	}
}

// relayPost adapts a typed upstream operation into a handler that decodes
// the request body into the operation's request struct.
func relayPost[T any](s *Server, op func(context.Context, T) (*upstream.Response, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, http.StatusBadRequest,
				"invalid request body: "+err.Error())
			return
		}
		resp, err := op(r.Context(), req)
		s.relay(w, resp, err)
	}
}

// decodeBody parses the JSON request body into v. An empty body is treated
// as an empty object; field presence is not enforced here, the upstream API
// rejects incomplete payloads.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// logsResponse is the body returned by the call-log listing route.
type logsResponse struct {
	Success bool          `json:"success"`
	Total   int           `json:"total"`
	Logs    []callLogView `json:"logs"`
}

type callLogView struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	Endpoint        string    `json:"endpoint"`
	Method          string    `json:"method"`
	RequestBody     *string   `json:"requestBody,omitempty"`
	ResponseBody    *string   `json:"responseBody,omitempty"`
	StatusCode      int       `json:"statusCode"`
	ErrorMessage    *string   `json:"errorMessage,omitempty"`
	ExecutionTimeMS int64     `json:"executionTimeMs"`
}

// handleLogs lists persisted call logs for operators. The route is guarded
// by the static API key independently of the main gate configuration.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if !s.gate.CheckAPIKey(r) {
		s.writeError(w, http.StatusForbidden, http.StatusForbidden, "api key required")
		return
	}
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, http.StatusServiceUnavailable,
			"call log store not configured")
		return
	}

	filters := parseLogFilters(r)
	logs, err := s.db.ListCallLogs(r.Context(), filters)
	if err != nil {
		s.logger.Error("listing call logs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, http.StatusInternalServerError,
			"failed to list call logs")
		return
	}
	total, err := s.db.CountCallLogs(r.Context(), filters)
	if err != nil {
		s.logger.Error("counting call logs failed", zap.Error(err))
		total = len(logs)
	}

	views := make([]callLogView, 0, len(logs))
	for _, l := range logs {
		views = append(views, toCallLogView(l))
	}
	s.writeJSON(w, http.StatusOK, logsResponse{Success: true, Total: total, Logs: views})
}

func parseLogFilters(r *http.Request) database.CallLogFilters {
	q := r.URL.Query()
	filters := database.CallLogFilters{
		Endpoint: q.Get("endpoint"),
		Method:   q.Get("method"),
		Limit:    100,
	}
	if v, err := strconv.Atoi(q.Get("status")); err == nil && v > 0 {
		filters.StatusCode = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		filters.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		filters.Offset = v
	}
	if t, err := time.Parse(time.RFC3339, q.Get("start")); err == nil {
		filters.StartTime = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("end")); err == nil {
		filters.EndTime = &t
	}
	return filters
}

func toCallLogView(l database.CallLog) callLogView {
	v := callLogView{
		ID:              l.ID,
		Timestamp:       l.Timestamp,
		Endpoint:        l.Endpoint,
		Method:          l.Method,
		StatusCode:      l.StatusCode,
		ExecutionTimeMS: l.ExecutionTimeMS,
	}
	if l.RequestBody.Valid {
		v.RequestBody = &l.RequestBody.String
	}
	if l.ResponseBody.Valid {
		v.ResponseBody = &l.ResponseBody.String
	}
	if l.ErrorMessage.Valid {
		v.ErrorMessage = &l.ErrorMessage.String
	}
	return v
}
