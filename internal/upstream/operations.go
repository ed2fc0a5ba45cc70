package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cursor2b-collab/vip-sub001/internal/ratelimit"
)

// RTP bounds accepted by the upstream API, inclusive.
const (
	MinRTP = 30
	MaxRTP = 99
)

// MaxBatchRTPEntries caps one batch RTP update.
const MaxBatchRTPEntries = 500

// ValidationError reports a request rejected locally before any network
// call was made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is a local validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GameListRequest lists games for one vendor.
type GameListRequest struct {
	VendorCode string `json:"vendorCode"`
	Language   string `json:"language,omitempty"`
}

// GameDetailRequest fetches one game's detail.
type GameDetailRequest struct {
	VendorCode string `json:"vendorCode"`
	GameCode   string `json:"gameCode"`
}

// LaunchURLRequest requests a game launch URL for a player.
type LaunchURLRequest struct {
	VendorCode string `json:"vendorCode"`
	GameCode   string `json:"gameCode"`
	UserCode   string `json:"userCode"`
	Language   string `json:"language,omitempty"`
	LobbyURL   string `json:"lobbyUrl,omitempty"`
}

// UserRequest addresses one platform user.
type UserRequest struct {
	UserCode string `json:"userCode"`
}

// TransferRequest moves balance in or out of a user's wallet.
type TransferRequest struct {
	UserCode   string  `json:"userCode"`
	Balance    float64 `json:"balance"`
	OrderNo    string  `json:"orderNo,omitempty"`
	VendorCode string  `json:"vendorCode,omitempty"`
}

// WithdrawAllRequest empties a user's wallet.
type WithdrawAllRequest struct {
	UserCode   string `json:"userCode"`
	VendorCode string `json:"vendorCode,omitempty"`
}

// BalanceHistoryRequest looks up a transfer by order number.
type BalanceHistoryRequest struct {
	OrderNo string `json:"orderNo"`
}

// BettingHistoryByDateRequest pages betting history from a start date.
type BettingHistoryByDateRequest struct {
	StartDate  string `json:"startDate"`
	Limit      int    `json:"limit,omitempty"`
	VendorCode string `json:"vendorCode,omitempty"`
}

// ByIDRequest addresses a record by upstream id.
type ByIDRequest struct {
	ID string `json:"id"`
}

// BettingHistoryDetailRequest fetches the detailed view of one bet.
type BettingHistoryDetailRequest struct {
	ID       string `json:"id"`
	Language string `json:"language,omitempty"`
}

// UserRTPRequest sets the RTP for one user at one vendor.
type UserRTPRequest struct {
	VendorCode string `json:"vendorCode"`
	UserCode   string `json:"userCode"`
	RTP        int    `json:"rtp"`
}

// GetUserRTPRequest reads the RTP for one user at one vendor.
type GetUserRTPRequest struct {
	VendorCode string `json:"vendorCode"`
	UserCode   string `json:"userCode"`
}

// ResetRTPRequest resets all users at one vendor to a single RTP.
type ResetRTPRequest struct {
	VendorCode string `json:"vendorCode"`
	RTP        int    `json:"rtp"`
}

// BatchRTPEntry is one user's RTP in a batch update.
type BatchRTPEntry struct {
	UserCode string `json:"userCode"`
	RTP      int    `json:"rtp"`
}

// BatchRTPRequest updates RTP for many users at once.
type BatchRTPRequest struct {
	VendorCode string          `json:"vendorCode"`
	Data       []BatchRTPEntry `json:"data"`
}

// VendorList lists all available game vendors.
func (c *Client) VendorList(ctx context.Context) (*Response, error) {
	return c.Do(ctx, http.MethodGet, "/vendors/list", nil)
}

// MiniGameList lists the mini games catalog.
func (c *Client) MiniGameList(ctx context.Context) (*Response, error) {
	return c.Do(ctx, http.MethodGet, "/games/mini/list", nil)
}

// AgentBalance reads the agent's upstream balance.
func (c *Client) AgentBalance(ctx context.Context) (*Response, error) {
	return c.Do(ctx, http.MethodGet, "/agent/balance", nil)
}

// Status checks upstream availability.
func (c *Client) Status(ctx context.Context) (*Response, error) {
	return c.Do(ctx, http.MethodGet, "/status", nil)
}

// GameList lists games for a vendor.
func (c *Client) GameList(ctx context.Context, req GameListRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/games/list", req)
}

// GameDetail fetches one game's detail.
func (c *Client) GameDetail(ctx context.Context, req GameDetailRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/game/detail", req)
}

// LaunchURL obtains a launch URL for a player and game.
func (c *Client) LaunchURL(ctx context.Context, req LaunchURLRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/game/launch-url", req)
}

// CreateUser registers a platform user upstream.
func (c *Client) CreateUser(ctx context.Context, req UserRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/user/create", req)
}

// UserBalance reads one user's wallet balance.
func (c *Client) UserBalance(ctx context.Context, req UserRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/user/balance", req)
}

// Deposit credits a user's wallet.
func (c *Client) Deposit(ctx context.Context, req TransferRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/user/deposit", req)
}

// Withdraw debits a user's wallet.
func (c *Client) Withdraw(ctx context.Context, req TransferRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/user/withdraw", req)
}

// WithdrawAll empties a user's wallet.
func (c *Client) WithdrawAll(ctx context.Context, req WithdrawAllRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/user/withdraw-all", req)
}

// BalanceHistory looks up a transfer by order number.
func (c *Client) BalanceHistory(ctx context.Context, req BalanceHistoryRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/user/balance-history", req)
}

// BettingHistoryByDate pages betting history from a start date. The upstream
// endpoint allows one call per second; the budget is checked locally before
// the call, so a denial never spends upstream quota.
func (c *Client) BettingHistoryByDate(ctx context.Context, req BettingHistoryByDateRequest) (*Response, error) {
	if err := c.allow(ctx, "game-api:betting-history-by-date", ratelimit.BettingHistoryByDate); err != nil {
		return nil, err
	}
	return c.Do(ctx, http.MethodPost, "/betting/history/by-date-v2", req)
}

// BettingHistoryByID fetches betting history by record id.
func (c *Client) BettingHistoryByID(ctx context.Context, req ByIDRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/betting/history/by-id", req)
}

// TransactionHistoryByID fetches transaction history by record id.
func (c *Client) TransactionHistoryByID(ctx context.Context, req ByIDRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/transaction/history/by-id", req)
}

// BettingHistoryDetail fetches the detailed view of one bet.
func (c *Client) BettingHistoryDetail(ctx context.Context, req BettingHistoryDetailRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/betting/history/detail", req)
}

// SetUserRTP sets one user's RTP. The value is validated locally before any
// network call.
func (c *Client) SetUserRTP(ctx context.Context, req UserRTPRequest) (*Response, error) {
	if err := validateRTP(req.RTP); err != nil {
		return nil, err
	}
	return c.Do(ctx, http.MethodPost, "/game/user/set-rtp", req)
}

// GetUserRTP reads one user's RTP.
func (c *Client) GetUserRTP(ctx context.Context, req GetUserRTPRequest) (*Response, error) {
	return c.Do(ctx, http.MethodPost, "/game/user/get-rtp", req)
}

// ResetUsersRTP resets all of a vendor's users to one RTP, validated
// locally first.
func (c *Client) ResetUsersRTP(ctx context.Context, req ResetRTPRequest) (*Response, error) {
	if err := validateRTP(req.RTP); err != nil {
		return nil, err
	}
	return c.Do(ctx, http.MethodPost, "/game/users/reset-rtp", req)
}

// BatchRTP updates RTP for up to MaxBatchRTPEntries users. The list size
// and every RTP value are validated locally, and the endpoint's 1-per-3s
// budget is checked, before any network call.
func (c *Client) BatchRTP(ctx context.Context, req BatchRTPRequest) (*Response, error) {
	if len(req.Data) == 0 {
		return nil, &ValidationError{Message: "data must contain at least one entry"}
	}
	if len(req.Data) > MaxBatchRTPEntries {
		return nil, &ValidationError{
			Message: fmt.Sprintf("data exceeds the maximum of %d entries", MaxBatchRTPEntries),
		}
	}
	for i, entry := range req.Data {
		if err := validateRTP(entry.RTP); err != nil {
			return nil, &ValidationError{
				Message: fmt.Sprintf("entry %d: %s", i, err.Error()),
			}
		}
	}
	if err := c.allow(ctx, "game-api:batch-rtp", ratelimit.BatchRTP); err != nil {
		return nil, err
	}
	return c.Do(ctx, http.MethodPost, "/game/users/batch-rtp", req)
}

// allow consults the limiter when one is configured.
func (c *Client) allow(ctx context.Context, endpoint string, limit ratelimit.Limit) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Allow(ctx, endpoint, limit)
}

// validateRTP enforces the upstream's accepted RTP range.
func validateRTP(rtp int) error {
	if rtp < MinRTP || rtp > MaxRTP {
		return &ValidationError{
			Message: fmt.Sprintf("rtp must be between %d and %d, got %d", MinRTP, MaxRTP, rtp),
		}
	}
	return nil
}
