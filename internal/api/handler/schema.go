package handler

import (
	"time"

	"github.com/shopspring/decimal"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// --- Accounts ---

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

type registerResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Success    bool   `json:"success"`
	UserID     string `json:"userId"`
	IsVerified bool   `json:"isVerified"`
	Balance    string `json:"balance"`
	Username   string `json:"username"`
	Tier       string `json:"tier"`
	Token      string `json:"token"`
}

// --- Rewards ---

type syncRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type syncResponse struct {
	Balance         string    `json:"balance"`
	Progress        float64   `json:"progress"`
	NextSync        string    `json:"nextSync"` // hours until the next credit
	NextSyncAt      time.Time `json:"nextSyncAt"`
	Rate            string    `json:"rate"`
	PeriodsCredited int64     `json:"periodsCredited"`
	TotalEarned     string    `json:"totalEarned"`
}

type verifyCodeRequest struct {
	Code   string `json:"code"   validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type withdrawRequest struct {
	UserID  string          `json:"userId"  validate:"required"`
	Address string          `json:"address" validate:"required"`
	Amount  decimal.Decimal `json:"amount"  validate:"gt=0" swaggertype:"string" example:"25.00"`
}

type withdrawResponse struct {
	Success  bool   `json:"success"`
	TxID     string `json:"txId"`
	Message  string `json:"message"`
	Amount   string `json:"amount"`
	Balance  string `json:"balance"`
	Status   string `json:"status"`
	Replayed bool   `json:"replayed,omitempty"`
}

type transactionResponse struct {
	TxID      string    `json:"tx_id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Amount    string    `json:"amount"`
	Address   string    `json:"address"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// --- Admin ---

type adminAuthRequest struct {
	User string `json:"user" validate:"required"`
	Pass string `json:"pass" validate:"required"`
}

type adminAuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

type accountResponse struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Balance        string    `json:"balance"`
	TotalWithdrawn string    `json:"total_withdrawn"`
	LastSync       time.Time `json:"last_sync"`
	IsVerified     bool      `json:"is_verified"`
	Tier           string    `json:"tier"`
	CreatedAt      time.Time `json:"created_at"`
}

type generateCodeResponse struct {
	Success   bool       `json:"success"`
	Code      string     `json:"code"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type updateUserRequest struct {
	ID         string           `json:"id"          validate:"required"`
	Balance    *decimal.Decimal `json:"balance"     swaggertype:"string" example:"100.00"`
	IsVerified *bool            `json:"is_verified"`
	Tier       string           `json:"tier"        validate:"omitempty,oneof=standard elevated"`
	Password   string           `json:"password"`
}

type updateUserResponse struct {
	Success bool            `json:"success"`
	User    accountResponse `json:"user"`
}

type deleteUserRequest struct {
	ID string `json:"id" validate:"required"`
}

type auditEventResponse struct {
	EventType string    `json:"event_type"`
	UserID    string    `json:"user_id"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

type statsResponse struct {
	TotalUsers     int64  `json:"totalUsers"`
	TotalLiability string `json:"totalLiability"`
	TotalPaid      string `json:"totalPaid"`
}
