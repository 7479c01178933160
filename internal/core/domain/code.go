package domain

import "time"

// CodeStatus is the lifecycle state of a one-time activation code.
type CodeStatus string

const (
	CodeActive   CodeStatus = "active"
	CodeConsumed CodeStatus = "consumed"
)

// OneTimeCode is a single-use activation token issued by an administrator.
type OneTimeCode struct {
	Value      string     `json:"code"`
	Status     CodeStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ConsumedBy string     `json:"consumed_by,omitempty"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// Redeemable reports whether the code can still be consumed at now.
func (c *OneTimeCode) Redeemable(now time.Time) bool {
	if c.Status != CodeActive {
		return false
	}
	return c.ExpiresAt == nil || now.Before(*c.ExpiresAt)
}
