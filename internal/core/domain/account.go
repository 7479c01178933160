package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier selects the accrual rate of an account.
type Tier string

const (
	TierStandard Tier = "standard"
	TierElevated Tier = "elevated"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierStandard || t == TierElevated
}

// Account is the aggregate root owned by the accrual, activation and
// withdrawal engines.
type Account struct {
	ID             string          `json:"id"`
	Username       string          `json:"username"`
	PasswordHash   string          `json:"-"`
	Balance        decimal.Decimal `json:"balance"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	LastSyncedAt   time.Time       `json:"last_synced_at"`
	Verified       bool            `json:"is_verified"`
	Tier           Tier            `json:"tier"`
	CreatedAt      time.Time       `json:"created_at"`
	// Version is bumped by the store on every successful CompareAndUpdate.
	Version int64 `json:"version"`
}

// Clone returns a copy that shares no mutable state with a.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// Debit subtracts amount from the balance and adds it to the withdrawn total.
func (a *Account) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidInput
	}
	if amount.GreaterThan(a.Balance) {
		return ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	a.TotalWithdrawn = a.TotalWithdrawn.Add(amount)
	return nil
}

// TotalEarned is everything the account has ever accrued, withdrawn or not.
func (a *Account) TotalEarned() decimal.Decimal {
	return a.Balance.Add(a.TotalWithdrawn)
}

// AccountStats aggregates liability figures across all accounts.
type AccountStats struct {
	TotalUsers     int64           `json:"totalUsers"`
	TotalLiability decimal.Decimal `json:"totalLiability"`
	TotalPaid      decimal.Decimal `json:"totalPaid"`
}
