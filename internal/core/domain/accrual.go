package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateSchedule holds the per-period credit rates and the period length.
type RateSchedule struct {
	Base      decimal.Decimal // R1: never withdrawn, standard tier
	Withdrawn decimal.Decimal // R2: has withdrawn at least once
	Elevated  decimal.Decimal // R3: elevated tier, wins over everything
	Period    time.Duration
}

// RateFor picks the rate for a, highest-priority match first.
func (s RateSchedule) RateFor(a *Account) decimal.Decimal {
	switch {
	case a.Tier == TierElevated:
		return s.Elevated
	case a.TotalWithdrawn.IsPositive():
		return s.Withdrawn
	default:
		return s.Base
	}
}

// Accrual is the outcome of applying the schedule to an account at a point
// in time.
type Accrual struct {
	Periods    int64
	Rate       decimal.Decimal
	Credited   decimal.Decimal
	Checkpoint time.Time
	// Progress is the elapsed fraction of the current period, in percent.
	Progress   float64
	TimeToNext time.Duration
}

// Accrue credits every whole period elapsed since the account's checkpoint
// and advances the checkpoint by exactly those periods, so the fractional
// remainder carries over to the next call.
func (s RateSchedule) Accrue(a *Account, now time.Time) Accrual {
	rate := s.RateFor(a)
	elapsed := now.Sub(a.LastSyncedAt)
	if elapsed < 0 || s.Period <= 0 {
		elapsed = 0
	}

	var periods int64
	var remainder time.Duration
	if s.Period > 0 {
		periods = int64(elapsed / s.Period)
		remainder = elapsed % s.Period
	}

	res := Accrual{
		Periods:    periods,
		Rate:       rate,
		Credited:   decimal.Zero,
		Checkpoint: a.LastSyncedAt,
		TimeToNext: s.Period - remainder,
	}
	if s.Period > 0 {
		res.Progress = float64(remainder) / float64(s.Period) * 100
	}

	if periods >= 1 {
		res.Credited = rate.Mul(decimal.NewFromInt(periods))
		res.Checkpoint = a.LastSyncedAt.Add(time.Duration(periods) * s.Period)
		a.Balance = a.Balance.Add(res.Credited)
		a.LastSyncedAt = res.Checkpoint
	}
	return res
}
