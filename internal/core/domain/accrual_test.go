package domain

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testSchedule() RateSchedule {
	return RateSchedule{
		Base:      decimal.RequireFromString("1.00"),
		Withdrawn: decimal.RequireFromString("5.00"),
		Elevated:  decimal.RequireFromString("12.50"),
		Period:    24 * time.Hour,
	}
}

func TestRateSchedule_RateFor(t *testing.T) {
	s := testSchedule()
	cases := []struct {
		name string
		acc  Account
		want string
	}{
		{"base", Account{Tier: TierStandard}, "1"},
		{"withdrawn", Account{Tier: TierStandard, TotalWithdrawn: decimal.NewFromInt(1)}, "5"},
		{"elevated wins", Account{Tier: TierElevated, TotalWithdrawn: decimal.NewFromInt(1)}, "12.5"},
		{"elevated without withdrawals", Account{Tier: TierElevated}, "12.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := s.RateFor(&tc.acc)
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("expected rate %s, got %s", tc.want, got)
			}
		})
	}
}

func TestRateSchedule_Accrue_AdvancesByWholePeriods(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	acc := &Account{Balance: decimal.RequireFromString("1.00"), LastSyncedAt: t0, Tier: TierStandard}

	res := testSchedule().Accrue(acc, t0.Add(25*time.Hour))

	if res.Periods != 1 {
		t.Fatalf("expected 1 period, got %d", res.Periods)
	}
	if !acc.Balance.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("expected balance 2.00, got %s", acc.Balance)
	}
	if !acc.LastSyncedAt.Equal(t0.Add(24 * time.Hour)) {
		t.Fatalf("expected checkpoint t0+24h, got %s", acc.LastSyncedAt)
	}
	if math.Abs(res.Progress-4.1666) > 0.01 {
		t.Fatalf("expected progress ~4.17, got %f", res.Progress)
	}
	if res.TimeToNext != 23*time.Hour {
		t.Fatalf("expected 23h to next period, got %s", res.TimeToNext)
	}
}

func TestRateSchedule_Accrue_MultiplePeriodsKeepRemainder(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	acc := &Account{Balance: decimal.Zero, LastSyncedAt: t0, TotalWithdrawn: decimal.NewFromInt(3)}

	res := testSchedule().Accrue(acc, t0.Add(73*time.Hour+30*time.Minute))

	if res.Periods != 3 {
		t.Fatalf("expected 3 periods, got %d", res.Periods)
	}
	if !res.Credited.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected 15 credited at withdrawn rate, got %s", res.Credited)
	}
	if !acc.LastSyncedAt.Equal(t0.Add(72 * time.Hour)) {
		t.Fatalf("checkpoint must advance by whole periods only, got %s", acc.LastSyncedAt)
	}
}

func TestRateSchedule_Accrue_WithinPeriodIsNoop(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	acc := &Account{Balance: decimal.NewFromInt(2), LastSyncedAt: t0}

	first := testSchedule().Accrue(acc, t0.Add(5*time.Hour))
	second := testSchedule().Accrue(acc, t0.Add(6*time.Hour))

	if first.Periods != 0 || second.Periods != 0 {
		t.Fatalf("expected no periods, got %d and %d", first.Periods, second.Periods)
	}
	if !acc.Balance.Equal(decimal.NewFromInt(2)) || !acc.LastSyncedAt.Equal(t0) {
		t.Fatalf("account must be untouched, got %s at %s", acc.Balance, acc.LastSyncedAt)
	}
	if second.Progress < first.Progress {
		t.Fatalf("progress went backwards: %f then %f", first.Progress, second.Progress)
	}
}

func TestRateSchedule_Accrue_ClockSkew(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	acc := &Account{Balance: decimal.NewFromInt(1), LastSyncedAt: t0}

	res := testSchedule().Accrue(acc, t0.Add(-time.Hour))

	if res.Periods != 0 || res.Progress != 0 {
		t.Fatalf("expected zero accrual for a checkpoint in the future, got %+v", res)
	}
	if !acc.Balance.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("balance changed: %s", acc.Balance)
	}
}

func TestAccount_Debit(t *testing.T) {
	acc := &Account{Balance: decimal.NewFromInt(2)}

	if err := acc.Debit(decimal.NewFromInt(5)); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := acc.Debit(decimal.Zero); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := acc.Debit(decimal.NewFromInt(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acc.Balance.Equal(decimal.NewFromInt(1)) || !acc.TotalWithdrawn.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("unexpected state: balance=%s withdrawn=%s", acc.Balance, acc.TotalWithdrawn)
	}
}
