package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
	"github.com/xtremeprotocol/accrual-service/internal/core/ports"
)

// AccrualService credits time-based yield lazily, on every client sync.
type AccrualService struct {
	accounts ports.AccountRepository
	locker   ports.AccountLocker
	audit    ports.AuditRecorder
	rates    domain.RateSchedule
	logger   zerolog.Logger
	now      func() time.Time
}

func NewAccrualService(
	accounts ports.AccountRepository,
	locker ports.AccountLocker,
	audit ports.AuditRecorder,
	rates domain.RateSchedule,
	logger zerolog.Logger,
) *AccrualService {
	return &AccrualService{
		accounts: accounts,
		locker:   locker,
		audit:    audit,
		rates:    rates,
		logger:   logger,
		now:      storageClock,
	}
}

// Sync credits every whole period elapsed since the last checkpoint and
// reports progress towards the next one. Calling it twice inside the same
// period credits nothing the second time.
func (s *AccrualService) Sync(ctx context.Context, userID string) (*ports.SyncView, error) {
	if userID == "" {
		return nil, fmt.Errorf("sync: %w", domain.ErrAccountNotFound)
	}

	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sync: lock: %w", err)
	}
	defer unlock()

	account, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}

	now := s.now()
	res := s.rates.Accrue(account, now)

	if res.Periods > 0 {
		if err := s.accounts.CompareAndUpdate(ctx, account.Version, account); err != nil {
			return nil, fmt.Errorf("sync: persist: %w", err)
		}
		s.audit.Record(ctx, domain.AuditEvent{
			Type:      domain.AuditYieldHarvested,
			UserID:    userID,
			Details:   fmt.Sprintf("Generated yield: $%s over %d period(s)", res.Credited.StringFixed(2), res.Periods),
			Timestamp: now,
		})
		s.logger.Info().
			Str("user_id", userID).
			Int64("periods", res.Periods).
			Str("credited", res.Credited.StringFixed(2)).
			Msg("yield credited")
	}

	return &ports.SyncView{
		UserID:      account.ID,
		Balance:     account.Balance,
		Rate:        res.Rate,
		Periods:     res.Periods,
		Progress:    res.Progress,
		TimeToNext:  res.TimeToNext,
		NextSyncAt:  now.Add(res.TimeToNext),
		TotalEarned: account.TotalEarned(),
	}, nil
}
