package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
	"github.com/xtremeprotocol/accrual-service/internal/core/ports"
)

// ActivationService verifies accounts by redeeming one-time codes.
type ActivationService struct {
	accounts ports.AccountRepository
	codes    ports.CodeRegistry
	tx       ports.Transactor
	locker   ports.AccountLocker
	audit    ports.AuditRecorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewActivationService(
	accounts ports.AccountRepository,
	codes ports.CodeRegistry,
	tx ports.Transactor,
	locker ports.AccountLocker,
	audit ports.AuditRecorder,
	logger zerolog.Logger,
) *ActivationService {
	return &ActivationService{
		accounts: accounts,
		codes:    codes,
		tx:       tx,
		locker:   locker,
		audit:    audit,
		logger:   logger,
		now:      storageClock,
	}
}

// Activate consumes code on behalf of userID and marks the account verified.
// The code flip and the account update commit together or not at all. An
// already verified account is rejected before the code is touched.
func (s *ActivationService) Activate(ctx context.Context, code, userID string) (*ports.ActivationResult, error) {
	code = strings.TrimSpace(code)
	if code == "" || userID == "" {
		return nil, fmt.Errorf("activate: %w", domain.ErrInvalidInput)
	}

	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("activate: lock: %w", err)
	}
	defer unlock()

	account, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}
	if account.Verified {
		return nil, fmt.Errorf("activate: %w", domain.ErrAlreadyVerified)
	}

	now := s.now()
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		ok, err := s.codes.TryConsume(ctx, code, userID, now)
		if err != nil {
			return fmt.Errorf("consume code: %w", err)
		}
		if !ok {
			return domain.ErrCodeInvalid
		}

		account.Verified = true
		if err := s.accounts.CompareAndUpdate(ctx, account.Version, account); err != nil {
			return fmt.Errorf("mark verified: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("activation rejected")
		return nil, fmt.Errorf("activate: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEvent{
		Type:      domain.AuditNodeActivated,
		UserID:    userID,
		Details:   "Verified via OTC: " + code,
		Timestamp: now,
	})
	s.logger.Info().Str("user_id", userID).Msg("account activated")

	return &ports.ActivationResult{UserID: userID, ActivatedAt: now}, nil
}
