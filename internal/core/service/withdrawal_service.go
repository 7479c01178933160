package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
	"github.com/xtremeprotocol/accrual-service/internal/core/ports"
)

const defaultNotifyTimeout = 10 * time.Second

// WithdrawalPolicy holds the tunable withdrawal rules.
type WithdrawalPolicy struct {
	// MinAmount rejects smaller withdrawals; zero disables the check.
	MinAmount           decimal.Decimal
	NotifyTimeout       time.Duration
	RequireVerification bool
}

// WithdrawalService debits balances into the append-only ledger once the
// withdrawal notification has been delivered.
type WithdrawalService struct {
	accounts ports.AccountRepository
	ledger   ports.LedgerRepository
	tx       ports.Transactor
	locker   ports.AccountLocker
	notifier ports.Notifier
	idem     ports.IdempotencyStore
	audit    ports.AuditRecorder
	policy   WithdrawalPolicy
	logger   zerolog.Logger
	now      func() time.Time
}

// NewWithdrawalService wires the ledger. idem may be nil, in which case
// Idempotency-Key headers are ignored.
func NewWithdrawalService(
	accounts ports.AccountRepository,
	ledger ports.LedgerRepository,
	tx ports.Transactor,
	locker ports.AccountLocker,
	notifier ports.Notifier,
	idem ports.IdempotencyStore,
	audit ports.AuditRecorder,
	policy WithdrawalPolicy,
	logger zerolog.Logger,
) *WithdrawalService {
	if policy.NotifyTimeout <= 0 {
		policy.NotifyTimeout = defaultNotifyTimeout
	}
	return &WithdrawalService{
		accounts: accounts,
		ledger:   ledger,
		tx:       tx,
		locker:   locker,
		notifier: notifier,
		idem:     idem,
		audit:    audit,
		policy:   policy,
		logger:   logger,
		now:      storageClock,
	}
}

// Withdraw validates the request, notifies the operator, then commits the
// debit and the pending ledger entry in one transaction. A failed or timed
// out notification leaves the account untouched.
func (s *WithdrawalService) Withdraw(ctx context.Context, in ports.WithdrawInput) (*ports.TxReceipt, error) {
	in.Destination = strings.TrimSpace(in.Destination)
	if in.UserID == "" || in.Destination == "" || !in.Amount.IsPositive() {
		return nil, fmt.Errorf("withdraw: %w", domain.ErrInvalidInput)
	}
	if s.policy.MinAmount.IsPositive() && in.Amount.LessThan(s.policy.MinAmount) {
		return nil, fmt.Errorf("withdraw: %w (minimum %s)", domain.ErrBelowMinimum, s.policy.MinAmount.StringFixed(2))
	}

	unlock, err := s.locker.Lock(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("withdraw: lock: %w", err)
	}
	defer unlock()

	idemKey := s.idempotencyKey(in)
	if idemKey != "" {
		receipt, err := s.replay(ctx, idemKey, in)
		if err != nil {
			return nil, fmt.Errorf("withdraw: %w", err)
		}
		if receipt != nil {
			return receipt, nil
		}
	}

	account, err := s.accounts.Get(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	if s.policy.RequireVerification && !account.Verified {
		return nil, fmt.Errorf("withdraw: %w", domain.ErrNotVerified)
	}
	if in.Amount.GreaterThan(account.Balance) {
		return nil, fmt.Errorf("withdraw: %w", domain.ErrInsufficientFunds)
	}

	now := s.now()
	if err := s.notify(ctx, domain.WithdrawalRequested{
		UserID:      account.ID,
		Username:    account.Username,
		Amount:      in.Amount,
		Destination: in.Destination,
		RequestedAt: now,
	}); err != nil {
		s.logger.Error().Err(err).Str("user_id", in.UserID).Msg("withdrawal notification failed")
		return nil, fmt.Errorf("withdraw: %w: %v", domain.ErrNotificationFailed, err)
	}

	entry := &domain.Transaction{
		ID:          newTxID(),
		UserID:      account.ID,
		Type:        domain.TransactionWithdrawal,
		Amount:      in.Amount,
		Destination: in.Destination,
		Status:      domain.TransactionPending,
		CreatedAt:   now,
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := account.Debit(in.Amount); err != nil {
			return err
		}
		if err := s.accounts.CompareAndUpdate(ctx, account.Version, account); err != nil {
			return fmt.Errorf("debit account: %w", err)
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			return fmt.Errorf("append ledger: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", in.UserID).Msg("withdrawal commit failed after notification")
		return nil, fmt.Errorf("withdraw: %w", err)
	}

	if idemKey != "" {
		if err := s.idem.Remember(ctx, idemKey, entry.ID); err != nil {
			s.logger.Warn().Err(err).Str("tx_id", entry.ID).Msg("failed to store idempotency key")
		}
	}

	s.audit.Record(ctx, domain.AuditEvent{
		Type:      domain.AuditWithdrawInitiated,
		UserID:    account.ID,
		Details:   fmt.Sprintf("TXID: %s - Amount: $%s", entry.ID, in.Amount.StringFixed(2)),
		Timestamp: now,
	})
	s.logger.Info().
		Str("user_id", account.ID).
		Str("tx_id", entry.ID).
		Str("amount", in.Amount.StringFixed(2)).
		Msg("withdrawal recorded")

	return &ports.TxReceipt{
		TxID:      entry.ID,
		Amount:    entry.Amount,
		Balance:   account.Balance,
		Status:    entry.Status,
		CreatedAt: entry.CreatedAt,
	}, nil
}

// History lists the user's ledger entries, newest first.
func (s *WithdrawalService) History(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("history: %w", domain.ErrInvalidInput)
	}
	txs, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return txs, nil
}

// notify bounds the notifier call by the policy timeout even when the
// notifier ignores its context.
func (s *WithdrawalService) notify(ctx context.Context, event domain.WithdrawalRequested) error {
	ctx, cancel := context.WithTimeout(ctx, s.policy.NotifyTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.notifier.Notify(ctx, event) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *WithdrawalService) idempotencyKey(in ports.WithdrawInput) string {
	if s.idem == nil || in.IdempotencyKey == "" {
		return ""
	}
	return in.UserID + ":" + in.IdempotencyKey
}

// replay returns the receipt of the withdrawal already recorded under key,
// or nil when the request should be processed normally. Reusing a key for a
// different amount or destination is rejected.
func (s *WithdrawalService) replay(ctx context.Context, key string, in ports.WithdrawInput) (*ports.TxReceipt, error) {
	userID := in.UserID
	txID, found, err := s.idem.Lookup(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("idempotency lookup failed, processing anyway")
		return nil, nil
	}
	if !found {
		return nil, nil
	}

	entry, err := s.ledger.Get(ctx, txID)
	if err != nil {
		s.logger.Warn().Err(err).Str("tx_id", txID).Msg("idempotency key points at missing transaction")
		return nil, nil
	}
	if !entry.Amount.Equal(in.Amount) || entry.Destination != in.Destination {
		return nil, fmt.Errorf("%w: idempotency key %q already used for a different withdrawal", domain.ErrInvalidInput, in.IdempotencyKey)
	}
	account, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, nil
	}

	s.logger.Info().Str("user_id", userID).Str("tx_id", txID).Msg("idempotent replay")
	return &ports.TxReceipt{
		TxID:      entry.ID,
		Amount:    entry.Amount,
		Balance:   account.Balance,
		Status:    entry.Status,
		CreatedAt: entry.CreatedAt,
		Replayed:  true,
	}, nil
}
