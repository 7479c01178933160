package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
	"github.com/xtremeprotocol/accrual-service/internal/core/ports"
)

const (
	defaultAuditLimit = 100
	maxCodeAttempts   = 5
)

// AdminCredentials are the master credentials accepted by Authenticate.
type AdminCredentials struct {
	Username string
	Password string
}

// AdminService is the privileged surface. Its writes bypass the accrual
// math but still take the per-account lock.
type AdminService struct {
	accounts  ports.AccountRepository
	codes     ports.CodeRegistry
	auditLog  ports.AuditRepository
	audit     ports.AuditRecorder
	locker    ports.AccountLocker
	creds     AdminCredentials
	jwtSecret string
	tokenTTL  time.Duration
	codeTTL   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAdminService wires the admin surface. A zero codeTTL issues codes that
// never expire.
func NewAdminService(
	accounts ports.AccountRepository,
	codes ports.CodeRegistry,
	auditLog ports.AuditRepository,
	audit ports.AuditRecorder,
	locker ports.AccountLocker,
	creds AdminCredentials,
	jwtSecret string,
	tokenTTL time.Duration,
	codeTTL time.Duration,
	logger zerolog.Logger,
) *AdminService {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &AdminService{
		accounts:  accounts,
		codes:     codes,
		auditLog:  auditLog,
		audit:     audit,
		locker:    locker,
		creds:     creds,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		codeTTL:   codeTTL,
		logger:    logger,
		now:       storageClock,
	}
}

// Authenticate checks the master credentials and returns an admin token.
func (s *AdminService) Authenticate(ctx context.Context, username, password string) (string, error) {
	if s.creds.Username == "" || s.creds.Password == "" || !matches(username, s.creds.Username) || !matches(password, s.creds.Password) {
		s.audit.Record(ctx, domain.AuditEvent{
			Type:      domain.AuditAdminAccessDenied,
			UserID:    domain.SystemUserID,
			Details:   "Failed login attempt as: " + username,
			Timestamp: s.now(),
		})
		return "", fmt.Errorf("admin auth: %w", domain.ErrInvalidCredentials)
	}

	token, err := issueToken(s.jwtSecret, s.tokenTTL, jwt.MapClaims{
		"username": username,
		"role":     RoleAdmin,
	})
	if err != nil {
		return "", fmt.Errorf("admin auth: sign token: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEvent{
		Type:      domain.AuditAdminLogin,
		UserID:    domain.SystemUserID,
		Details:   "Master Admin access granted",
		Timestamp: s.now(),
	})
	return token, nil
}

func matches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// IssueCode generates and stores a fresh activation code, retrying on the
// rare value collision.
func (s *AdminService) IssueCode(ctx context.Context) (*domain.OneTimeCode, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		value, err := newActivationCode()
		if err != nil {
			return nil, fmt.Errorf("issue code: %w", err)
		}

		now := s.now()
		code := &domain.OneTimeCode{
			Value:     value,
			Status:    domain.CodeActive,
			CreatedAt: now,
		}
		if s.codeTTL > 0 {
			expires := now.Add(s.codeTTL)
			code.ExpiresAt = &expires
		}

		err = s.codes.Issue(ctx, code)
		if errors.Is(err, domain.ErrCodeExists) {
			s.logger.Warn().Int("attempt", attempt+1).Msg("activation code collision, regenerating")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("issue code: %w", err)
		}

		s.audit.Record(ctx, domain.AuditEvent{
			Type:      domain.AuditAdminCodeIssued,
			UserID:    domain.SystemUserID,
			Details:   "Issued activation code " + value,
			Timestamp: now,
		})
		return code, nil
	}
	return nil, fmt.Errorf("issue code: %w after %d attempts", domain.ErrCodeExists, maxCodeAttempts)
}

func (s *AdminService) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccount overwrites balance, verification and tier. An empty tier
// keeps the current one; an empty password keeps the current credentials.
func (s *AdminService) UpdateAccount(ctx context.Context, in ports.UpdateAccountInput) (*domain.Account, error) {
	if in.ID == "" || (in.Balance != nil && in.Balance.IsNegative()) {
		return nil, fmt.Errorf("update account: %w", domain.ErrInvalidInput)
	}
	if in.Tier != "" && !in.Tier.Valid() {
		return nil, fmt.Errorf("update account: %w (unknown tier %q)", domain.ErrInvalidInput, in.Tier)
	}

	unlock, err := s.locker.Lock(ctx, in.ID)
	if err != nil {
		return nil, fmt.Errorf("update account: lock: %w", err)
	}
	defer unlock()

	account, err := s.accounts.Get(ctx, in.ID)
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	if in.Balance != nil {
		account.Balance = *in.Balance
	}
	if in.Verified != nil {
		account.Verified = *in.Verified
	}
	if in.Tier != "" {
		account.Tier = in.Tier
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("update account: hash password: %w", err)
		}
		account.PasswordHash = string(hash)
	}

	if err := s.accounts.CompareAndUpdate(ctx, account.Version, account); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEvent{
		Type:      domain.AuditAdminAccountUpdated,
		UserID:    account.ID,
		Details:   fmt.Sprintf("balance=%s verified=%t tier=%s", account.Balance.StringFixed(2), account.Verified, account.Tier),
		Timestamp: s.now(),
	})
	s.logger.Info().Str("user_id", account.ID).Msg("account updated by admin")
	return account, nil
}

func (s *AdminService) DeleteAccount(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete account: %w", domain.ErrInvalidInput)
	}

	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("delete account: lock: %w", err)
	}
	defer unlock()

	if err := s.accounts.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEvent{
		Type:      domain.AuditAdminAccountDeleted,
		UserID:    id,
		Details:   "Account removed",
		Timestamp: s.now(),
	})
	s.logger.Info().Str("user_id", id).Msg("account deleted by admin")
	return nil
}

func (s *AdminService) Stats(ctx context.Context) (*domain.AccountStats, error) {
	stats, err := s.accounts.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

// ListAuditEvents returns the most recent events; limit <= 0 means 100.
func (s *AdminService) ListAuditEvents(ctx context.Context, limit int) ([]*domain.AuditEvent, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	events, err := s.auditLog.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}

func (s *AdminService) ClearAuditEvents(ctx context.Context) error {
	if err := s.auditLog.Clear(ctx); err != nil {
		return fmt.Errorf("clear audit events: %w", err)
	}
	return nil
}
