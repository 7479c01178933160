package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
	"github.com/xtremeprotocol/accrual-service/internal/core/ports"
)

// Token roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// AuthService implements registration and login.
type AuthService struct {
	accounts       ports.AccountRepository
	audit          ports.AuditRecorder
	jwtSecret      string
	tokenTTL       time.Duration
	initialBalance decimal.Decimal
	logger         zerolog.Logger
	now            func() time.Time
	newID          func() string
}

// maxAccountIDAttempts bounds how often Register draws a fresh id after the
// store reports a collision.
const maxAccountIDAttempts = 5

func NewAuthService(
	accounts ports.AccountRepository,
	audit ports.AuditRecorder,
	jwtSecret string,
	tokenTTL time.Duration,
	initialBalance decimal.Decimal,
	logger zerolog.Logger,
) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{
		accounts:       accounts,
		audit:          audit,
		jwtSecret:      jwtSecret,
		tokenTTL:       tokenTTL,
		initialBalance: initialBalance,
		logger:         logger,
		now:            storageClock,
		newID:          newAccountID,
	}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (*domain.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("register: %w", domain.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	now := s.now()
	account := &domain.Account{
		Username:       username,
		PasswordHash:   string(hash),
		Balance:        s.initialBalance,
		TotalWithdrawn: decimal.Zero,
		LastSyncedAt:   now,
		Tier:           domain.TierStandard,
		CreatedAt:      now,
	}

	for attempt := 1; ; attempt++ {
		account.ID = s.newID()
		err = s.accounts.Create(ctx, account)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrAccountIDExists) || attempt == maxAccountIDAttempts {
			return nil, fmt.Errorf("register: %w", err)
		}
		s.logger.Warn().Str("user_id", account.ID).Int("attempt", attempt).Msg("account id collision, regenerating")
	}

	s.audit.Record(ctx, domain.AuditEvent{
		Type:      domain.AuditUserRegister,
		UserID:    account.ID,
		Details:   "Node initialized: " + username,
		Timestamp: now,
	})
	s.logger.Info().Str("user_id", account.ID).Str("username", username).Msg("account registered")
	return account, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", nil, fmt.Errorf("login: %w", domain.ErrInvalidInput)
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return "", nil, fmt.Errorf("login: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		s.audit.Record(ctx, domain.AuditEvent{
			Type:      domain.AuditAuthFailure,
			UserID:    account.ID,
			Details:   "Failed login for " + username,
			Timestamp: s.now(),
		})
		return "", nil, fmt.Errorf("login: %w", domain.ErrInvalidCredentials)
	}

	token, err := issueToken(s.jwtSecret, s.tokenTTL, jwt.MapClaims{
		"user_id":  account.ID,
		"username": account.Username,
		"role":     RoleUser,
	})
	if err != nil {
		return "", nil, fmt.Errorf("login: sign token: %w", err)
	}

	s.audit.Record(ctx, domain.AuditEvent{
		Type:      domain.AuditUserLogin,
		UserID:    account.ID,
		Details:   "Session established",
		Timestamp: s.now(),
	})
	return token, account, nil
}

func issueToken(secret string, ttl time.Duration, claims jwt.MapClaims) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	claims["exp"] = time.Now().Add(ttl).Unix()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}
