// Package memory is a process-local implementation of every persistence
// port. Transactions are emulated with an undo journal carried in the
// context: each write made inside WithinTransaction registers its inverse,
// and the inverses run in reverse order when the unit of work fails.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

type Store struct {
	mu        sync.RWMutex
	accounts  map[string]*domain.Account
	usernames map[string]string
	codes     map[string]*domain.OneTimeCode
	txs       map[string]*domain.Transaction
	audit     []*domain.AuditEvent
	idem      map[string]string
}

func NewStore() *Store {
	return &Store{
		accounts:  make(map[string]*domain.Account),
		usernames: make(map[string]string),
		codes:     make(map[string]*domain.OneTimeCode),
		txs:       make(map[string]*domain.Transaction),
		idem:      make(map[string]string),
	}
}

// AccountRepository implements ports.AccountRepository.
type AccountRepository struct{ s *Store }

// CodeRegistry implements ports.CodeRegistry.
type CodeRegistry struct{ s *Store }

// LedgerRepository implements ports.LedgerRepository.
type LedgerRepository struct{ s *Store }

// AuditRepository implements ports.AuditRepository.
type AuditRepository struct{ s *Store }

// IdempotencyStore implements ports.IdempotencyStore.
type IdempotencyStore struct{ s *Store }

func (s *Store) Accounts() *AccountRepository   { return &AccountRepository{s: s} }
func (s *Store) Codes() *CodeRegistry           { return &CodeRegistry{s: s} }
func (s *Store) Ledger() *LedgerRepository      { return &LedgerRepository{s: s} }
func (s *Store) Audit() *AuditRepository        { return &AuditRepository{s: s} }
func (s *Store) Idempotency() *IdempotencyStore { return &IdempotencyStore{s: s} }

type journalKey struct{}

type journal struct {
	undo []func()
}

// WithinTransaction implements ports.Transactor. Nested calls join the
// outermost unit of work.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}

	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		s.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// onRollback must be called with s.mu held.
func (s *Store) onRollback(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

// Ping lets the store take part in readiness checks.
func (s *Store) Ping(context.Context) error { return nil }

// ── Accounts ──────────────────────────────────────────────────────────────────

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usernames[account.Username]; taken {
		return domain.ErrUsernameTaken
	}
	if _, exists := s.accounts[account.ID]; exists {
		return domain.ErrAccountIDExists
	}

	account.Version = 1
	s.accounts[account.ID] = account.Clone()
	s.usernames[account.Username] = account.ID
	s.onRollback(ctx, func() {
		delete(s.accounts, account.ID)
		delete(s.usernames, account.Username)
	})
	return nil
}

func (r *AccountRepository) Get(_ context.Context, id string) (*domain.Account, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	s := r.s
	s.mu.RLock()
	id, ok := s.usernames[username]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return r.Get(ctx, id)
}

func (r *AccountRepository) CompareAndUpdate(ctx context.Context, expectedVersion int64, account *domain.Account) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.accounts[account.ID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if prev.Version != expectedVersion {
		return domain.ErrVersionConflict
	}

	next := account.Clone()
	next.Version = expectedVersion + 1
	s.accounts[account.ID] = next
	if prev.Username != next.Username {
		delete(s.usernames, prev.Username)
		s.usernames[next.Username] = next.ID
	}
	account.Version = next.Version

	s.onRollback(ctx, func() {
		delete(s.usernames, next.Username)
		s.accounts[prev.ID] = prev
		s.usernames[prev.Username] = prev.ID
	})
	return nil
}

func (r *AccountRepository) List(_ context.Context) ([]*domain.Account, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	delete(s.accounts, id)
	delete(s.usernames, prev.Username)
	s.onRollback(ctx, func() {
		s.accounts[id] = prev
		s.usernames[prev.Username] = id
	})
	return nil
}

func (r *AccountRepository) Stats(_ context.Context) (*domain.AccountStats, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.AccountStats{TotalLiability: decimal.Zero, TotalPaid: decimal.Zero}
	for _, a := range s.accounts {
		stats.TotalUsers++
		stats.TotalLiability = stats.TotalLiability.Add(a.Balance)
		stats.TotalPaid = stats.TotalPaid.Add(a.TotalWithdrawn)
	}
	return stats, nil
}

// ── Codes ─────────────────────────────────────────────────────────────────────

func (r *CodeRegistry) Issue(ctx context.Context, code *domain.OneTimeCode) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[code.Value]; exists {
		return domain.ErrCodeExists
	}
	c := *code
	s.codes[code.Value] = &c
	s.onRollback(ctx, func() { delete(s.codes, code.Value) })
	return nil
}

func (r *CodeRegistry) TryConsume(ctx context.Context, value, userID string, now time.Time) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[value]
	if !ok || !c.Redeemable(now) {
		return false, nil
	}

	prev := *c
	consumedAt := now
	c.Status = domain.CodeConsumed
	c.ConsumedBy = userID
	c.ConsumedAt = &consumedAt
	s.onRollback(ctx, func() { *s.codes[value] = prev })
	return true, nil
}

// Code returns a copy of the stored code.
func (r *CodeRegistry) Code(value string) (*domain.OneTimeCode, bool) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.codes[value]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// ── Ledger ────────────────────────────────────────────────────────────────────

func (r *LedgerRepository) Append(ctx context.Context, tx *domain.Transaction) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txs[tx.ID]; exists {
		return fmt.Errorf("append transaction %s: duplicate id", tx.ID)
	}
	t := *tx
	s.txs[tx.ID] = &t
	s.onRollback(ctx, func() { delete(s.txs, tx.ID) })
	return nil
}

func (r *LedgerRepository) Get(_ context.Context, id string) (*domain.Transaction, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.txs[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *LedgerRepository) ListByUser(_ context.Context, userID string) ([]*domain.Transaction, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Transaction
	for _, t := range s.txs {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ── Audit ─────────────────────────────────────────────────────────────────────

func (r *AuditRepository) Insert(_ context.Context, event *domain.AuditEvent) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *event
	s.audit = append(s.audit, &e)
	return nil
}

func (r *AuditRepository) List(_ context.Context, limit int) ([]*domain.AuditEvent, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.AuditEvent, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		e := *s.audit[i]
		out = append(out, &e)
	}
	return out, nil
}

func (r *AuditRepository) Clear(_ context.Context) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = nil
	return nil
}

// ── Idempotency ───────────────────────────────────────────────────────────────

func (r *IdempotencyStore) Lookup(_ context.Context, key string) (string, bool, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	txID, ok := s.idem[key]
	return txID, ok, nil
}

func (r *IdempotencyStore) Remember(_ context.Context, key, txID string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.idem[key] = txID
	return nil
}
