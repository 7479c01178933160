package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
	"github.com/xtremeprotocol/accrual-service/internal/core/ports"
	"github.com/xtremeprotocol/accrual-service/internal/infrastructure/db/memory"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubNotifier struct {
	err error
	// hang blocks until release is closed, ignoring ctx.
	hang    bool
	release chan struct{}

	mu     sync.Mutex
	events []domain.WithdrawalRequested
}

func (n *stubNotifier) Notify(_ context.Context, e domain.WithdrawalRequested) error {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
	if n.hang {
		<-n.release
	}
	return n.err
}

func (n *stubNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type withdrawFixture struct {
	store    *memory.Store
	notifier *stubNotifier
	audit    *recordingAudit
	svc      *WithdrawalService
}

func newWithdrawFixture(t *testing.T, balance string, policy WithdrawalPolicy) *withdrawFixture {
	t.Helper()
	f := &withdrawFixture{
		store:    memory.NewStore(),
		notifier: &stubNotifier{},
		audit:    &recordingAudit{},
	}
	seedAccount(t, f.store, "xtr_1", func(a *domain.Account) { a.Balance = dec(balance) })
	f.svc = NewWithdrawalService(
		f.store.Accounts(), f.store.Ledger(), f.store, &stubLocker{},
		f.notifier, f.store.Idempotency(), f.audit, policy, zerolog.Nop(),
	)
	f.svc.now = func() time.Time { return t0.Add(time.Hour) }
	return f
}

func (f *withdrawFixture) account(t *testing.T) *domain.Account {
	t.Helper()
	a, err := f.store.Accounts().Get(context.Background(), "xtr_1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return a
}

func (f *withdrawFixture) ledger(t *testing.T) []*domain.Transaction {
	t.Helper()
	txs, err := f.store.Ledger().ListByUser(context.Background(), "xtr_1")
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	return txs
}

// ---------------------------------------------------------------------------
// Withdraw
// ---------------------------------------------------------------------------

func TestWithdrawalService_Withdraw_Success(t *testing.T) {
	f := newWithdrawFixture(t, "10.00", WithdrawalPolicy{})

	receipt, err := f.svc.Withdraw(context.Background(), ports.WithdrawInput{
		UserID: "xtr_1", Destination: " wallet-abc ", Amount: dec("4.00"),
	})
	if err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}
	if !strings.HasPrefix(receipt.TxID, "TX_") || len(receipt.TxID) != 15 {
		t.Fatalf("unexpected tx id: %q", receipt.TxID)
	}
	if receipt.Status != domain.TransactionPending || !receipt.Balance.Equal(dec("6.00")) {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	acc := f.account(t)
	if !acc.Balance.Equal(dec("6.00")) || !acc.TotalWithdrawn.Equal(dec("4.00")) {
		t.Fatalf("unexpected account after withdraw: balance %s withdrawn %s", acc.Balance, acc.TotalWithdrawn)
	}

	txs := f.ledger(t)
	if len(txs) != 1 || txs[0].ID != receipt.TxID || txs[0].Destination != "wallet-abc" {
		t.Fatalf("unexpected ledger: %+v", txs)
	}
	if f.notifier.calls() != 1 || f.notifier.events[0].Username != "user-xtr_1" {
		t.Fatalf("expected one notification, got %+v", f.notifier.events)
	}
	if !f.audit.has(domain.AuditWithdrawInitiated) {
		t.Fatalf("expected WITHDRAW_INITIATED audit event")
	}

	if !testRates().RateFor(acc).Equal(dec("5.00")) {
		t.Fatalf("a withdrawn account must accrue at the withdrawn rate")
	}
}

func TestWithdrawalService_Withdraw_FullBalance(t *testing.T) {
	f := newWithdrawFixture(t, "2.50", WithdrawalPolicy{})

	if _, err := f.svc.Withdraw(context.Background(), ports.WithdrawInput{UserID: "xtr_1", Destination: "w", Amount: dec("2.50")}); err != nil {
		t.Fatalf("withdrawing the whole balance must succeed: %v", err)
	}
	if !f.account(t).Balance.IsZero() {
		t.Fatalf("expected zero balance")
	}
}

func TestWithdrawalService_Withdraw_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		policy WithdrawalPolicy
		in     ports.WithdrawInput
		want   error
	}{
		{"missing user", WithdrawalPolicy{}, ports.WithdrawInput{Destination: "w", Amount: dec("1")}, domain.ErrInvalidInput},
		{"blank destination", WithdrawalPolicy{}, ports.WithdrawInput{UserID: "xtr_1", Destination: "  ", Amount: dec("1")}, domain.ErrInvalidInput},
		{"zero amount", WithdrawalPolicy{}, ports.WithdrawInput{UserID: "xtr_1", Destination: "w", Amount: dec("0")}, domain.ErrInvalidInput},
		{"negative amount", WithdrawalPolicy{}, ports.WithdrawInput{UserID: "xtr_1", Destination: "w", Amount: dec("-1")}, domain.ErrInvalidInput},
		{"below minimum", WithdrawalPolicy{MinAmount: dec("5")}, ports.WithdrawInput{UserID: "xtr_1", Destination: "w", Amount: dec("4.99")}, domain.ErrBelowMinimum},
		{"insufficient", WithdrawalPolicy{}, ports.WithdrawInput{UserID: "xtr_1", Destination: "w", Amount: dec("10.01")}, domain.ErrInsufficientFunds},
		{"unknown account", WithdrawalPolicy{}, ports.WithdrawInput{UserID: "ghost", Destination: "w", Amount: dec("1")}, domain.ErrAccountNotFound},
		{"unverified", WithdrawalPolicy{RequireVerification: true}, ports.WithdrawInput{UserID: "xtr_1", Destination: "w", Amount: dec("1")}, domain.ErrNotVerified},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newWithdrawFixture(t, "10.00", tc.policy)
			if _, err := f.svc.Withdraw(context.Background(), tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if f.notifier.calls() != 0 {
				t.Fatalf("rejected withdrawal must not notify")
			}
			if !f.account(t).Balance.Equal(dec("10.00")) {
				t.Fatalf("rejected withdrawal must not debit")
			}
		})
	}
}

func TestWithdrawalService_Withdraw_NotificationFailure(t *testing.T) {
	f := newWithdrawFixture(t, "10.00", WithdrawalPolicy{})
	f.notifier.err = errors.New("smtp: 421 service not available")

	_, err := f.svc.Withdraw(context.Background(), ports.WithdrawInput{UserID: "xtr_1", Destination: "w", Amount: dec("3")})
	if !errors.Is(err, domain.ErrNotificationFailed) {
		t.Fatalf("expected ErrNotificationFailed, got %v", err)
	}

	acc := f.account(t)
	if !acc.Balance.Equal(dec("10.00")) || !acc.TotalWithdrawn.IsZero() {
		t.Fatalf("failed notification must leave the account untouched, got %+v", acc)
	}
	if len(f.ledger(t)) != 0 {
		t.Fatalf("failed notification must not append to the ledger")
	}
}

func TestWithdrawalService_Withdraw_NotificationTimeout(t *testing.T) {
	f := newWithdrawFixture(t, "10.00", WithdrawalPolicy{NotifyTimeout: 20 * time.Millisecond})
	f.notifier.hang = true
	f.notifier.release = make(chan struct{})
	defer close(f.notifier.release)

	start := time.Now()
	_, err := f.svc.Withdraw(context.Background(), ports.WithdrawInput{UserID: "xtr_1", Destination: "w", Amount: dec("3")})
	if !errors.Is(err, domain.ErrNotificationFailed) {
		t.Fatalf("expected ErrNotificationFailed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
	if !f.account(t).Balance.Equal(dec("10.00")) {
		t.Fatalf("timed out withdrawal must not debit")
	}
}

func TestWithdrawalService_Withdraw_IdempotentReplay(t *testing.T) {
	f := newWithdrawFixture(t, "10.00", WithdrawalPolicy{})
	in := ports.WithdrawInput{UserID: "xtr_1", Destination: "w", Amount: dec("2"), IdempotencyKey: "req-1"}

	first, err := f.svc.Withdraw(context.Background(), in)
	if err != nil {
		t.Fatalf("first withdraw: %v", err)
	}
	second, err := f.svc.Withdraw(context.Background(), in)
	if err != nil {
		t.Fatalf("replayed withdraw: %v", err)
	}

	if !second.Replayed || second.TxID != first.TxID {
		t.Fatalf("expected replay of %s, got %+v", first.TxID, second)
	}
	if !f.account(t).Balance.Equal(dec("8.00")) {
		t.Fatalf("replay must not debit twice, balance %s", f.account(t).Balance)
	}
	if f.notifier.calls() != 1 {
		t.Fatalf("replay must not notify twice, got %d", f.notifier.calls())
	}

	in.IdempotencyKey = "req-2"
	if third, err := f.svc.Withdraw(context.Background(), in); err != nil || third.Replayed {
		t.Fatalf("a new key must create a new withdrawal: %+v, %v", third, err)
	}
}

func TestWithdrawalService_Withdraw_ReusedKeyWithDifferentRequest(t *testing.T) {
	f := newWithdrawFixture(t, "10.00", WithdrawalPolicy{})
	in := ports.WithdrawInput{UserID: "xtr_1", Destination: "w", Amount: dec("2"), IdempotencyKey: "req-1"}
	if _, err := f.svc.Withdraw(context.Background(), in); err != nil {
		t.Fatalf("first withdraw: %v", err)
	}

	changed := []ports.WithdrawInput{
		{UserID: "xtr_1", Destination: "w", Amount: dec("3"), IdempotencyKey: "req-1"},
		{UserID: "xtr_1", Destination: "other", Amount: dec("2"), IdempotencyKey: "req-1"},
	}
	for _, c := range changed {
		if _, err := f.svc.Withdraw(context.Background(), c); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", c, err)
		}
	}

	if !f.account(t).Balance.Equal(dec("8.00")) || len(f.ledger(t)) != 1 || f.notifier.calls() != 1 {
		t.Fatalf("a mismatched key must not debit, record or notify")
	}

	in.Amount = dec("2.00")
	if again, err := f.svc.Withdraw(context.Background(), in); err != nil || !again.Replayed {
		t.Fatalf("an equal amount written differently must still replay: %+v, %v", again, err)
	}
}

// A withdrawal leaves the accrual checkpoint alone, and the next whole period
// is credited at the rate for accounts that have withdrawn.
func TestWithdrawalService_WithdrawThenSync(t *testing.T) {
	f := newWithdrawFixture(t, "2.00", WithdrawalPolicy{})
	f.svc.now = func() time.Time { return t0 }

	if _, err := f.svc.Withdraw(context.Background(), ports.WithdrawInput{UserID: "xtr_1", Destination: "w", Amount: dec("1")}); err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}
	acc := f.account(t)
	if !acc.Balance.Equal(dec("1")) || !acc.TotalWithdrawn.Equal(dec("1")) || !acc.LastSyncedAt.Equal(t0) {
		t.Fatalf("unexpected account after withdraw: %+v", acc)
	}

	same, err := newAccrualSvc(f.store, &recordingAudit{}, t0).Sync(context.Background(), "xtr_1")
	if err != nil {
		t.Fatalf("Sync at the withdrawal instant: %v", err)
	}
	if same.Periods != 0 || !same.Balance.Equal(dec("1")) || !same.Rate.Equal(dec("5.00")) {
		t.Fatalf("sync at the same instant must not credit, got %+v", same)
	}

	view, err := newAccrualSvc(f.store, &recordingAudit{}, t0.Add(24*time.Hour)).Sync(context.Background(), "xtr_1")
	if err != nil {
		t.Fatalf("Sync after one period: %v", err)
	}
	if view.Periods != 1 || !view.Rate.Equal(dec("5.00")) || !view.Balance.Equal(dec("6")) {
		t.Fatalf("expected one period at the withdrawn rate, got %+v", view)
	}
	if stored := f.account(t); !stored.LastSyncedAt.Equal(t0.Add(24 * time.Hour)) {
		t.Fatalf("checkpoint must advance one period, got %s", stored.LastSyncedAt)
	}
}

func TestWithdrawalService_Withdraw_ConcurrentNeverOverdraws(t *testing.T) {
	f := newWithdrawFixture(t, "10.00", WithdrawalPolicy{})

	var ok, insufficient int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Withdraw(context.Background(), ports.WithdrawInput{UserID: "xtr_1", Destination: "w", Amount: dec("1")})
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, domain.ErrInsufficientFunds):
				atomic.AddInt32(&insufficient, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 10 || insufficient != 15 {
		t.Fatalf("expected 10 successes and 15 rejections, got %d and %d", ok, insufficient)
	}
	acc := f.account(t)
	if !acc.Balance.IsZero() || !acc.TotalWithdrawn.Equal(dec("10")) {
		t.Fatalf("unexpected final state: balance %s withdrawn %s", acc.Balance, acc.TotalWithdrawn)
	}
	if len(f.ledger(t)) != 10 {
		t.Fatalf("expected 10 ledger entries, got %d", len(f.ledger(t)))
	}
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

func TestWithdrawalService_History(t *testing.T) {
	f := newWithdrawFixture(t, "10.00", WithdrawalPolicy{})

	clock := t0
	f.svc.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	var last string
	for i := 0; i < 3; i++ {
		r, err := f.svc.Withdraw(context.Background(), ports.WithdrawInput{UserID: "xtr_1", Destination: "w", Amount: dec("1")})
		if err != nil {
			t.Fatalf("withdraw %d: %v", i, err)
		}
		last = r.TxID
	}

	txs, err := f.svc.History(context.Background(), "xtr_1")
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(txs) != 3 || txs[0].ID != last {
		t.Fatalf("expected 3 entries newest first, got %+v", txs)
	}

	if _, err := f.svc.History(context.Background(), ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
