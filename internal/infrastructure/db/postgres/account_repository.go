package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

// Numeric columns are cast to text on the way out and parsed with decimal, so
// no precision is lost between the database and the domain.
const accountColumns = `id, username, password_hash, balance::text, total_withdrawn::text,
	last_synced_at, is_verified, tier, created_at, version`

// accountsPrimaryKey is the default name postgres gives the id constraint.
const accountsPrimaryKey = "accounts_pkey"

// accountKeyConflict tells an id clash apart from a username clash. It
// returns nil for anything that is not a unique violation.
func accountKeyConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	if pgErr.ConstraintName == accountsPrimaryKey {
		return domain.ErrAccountIDExists
	}
	return domain.ErrUsernameTaken
}

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a                  domain.Account
		balance, withdrawn string
		tier               string
	)
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &balance, &withdrawn,
		&a.LastSyncedAt, &a.Verified, &tier, &a.CreatedAt, &a.Version); err != nil {
		return nil, err
	}

	var err error
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	if a.TotalWithdrawn, err = decimal.NewFromString(withdrawn); err != nil {
		return nil, fmt.Errorf("decode total_withdrawn: %w", err)
	}
	a.Tier = domain.Tier(tier)
	a.LastSyncedAt = a.LastSyncedAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO accounts (id, username, password_hash, balance, total_withdrawn,
			last_synced_at, is_verified, tier, created_at, version)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9, 1)`,
		account.ID, account.Username, account.PasswordHash,
		account.Balance.String(), account.TotalWithdrawn.String(),
		account.LastSyncedAt, account.Verified, string(account.Tier), account.CreatedAt,
	)
	if err != nil {
		if conflict := accountKeyConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert account: %w", err)
	}
	account.Version = 1
	return nil
}

func (r *AccountRepository) Get(ctx context.Context, id string) (*domain.Account, error) {
	return r.getBy(ctx, "id", id)
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.getBy(ctx, "username", username)
}

func (r *AccountRepository) getBy(ctx context.Context, column, value string) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+column+` = $1`, value)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) CompareAndUpdate(ctx context.Context, expectedVersion int64, account *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	db := conn(ctx, r.pool)
	tag, err := db.Exec(ctx, `
		UPDATE accounts
		SET username = $3, password_hash = $4, balance = $5::numeric, total_withdrawn = $6::numeric,
			last_synced_at = $7, is_verified = $8, tier = $9, version = version + 1
		WHERE id = $1 AND version = $2`,
		account.ID, expectedVersion, account.Username, account.PasswordHash,
		account.Balance.String(), account.TotalWithdrawn.String(),
		account.LastSyncedAt, account.Verified, string(account.Tier),
	)
	if err != nil {
		if conflict := accountKeyConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("update account: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, account.ID).Scan(&exists); err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		if !exists {
			return domain.ErrAccountNotFound
		}
		return domain.ErrVersionConflict
	}

	account.Version = expectedVersion + 1
	return nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) Stats(ctx context.Context) (*domain.AccountStats, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var (
		stats           domain.AccountStats
		liability, paid string
	)
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(balance), 0)::text, COALESCE(SUM(total_withdrawn), 0)::text
		FROM accounts`).Scan(&stats.TotalUsers, &liability, &paid)
	if err != nil {
		return nil, fmt.Errorf("account stats: %w", err)
	}

	if stats.TotalLiability, err = decimal.NewFromString(liability); err != nil {
		return nil, fmt.Errorf("account stats: %w", err)
	}
	if stats.TotalPaid, err = decimal.NewFromString(paid); err != nil {
		return nil, fmt.Errorf("account stats: %w", err)
	}
	return &stats, nil
}
