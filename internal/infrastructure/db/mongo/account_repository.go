package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

// accountKeyConflict maps a duplicate-key failure to the domain error for the
// clashing key: the _id_ index means the generated id, anything else the
// unique username index. It returns nil for other errors.
func accountKeyConflict(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return nil
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if strings.Contains(e.Message, "index: _id_ ") {
				return domain.ErrAccountIDExists
			}
		}
	}
	return domain.ErrUsernameTaken
}

type AccountRepository struct {
	coll *mongo.Collection
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{coll: db.Collection(collectionAccounts)}
}

type mongoAccount struct {
	ID             string               `bson:"_id"`
	Username       string               `bson:"username"`
	PasswordHash   string               `bson:"password_hash"`
	Balance        primitive.Decimal128 `bson:"balance"`
	TotalWithdrawn primitive.Decimal128 `bson:"total_withdrawn"`
	LastSyncedAt   time.Time            `bson:"last_synced_at"`
	Verified       bool                 `bson:"is_verified"`
	Tier           string               `bson:"tier"`
	CreatedAt      time.Time            `bson:"created_at"`
	Version        int64                `bson:"version"`
}

func toMongoAccount(a *domain.Account) (*mongoAccount, error) {
	balance, err := toDecimal128(a.Balance)
	if err != nil {
		return nil, err
	}
	withdrawn, err := toDecimal128(a.TotalWithdrawn)
	if err != nil {
		return nil, err
	}
	return &mongoAccount{
		ID:             a.ID,
		Username:       a.Username,
		PasswordHash:   a.PasswordHash,
		Balance:        balance,
		TotalWithdrawn: withdrawn,
		LastSyncedAt:   a.LastSyncedAt.UTC(),
		Verified:       a.Verified,
		Tier:           string(a.Tier),
		CreatedAt:      a.CreatedAt.UTC(),
		Version:        a.Version,
	}, nil
}

func (m *mongoAccount) toDomain() (*domain.Account, error) {
	balance, err := fromDecimal128(m.Balance)
	if err != nil {
		return nil, err
	}
	withdrawn, err := fromDecimal128(m.TotalWithdrawn)
	if err != nil {
		return nil, err
	}
	return &domain.Account{
		ID:             m.ID,
		Username:       m.Username,
		PasswordHash:   m.PasswordHash,
		Balance:        balance,
		TotalWithdrawn: withdrawn,
		LastSyncedAt:   m.LastSyncedAt.UTC(),
		Verified:       m.Verified,
		Tier:           domain.Tier(m.Tier),
		CreatedAt:      m.CreatedAt.UTC(),
		Version:        m.Version,
	}, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc, err := toMongoAccount(account)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	doc.Version = 1

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if conflict := accountKeyConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert account: %w", err)
	}
	account.Version = 1
	return nil
}

func (r *AccountRepository) Get(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoAccount
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return doc.toDomain()
}

// CompareAndUpdate replaces the document only while its version still equals
// expectedVersion.
func (r *AccountRepository) CompareAndUpdate(ctx context.Context, expectedVersion int64, account *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc, err := toMongoAccount(account)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	doc.Version = expectedVersion + 1

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": account.ID, "version": expectedVersion}, doc)
	if err != nil {
		if conflict := accountKeyConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("update account: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": account.ID})
		if err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		if n == 0 {
			return domain.ErrAccountNotFound
		}
		return domain.ErrVersionConflict
	}

	account.Version = doc.Version
	return nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoAccount
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	out := make([]*domain.Account, 0, len(docs))
	for i := range docs {
		a, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) Stats(ctx context.Context) (*domain.AccountStats, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total_users", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "total_liability", Value: bson.D{{Key: "$sum", Value: "$balance"}}},
			{Key: "total_paid", Value: bson.D{{Key: "$sum", Value: "$total_withdrawn"}}},
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("account stats: %w", err)
	}
	defer cur.Close(ctx)

	stats := &domain.AccountStats{TotalLiability: decimal.Zero, TotalPaid: decimal.Zero}
	if !cur.Next(ctx) {
		return stats, cur.Err()
	}

	var row struct {
		TotalUsers     int64                `bson:"total_users"`
		TotalLiability primitive.Decimal128 `bson:"total_liability"`
		TotalPaid      primitive.Decimal128 `bson:"total_paid"`
	}
	if err := cur.Decode(&row); err != nil {
		return nil, fmt.Errorf("account stats: %w", err)
	}

	stats.TotalUsers = row.TotalUsers
	if stats.TotalLiability, err = fromDecimal128(row.TotalLiability); err != nil {
		return nil, err
	}
	if stats.TotalPaid, err = fromDecimal128(row.TotalPaid); err != nil {
		return nil, err
	}
	return stats, nil
}
