package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

type LedgerRepository struct {
	coll *mongo.Collection
}

func NewLedgerRepository(db *mongo.Database) *LedgerRepository {
	return &LedgerRepository{coll: db.Collection(collectionTransactions)}
}

type mongoTransaction struct {
	ID          string               `bson:"_id"`
	UserID      string               `bson:"user_id"`
	Type        string               `bson:"type"`
	Amount      primitive.Decimal128 `bson:"amount"`
	Destination string               `bson:"address"`
	Status      string               `bson:"status"`
	CreatedAt   time.Time            `bson:"timestamp"`
}

func (m *mongoTransaction) toDomain() (*domain.Transaction, error) {
	amount, err := fromDecimal128(m.Amount)
	if err != nil {
		return nil, err
	}
	return &domain.Transaction{
		ID:          m.ID,
		UserID:      m.UserID,
		Type:        domain.TransactionType(m.Type),
		Amount:      amount,
		Destination: m.Destination,
		Status:      domain.TransactionStatus(m.Status),
		CreatedAt:   m.CreatedAt.UTC(),
	}, nil
}

func (r *LedgerRepository) Append(ctx context.Context, tx *domain.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	amount, err := toDecimal128(tx.Amount)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	doc := mongoTransaction{
		ID:          tx.ID,
		UserID:      tx.UserID,
		Type:        string(tx.Type),
		Amount:      amount,
		Destination: tx.Destination,
		Status:      string(tx.Status),
		CreatedAt:   tx.CreatedAt.UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (r *LedgerRepository) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoTransaction
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return doc.toDomain()
}

func (r *LedgerRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoTransaction
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	out := make([]*domain.Transaction, 0, len(docs))
	for i := range docs {
		tx, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}
