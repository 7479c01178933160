package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

type CodeRegistry struct {
	coll *mongo.Collection
}

func NewCodeRegistry(db *mongo.Database) *CodeRegistry {
	return &CodeRegistry{coll: db.Collection(collectionCodes)}
}

type mongoCode struct {
	Value      string     `bson:"_id"`
	Status     string     `bson:"status"`
	CreatedAt  time.Time  `bson:"created_at"`
	ExpiresAt  *time.Time `bson:"expires_at"`
	ConsumedBy string     `bson:"consumed_by,omitempty"`
	ConsumedAt *time.Time `bson:"consumed_at,omitempty"`
}

func (r *CodeRegistry) Issue(ctx context.Context, code *domain.OneTimeCode) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoCode{
		Value:     code.Value,
		Status:    string(code.Status),
		CreatedAt: code.CreatedAt.UTC(),
		ExpiresAt: code.ExpiresAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrCodeExists
		}
		return fmt.Errorf("insert code: %w", err)
	}
	return nil
}

// TryConsume flips the code in a single conditional update, so two callers
// racing for the same code cannot both match it.
func (r *CodeRegistry) TryConsume(ctx context.Context, value, userID string, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now = now.UTC()
	filter := bson.M{
		"_id":    value,
		"status": string(domain.CodeActive),
		"$or": bson.A{
			bson.M{"expires_at": nil},
			bson.M{"expires_at": bson.M{"$gt": now}},
		},
	}
	update := bson.M{"$set": bson.M{
		"status":      string(domain.CodeConsumed),
		"consumed_by": userID,
		"consumed_at": now,
	}}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("consume code: %w", err)
	}
	return res.ModifiedCount == 1, nil
}
