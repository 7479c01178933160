package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xtremeprotocol/accrual-service/internal/core/domain"
)

// AuditRepository stores the system log.
type AuditRepository struct {
	coll *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{coll: db.Collection(collectionAuditLog)}
}

type mongoAuditEvent struct {
	Type      string    `bson:"event_type"`
	UserID    string    `bson:"user_id"`
	Details   string    `bson:"details"`
	Timestamp time.Time `bson:"timestamp"`
}

func (r *AuditRepository) Insert(ctx context.Context, event *domain.AuditEvent) error {
	doc := mongoAuditEvent{
		Type:      string(event.Type),
		UserID:    event.UserID,
		Details:   event.Details,
		Timestamp: event.Timestamp.UTC(),
	}
	_, err := r.coll.InsertOne(ctx, doc)
	return err
}

func (r *AuditRepository) List(ctx context.Context, limit int) ([]*domain.AuditEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoAuditEvent
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}

	out := make([]*domain.AuditEvent, 0, len(docs))
	for _, d := range docs {
		out = append(out, &domain.AuditEvent{
			Type:      domain.AuditEventType(d.Type),
			UserID:    d.UserID,
			Details:   d.Details,
			Timestamp: d.Timestamp.UTC(),
		})
	}
	return out, nil
}

func (r *AuditRepository) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.coll.DeleteMany(ctx, bson.M{})
	return err
}
