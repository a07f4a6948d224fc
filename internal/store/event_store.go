package store

import (
	"context"
	"fmt"

	"github.com/concurhq/consent-exchange/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PutEvent persists an event idempotently on event_id. The first call
// inserts; later calls return the stored document untouched. The second
// return value reports whether this call created the document.
func (s *MongoStore) PutEvent(ctx context.Context, event *domain.Event) (*domain.Event, bool, error) {
	filter := bson.M{"event_id": event.EventID}

	res, err := s.events.UpdateOne(ctx, filter,
		bson.M{"$setOnInsert": event},
		options.Update().SetUpsert(true),
	)
	created := false
	switch {
	case err == nil:
		created = res.UpsertedCount == 1
	case mongo.IsDuplicateKeyError(err):
		// Lost the upsert race to a concurrent ingress of the same
		// event_id. The winner's document is the stored one.
	default:
		return nil, false, fmt.Errorf("upserting event %s: %w", event.EventID, err)
	}

	var stored domain.Event
	if err := s.events.FindOne(ctx, filter).Decode(&stored); err != nil {
		return nil, false, fmt.Errorf("reading back event %s: %w", event.EventID, err)
	}
	return &stored, created, nil
}

// GetEvent retrieves an event by its peer-assigned id.
func (s *MongoStore) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	var event domain.Event
	err := s.events.FindOne(ctx, bson.M{"event_id": eventID}).Decode(&event)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying event %s: %w", eventID, err)
	}
	return &event, nil
}
