package store

import (
	"context"
	"fmt"
	"time"

	"github.com/concurhq/consent-exchange/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OpenDelivery creates a pending delivery record for (eventID, kind) if
// none exists, and returns the stored record either way.
func (s *MongoStore) OpenDelivery(ctx context.Context, eventID string, kind domain.AckKind) (*domain.DeliveryRecord, error) {
	now := time.Now().UTC()
	rec := domain.DeliveryRecord{
		RecordID:  uuid.NewString(),
		EventID:   eventID,
		Kind:      kind,
		Status:    domain.StatusPending,
		Attempts:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	filter := bson.M{"event_id": eventID, "kind": kind}
	_, err := s.deliveries.UpdateOne(ctx, filter,
		bson.M{"$setOnInsert": rec},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("opening delivery %s/%s: %w", eventID, kind, err)
	}

	var stored domain.DeliveryRecord
	if err := s.deliveries.FindOne(ctx, filter).Decode(&stored); err != nil {
		return nil, fmt.Errorf("reading back delivery %s/%s: %w", eventID, kind, err)
	}
	return &stored, nil
}

// ForEachDue walks every record of the kind not yet in status sent, one
// cursor pass, calling fn for each. An error from fn aborts the walk.
func (s *MongoStore) ForEachDue(ctx context.Context, kind domain.AckKind, fn func(domain.DeliveryRecord) error) error {
	cursor, err := s.deliveries.Find(ctx, bson.M{
		"kind":   kind,
		"status": bson.M{"$ne": domain.StatusSent},
	})
	if err != nil {
		return fmt.Errorf("querying due deliveries for %s: %w", kind, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var rec domain.DeliveryRecord
		if err := cursor.Decode(&rec); err != nil {
			return fmt.Errorf("decoding delivery record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("iterating due deliveries for %s: %w", kind, err)
	}
	return nil
}

// RecordAttempt applies the outcome of exactly one wire attempt as a
// single atomic document update: attempts is incremented, status and
// last_error are set from the outcome, updated_at is stamped. Concurrent
// callers on the same record are totally ordered by the server.
func (s *MongoStore) RecordAttempt(ctx context.Context, recordID string, outcome domain.AttemptOutcome) (*domain.DeliveryRecord, error) {
	now := time.Now().UTC()

	set := bson.M{"updated_at": now}
	update := bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": set,
	}
	if outcome.Success {
		set["status"] = domain.StatusSent
		set["sent_at"] = now
		update["$unset"] = bson.M{"last_error": ""}
	} else {
		set["status"] = domain.StatusFailed
		set["last_error"] = outcome.Error
	}

	var updated domain.DeliveryRecord
	err := s.deliveries.FindOneAndUpdate(ctx,
		bson.M{"record_id": recordID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("recording attempt on %s: %w", recordID, err)
	}
	return &updated, nil
}
