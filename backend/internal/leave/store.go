package leave

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"schoolledger/backend/internal/shared"
)

// MongoStore persists leaves
type MongoStore struct {
	leavesCol *mongo.Collection
}

// NewMongoStore creates a new MongoStore instance
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{leavesCol: db.Collection(shared.ColLeaves)}
}

func (s *MongoStore) Insert(ctx context.Context, l *shared.Leave) error {
	insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.leavesCol.InsertOne(insertCtx, l)
	return err
}

func (s *MongoStore) Find(ctx context.Context, id string) (*shared.Leave, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var l shared.Leave
	if err := s.leavesCol.FindOne(queryCtx, bson.M{"_id": id}).Decode(&l); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &shared.NotFoundError{Entity: "leave", ID: id}
		}
		return nil, fmt.Errorf("find leave %s: %w", id, err)
	}
	return &l, nil
}

// Decide applies the transition only while the leave is still Pending, so
// two concurrent deciders cannot both win.
func (s *MongoStore) Decide(ctx context.Context, id, status, decidedBy, rejectionReason string, at time.Time) (*shared.Leave, error) {
	updateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{
		"status":     status,
		"decided_by": decidedBy,
		"decided_at": at,
	}
	if rejectionReason != "" {
		set["rejection_reason"] = rejectionReason
	}

	var l shared.Leave
	err := s.leavesCol.FindOneAndUpdate(updateCtx,
		bson.M{"_id": id, "status": shared.LeavePending},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&l)
	if err == mongo.ErrNoDocuments {
		current, findErr := s.Find(ctx, id)
		if findErr != nil {
			return nil, findErr
		}
		return nil, &shared.StateError{Entity: "leave", From: current.Status, To: status}
	}
	if err != nil {
		return nil, fmt.Errorf("decide leave %s: %w", id, err)
	}
	return &l, nil
}

func (s *MongoStore) MarkSynced(ctx context.Context, id string, at time.Time) error {
	updateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.leavesCol.UpdateOne(updateCtx, bson.M{"_id": id}, bson.M{"$set": bson.M{"attendance_synced_at": at}})
	return err
}
