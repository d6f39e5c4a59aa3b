package fee

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"schoolledger/backend/internal/shared"
)

// MongoStore reads and writes fee documents
type MongoStore struct {
	usersCol      *mongo.Collection
	classesCol    *mongo.Collection
	structuresCol *mongo.Collection
	paymentsCol   *mongo.Collection
}

// NewMongoStore creates a new MongoStore instance
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		usersCol:      db.Collection(shared.ColUsers),
		classesCol:    db.Collection(shared.ColClasses),
		structuresCol: db.Collection(shared.ColFeeStructures),
		paymentsCol:   db.Collection(shared.ColFeePayments),
	}
}

func findOne[T any](ctx context.Context, col *mongo.Collection, filter bson.M, entity, id string) (*T, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc T
	if err := col.FindOne(queryCtx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &shared.NotFoundError{Entity: entity, ID: id}
		}
		return nil, fmt.Errorf("find %s %s: %w", entity, id, err)
	}
	return &doc, nil
}

func findAll[T any](ctx context.Context, col *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := col.Find(queryCtx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(queryCtx)

	out := []T{}
	if err := cursor.All(queryCtx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) FindStudent(ctx context.Context, studentID string) (*shared.User, error) {
	return findOne[shared.User](ctx, s.usersCol, bson.M{"_id": studentID, "role": shared.RoleStudent}, "student", studentID)
}

func (s *MongoStore) ListClassStudents(ctx context.Context, classID string) ([]shared.User, error) {
	return findAll[shared.User](ctx, s.usersCol,
		bson.M{"class_id": classID, "role": shared.RoleStudent, "is_active": true},
		options.Find().SetSort(bson.D{{Key: "roll_number", Value: 1}}).SetProjection(bson.M{"password_hash": 0}))
}

func (s *MongoStore) FindClass(ctx context.Context, classID string) (*shared.Class, error) {
	return findOne[shared.Class](ctx, s.classesCol, bson.M{"_id": classID}, "class", classID)
}

func (s *MongoStore) ListStructures(ctx context.Context, classID, academicYear string) ([]shared.FeeStructure, error) {
	filter := bson.M{"class_id": classID}
	if academicYear != "" {
		filter["academic_year"] = academicYear
	}
	return findAll[shared.FeeStructure](ctx, s.structuresCol, filter,
		options.Find().SetSort(bson.D{{Key: "due_date", Value: 1}}))
}

func (s *MongoStore) FindStructure(ctx context.Context, id string) (*shared.FeeStructure, error) {
	return findOne[shared.FeeStructure](ctx, s.structuresCol, bson.M{"_id": id}, "fee_structure", id)
}

func (s *MongoStore) InsertStructure(ctx context.Context, fs *shared.FeeStructure) error {
	insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.structuresCol.InsertOne(insertCtx, fs)
	return err
}

func (s *MongoStore) UpdateStructure(ctx context.Context, fs *shared.FeeStructure) error {
	updateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.structuresCol.ReplaceOne(updateCtx, bson.M{"_id": fs.ID}, fs)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &shared.NotFoundError{Entity: "fee_structure", ID: fs.ID}
	}
	return nil
}

func (s *MongoStore) DeleteStructure(ctx context.Context, id string) error {
	deleteCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.structuresCol.DeleteOne(deleteCtx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return &shared.NotFoundError{Entity: "fee_structure", ID: id}
	}
	return nil
}

func (s *MongoStore) CountStructurePayments(ctx context.Context, structureID string) (int64, error) {
	countCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.paymentsCol.CountDocuments(countCtx, bson.M{"fee_structure_id": structureID})
}

func (s *MongoStore) ListPayments(ctx context.Context, studentIDs []string) ([]shared.FeePayment, error) {
	if len(studentIDs) == 0 {
		return []shared.FeePayment{}, nil
	}
	return findAll[shared.FeePayment](ctx, s.paymentsCol,
		bson.M{"student_id": bson.M{"$in": studentIDs}},
		options.Find().SetSort(bson.D{{Key: "paid_at", Value: -1}}))
}

func (s *MongoStore) FindPaymentByTransaction(ctx context.Context, transactionID string) (*shared.FeePayment, error) {
	return findOne[shared.FeePayment](ctx, s.paymentsCol, bson.M{"transaction_id": transactionID}, "fee_payment", transactionID)
}

// InsertPayment relies on uniq_transaction_id to reject a second write of
// the same gateway transaction.
func (s *MongoStore) InsertPayment(ctx context.Context, p *shared.FeePayment) error {
	insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.paymentsCol.InsertOne(insertCtx, p)
	return err
}
