package attendance

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"schoolledger/backend/internal/shared"
)

// MongoStore writes attendance through the uniq_student_date index
type MongoStore struct {
	attendanceCol *mongo.Collection
	classesCol    *mongo.Collection
	usersCol      *mongo.Collection
}

// NewMongoStore creates a new MongoStore instance
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		attendanceCol: db.Collection(shared.ColAttendance),
		classesCol:    db.Collection(shared.ColClasses),
		usersCol:      db.Collection(shared.ColUsers),
	}
}

func (s *MongoStore) FindClass(ctx context.Context, classID string) (*shared.Class, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var class shared.Class
	if err := s.classesCol.FindOne(queryCtx, bson.M{"_id": classID}).Decode(&class); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &shared.NotFoundError{Entity: "class", ID: classID}
		}
		return nil, fmt.Errorf("find class %s: %w", classID, err)
	}
	return &class, nil
}

func (s *MongoStore) FindStudents(ctx context.Context, ids []string) (map[string]shared.User, error) {
	out := make(map[string]shared.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := s.usersCol.Find(queryCtx,
		bson.M{"_id": bson.M{"$in": ids}, "role": shared.RoleStudent},
		options.Find().SetProjection(bson.M{"password_hash": 0}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(queryCtx)

	for cursor.Next(queryCtx) {
		var u shared.User
		if err := cursor.Decode(&u); err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, cursor.Err()
}

// UpsertMany sends one ordered bulk write of per-(student, date) upserts.
// A duplicate key from a concurrent first insert is retried once; every
// write is an idempotent overwrite so the retry is safe.
func (s *MongoStore) UpsertMany(ctx context.Context, rows []shared.Attendance) error {
	if len(rows) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(rows))
	for _, row := range rows {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"student_id": row.StudentID, "date": shared.NormalizeDate(row.Date)}).
			SetUpdate(bson.M{
				"$set": bson.M{
					"school_id":  row.SchoolID,
					"class_id":   row.ClassID,
					"status":     row.Status,
					"marked_by":  row.MarkedBy,
					"remarks":    row.Remarks,
					"updated_at": row.UpdatedAt,
				},
				"$setOnInsert": bson.M{"_id": row.ID},
			}).
			SetUpsert(true))
	}

	opts := options.BulkWrite().SetOrdered(true)
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err = s.attendanceCol.BulkWrite(writeCtx, models, opts)
		cancel()
		if !shared.IsDuplicateKey(err) {
			break
		}
	}
	return err
}

// ListForStudent returns a student's rows in [from, to], oldest first
func (s *MongoStore) ListForStudent(ctx context.Context, studentID string, from, to time.Time) ([]shared.Attendance, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"student_id": studentID,
		"date":       bson.M{"$gte": shared.NormalizeDate(from), "$lte": shared.NormalizeDate(to)},
	}
	cursor, err := s.attendanceCol.Find(queryCtx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(queryCtx)

	rows := []shared.Attendance{}
	if err := cursor.All(queryCtx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
