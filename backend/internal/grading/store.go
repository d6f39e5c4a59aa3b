package grading

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"schoolledger/backend/internal/shared"
)

// MongoStore persists marks keyed on the uniq_student_exam index
type MongoStore struct {
	marksCol *mongo.Collection
	examsCol *mongo.Collection
	usersCol *mongo.Collection
}

// NewMongoStore creates a new MongoStore instance
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		marksCol: db.Collection(shared.ColMarks),
		examsCol: db.Collection(shared.ColExams),
		usersCol: db.Collection(shared.ColUsers),
	}
}

func (s *MongoStore) FindExam(ctx context.Context, examID string) (*shared.Exam, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var exam shared.Exam
	if err := s.examsCol.FindOne(queryCtx, bson.M{"_id": examID}).Decode(&exam); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, &shared.NotFoundError{Entity: "exam", ID: examID}
		}
		return nil, fmt.Errorf("find exam %s: %w", examID, err)
	}
	return &exam, nil
}

func (s *MongoStore) FindStudents(ctx context.Context, ids []string) (map[string]shared.User, error) {
	out := make(map[string]shared.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{"_id": bson.M{"$in": ids}, "role": shared.RoleStudent}
	cursor, err := s.usersCol.Find(queryCtx, filter, options.Find().SetProjection(bson.M{"password_hash": 0}))
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

// UpsertMark replaces every mutable field of the (student, exam) mark.
// _id and created_at are only written on insert, and updated_at only moves
// when a field actually changes. Two concurrent first writes can both miss
// and race on the unique index; the loser retries once and then matches the
// winner's document.
func (s *MongoStore) UpsertMark(ctx context.Context, mark *shared.Mark) (*shared.Mark, error) {
	filter := bson.M{"student_id": mark.StudentID, "exam_id": mark.ExamID}
	fields := bson.D{
		{Key: "school_id", Value: mark.SchoolID},
		{Key: "marks_obtained", Value: mark.MarksObtained},
		{Key: "total_marks", Value: mark.TotalMarks},
		{Key: "percentage", Value: mark.Percentage},
		{Key: "grade", Value: mark.Grade},
		{Key: "policy", Value: mark.Policy},
		{Key: "remarks", Value: mark.Remarks},
		{Key: "entered_by", Value: mark.EnteredBy},
	}

	unchanged := make(bson.A, 0, len(fields))
	set := make(bson.D, 0, len(fields))
	for _, f := range fields {
		lit := bson.M{"$literal": f.Value}
		unchanged = append(unchanged, bson.M{"$eq": bson.A{"$" + f.Key, lit}})
		set = append(set, bson.E{Key: f.Key, Value: lit})
	}

	// the first stage reads the stored fields before the second overwrites them
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "_id", Value: bson.M{"$ifNull": bson.A{"$_id", mark.ID}}},
			{Key: "created_at", Value: bson.M{"$ifNull": bson.A{"$created_at", mark.CreatedAt}}},
			{Key: "updated_at", Value: bson.M{"$cond": bson.A{bson.M{"$and": unchanged}, "$updated_at", mark.UpdatedAt}}},
		}}},
		{{Key: "$set", Value: set}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored shared.Mark
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		updateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = s.marksCol.FindOneAndUpdate(updateCtx, filter, update, opts).Decode(&stored)
		cancel()
		if !shared.IsDuplicateKey(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *MongoStore) ListStudentMarks(ctx context.Context, studentID string) ([]shared.Mark, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := s.marksCol.Find(queryCtx, bson.M{"student_id": studentID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(queryCtx)

	marks := []shared.Mark{}
	if err := cursor.All(queryCtx, &marks); err != nil {
		return nil, err
	}
	return marks, nil
}
