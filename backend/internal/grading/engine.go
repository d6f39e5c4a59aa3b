package grading

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"schoolledger/backend/internal/shared"
)

// Store is the persistence the engine needs. UpsertMark must be keyed on
// (student_id, exam_id) and replace every mutable field.
type Store interface {
	FindExam(ctx context.Context, examID string) (*shared.Exam, error)
	FindStudents(ctx context.Context, ids []string) (map[string]shared.User, error)
	UpsertMark(ctx context.Context, mark *shared.Mark) (*shared.Mark, error)
	ListStudentMarks(ctx context.Context, studentID string) ([]shared.Mark, error)
}

// Engine computes and records exam marks
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine creates a new Engine instance
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// MarkInput is one fully-specified mark submission
type MarkInput struct {
	SchoolID       string
	StudentID      string
	ExamID         string
	MarksObtained  float64
	ExamTotalMarks float64
	Policy         Policy
	Remarks        string
	EnteredBy      string
}

// ComputeMark derives percentage (two-decimal rounding) and grade from raw marks
func ComputeMark(marksObtained, examTotalMarks float64, policy Policy) (float64, string, error) {
	if math.IsNaN(examTotalMarks) || examTotalMarks <= 0 {
		return 0, "", shared.NewValidationError("invalid exam total",
			shared.FieldError{Field: "total_marks", Message: "must be greater than 0"})
	}
	if math.IsNaN(marksObtained) || marksObtained < 0 || marksObtained > examTotalMarks {
		return 0, "", shared.NewValidationError("invalid marks",
			shared.FieldError{Field: "marks_obtained", Message: fmt.Sprintf("must be between 0 and %v", examTotalMarks)})
	}

	percentage := math.Round((marksObtained/examTotalMarks)*100*100) / 100
	grade, err := Grade(percentage, policy)
	if err != nil {
		return 0, "", err
	}
	return percentage, grade, nil
}

// RecordMark validates, grades and upserts one (student, exam) mark.
// Re-running with identical input yields an identical stored mark.
func (e *Engine) RecordMark(ctx context.Context, in MarkInput) (*shared.Mark, error) {
	if in.StudentID == "" || in.ExamID == "" {
		return nil, shared.NewValidationError("student_id and exam_id are required")
	}

	percentage, grade, err := ComputeMark(in.MarksObtained, in.ExamTotalMarks, in.Policy)
	if err != nil {
		return nil, err
	}

	now := e.now()
	mark := &shared.Mark{
		ID:            shared.GenerateID("MARK"),
		SchoolID:      in.SchoolID,
		StudentID:     in.StudentID,
		ExamID:        in.ExamID,
		MarksObtained: in.MarksObtained,
		TotalMarks:    in.ExamTotalMarks,
		Percentage:    percentage,
		Grade:         grade,
		Policy:        string(in.Policy),
		Remarks:       in.Remarks,
		EnteredBy:     in.EnteredBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	stored, err := e.store.UpsertMark(ctx, mark)
	if err != nil {
		return nil, fmt.Errorf("upsert mark %s/%s: %w", in.StudentID, in.ExamID, err)
	}
	return stored, nil
}

// ============================================================================
// Batch entry
// ============================================================================

// Entry is one row of a batch submission
type Entry struct {
	StudentID     string  `json:"student_id" validate:"required"`
	MarksObtained float64 `json:"marks_obtained"`
	Remarks       string  `json:"remarks"`
}

// BatchInput records marks for many students of one exam
type BatchInput struct {
	SchoolID  string
	ExamID    string
	Policy    Policy
	EnteredBy string
	Entries   []Entry
}

// RowFailure reports a rejected row; other rows are unaffected
type RowFailure struct {
	Index     int    `json:"index"`
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
}

// BatchResult pairs committed marks with rejected rows
type BatchResult struct {
	ExamID     string        `json:"exam_id"`
	TotalMarks float64       `json:"total_marks"`
	Marks      []shared.Mark `json:"marks"`
	Failures   []RowFailure  `json:"failures"`
}

// RecordMarks applies RecordMark to each entry independently. There is no
// batch transaction: valid rows commit even when others fail.
func (e *Engine) RecordMarks(ctx context.Context, in BatchInput) (*BatchResult, error) {
	if in.ExamID == "" {
		return nil, shared.NewValidationError("exam_id is required")
	}
	if _, ok := tables[in.Policy]; !ok {
		return nil, shared.NewValidationError("unknown grading policy",
			shared.FieldError{Field: "policy", Message: fmt.Sprintf("must be one of %v", Policies())})
	}

	exam, err := e.store.FindExam(ctx, in.ExamID)
	if err != nil {
		return nil, err
	}
	if in.SchoolID != "" && exam.SchoolID != in.SchoolID {
		return nil, &shared.ConsistencyError{Entity: "exam", EntityID: exam.ID, Field: "school_id", Expected: in.SchoolID, Actual: exam.SchoolID}
	}

	ids := make([]string, 0, len(in.Entries))
	for _, entry := range in.Entries {
		ids = append(ids, entry.StudentID)
	}
	students, err := e.store.FindStudents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load students for exam %s: %w", exam.ID, err)
	}

	result := &BatchResult{
		ExamID:     exam.ID,
		TotalMarks: exam.TotalMarks,
		Marks:      make([]shared.Mark, 0, len(in.Entries)),
		Failures:   []RowFailure{},
	}

	for i, entry := range in.Entries {
		if err := e.checkStudent(exam, students, entry.StudentID); err != nil {
			result.Failures = append(result.Failures, RowFailure{Index: i, StudentID: entry.StudentID, Error: err.Error()})
			continue
		}

		mark, err := e.RecordMark(ctx, MarkInput{
			SchoolID:       exam.SchoolID,
			StudentID:      entry.StudentID,
			ExamID:         exam.ID,
			MarksObtained:  entry.MarksObtained,
			ExamTotalMarks: exam.TotalMarks,
			Policy:         in.Policy,
			Remarks:        entry.Remarks,
			EnteredBy:      in.EnteredBy,
		})
		if err != nil {
			result.Failures = append(result.Failures, RowFailure{Index: i, StudentID: entry.StudentID, Error: err.Error()})
			continue
		}
		result.Marks = append(result.Marks, *mark)
	}

	log.Printf("[GradeEngine] exam %s: %d recorded, %d rejected", exam.ID, len(result.Marks), len(result.Failures))
	return result, nil
}

func (e *Engine) checkStudent(exam *shared.Exam, students map[string]shared.User, studentID string) error {
	if studentID == "" {
		return shared.NewValidationError("student_id is required")
	}
	student, ok := students[studentID]
	if !ok {
		return &shared.NotFoundError{Entity: "student", ID: studentID}
	}
	if student.SchoolID != exam.SchoolID {
		err := &shared.ConsistencyError{Entity: "student", EntityID: studentID, Field: "school_id", Expected: exam.SchoolID, Actual: student.SchoolID}
		log.Printf("[DataIntegrity] %v", err)
		return err
	}
	return nil
}

// ============================================================================
// Aggregates
// ============================================================================

// Summary aggregates a student's marks. Average is the plain mean of
// per-mark percentages, not weighted by exam total.
type Summary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Max     float64 `json:"max"`
	Min     float64 `json:"min"`
}

// Summarize computes {count, average, max, min} over percentages
func Summarize(marks []shared.Mark) Summary {
	if len(marks) == 0 {
		return Summary{}
	}

	s := Summary{Count: len(marks), Max: marks[0].Percentage, Min: marks[0].Percentage}
	var sum float64
	for _, m := range marks {
		sum += m.Percentage
		s.Max = math.Max(s.Max, m.Percentage)
		s.Min = math.Min(s.Min, m.Percentage)
	}
	s.Average = math.Round(sum/float64(len(marks))*100) / 100
	return s
}

// StudentSummary loads a student's marks and summarizes them. A non-empty
// schoolID must match the student's school.
func (e *Engine) StudentSummary(ctx context.Context, schoolID, studentID string) (Summary, error) {
	if studentID == "" {
		return Summary{}, shared.NewValidationError("student_id is required")
	}
	if schoolID != "" {
		students, err := e.store.FindStudents(ctx, []string{studentID})
		if err != nil {
			return Summary{}, fmt.Errorf("load student %s: %w", studentID, err)
		}
		st, ok := students[studentID]
		if !ok {
			return Summary{}, &shared.NotFoundError{Entity: "student", ID: studentID}
		}
		if st.SchoolID != schoolID {
			return Summary{}, &shared.ConsistencyError{Entity: "student", EntityID: studentID, Field: "school_id", Expected: schoolID, Actual: st.SchoolID}
		}
	}
	marks, err := e.store.ListStudentMarks(ctx, studentID)
	if err != nil {
		return Summary{}, fmt.Errorf("list marks for %s: %w", studentID, err)
	}
	return Summarize(marks), nil
}

