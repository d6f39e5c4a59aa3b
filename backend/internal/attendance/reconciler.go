package attendance

import (
	"context"
	"fmt"
	"log"
	"time"

	"schoolledger/backend/internal/shared"
)

// LeaveRemarks is written on every day a leave approval backfills
const LeaveRemarks = "Leave Approved"

// Store upserts attendance rows keyed on (student_id, date)
type Store interface {
	FindClass(ctx context.Context, classID string) (*shared.Class, error)
	FindStudents(ctx context.Context, ids []string) (map[string]shared.User, error)
	// UpsertMany overwrites status, remarks and marked_by for each row.
	// Rows are not written transactionally; a failure may leave a prefix committed.
	UpsertMany(ctx context.Context, rows []shared.Attendance) error
	ListForStudent(ctx context.Context, studentID string, from, to time.Time) ([]shared.Attendance, error)
}

// Reconciler keeps attendance consistent across manual marking and leave approvals
type Reconciler struct {
	store           Store
	maxBackfillDays int
	now             func() time.Time
}

// NewReconciler creates a new Reconciler instance
func NewReconciler(store Store, maxBackfillDays int) *Reconciler {
	if maxBackfillDays <= 0 {
		maxBackfillDays = shared.DefaultMaxBackfillDays
	}
	return &Reconciler{
		store:           store,
		maxBackfillDays: maxBackfillDays,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Record is one student's mark for the day
type Record struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=present absent late excused leave"`
	Remarks   string `json:"remarks"`
}

// BulkMarkInput marks a whole class for one date
type BulkMarkInput struct {
	SchoolID string   `json:"-"`
	ClassID  string   `json:"class_id" validate:"required"`
	Date     string   `json:"date" validate:"required,date"`
	MarkedBy string   `json:"-"`
	Records  []Record `json:"records" validate:"required,min=1,dive"`
}

// BulkMark upserts one row per student for the date. Repeated student ids
// collapse to the last record. Returns the number of rows written.
func (r *Reconciler) BulkMark(ctx context.Context, in BulkMarkInput) (int, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return 0, err
	}
	date, err := shared.ParseDate(in.Date)
	if err != nil {
		return 0, shared.NewValidationError("invalid date", shared.FieldError{Field: "date", Message: err.Error()})
	}

	class, err := r.store.FindClass(ctx, in.ClassID)
	if err != nil {
		return 0, err
	}
	if in.SchoolID != "" && class.SchoolID != in.SchoolID {
		return 0, integrity(&shared.ConsistencyError{Entity: "class", EntityID: class.ID, Field: "school_id", Expected: in.SchoolID, Actual: class.SchoolID})
	}

	// last write wins within the batch, first-seen order is kept
	latest := make(map[string]Record, len(in.Records))
	order := make([]string, 0, len(in.Records))
	for _, rec := range in.Records {
		if _, seen := latest[rec.StudentID]; !seen {
			order = append(order, rec.StudentID)
		}
		latest[rec.StudentID] = rec
	}

	students, err := r.store.FindStudents(ctx, order)
	if err != nil {
		return 0, fmt.Errorf("load students for %s: %w", class.ID, err)
	}

	now := r.now()
	rows := make([]shared.Attendance, 0, len(order))
	for _, id := range order {
		st, ok := students[id]
		if !ok {
			return 0, &shared.NotFoundError{Entity: "student", ID: id}
		}
		if st.SchoolID != class.SchoolID {
			return 0, integrity(&shared.ConsistencyError{Entity: "student", EntityID: id, Field: "school_id", Expected: class.SchoolID, Actual: st.SchoolID})
		}
		if st.ClassID != class.ID {
			return 0, integrity(&shared.ConsistencyError{Entity: "student", EntityID: id, Field: "class_id", Expected: class.ID, Actual: st.ClassID})
		}

		rec := latest[id]
		rows = append(rows, shared.Attendance{
			ID:        shared.GenerateID("ATT"),
			SchoolID:  class.SchoolID,
			ClassID:   class.ID,
			StudentID: id,
			Date:      date,
			Status:    rec.Status,
			MarkedBy:  in.MarkedBy,
			Remarks:   rec.Remarks,
			UpdatedAt: now,
		})
	}

	if err := r.store.UpsertMany(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert attendance for %s on %s: %w", class.ID, in.Date, err)
	}

	log.Printf("[Attendance] class %s %s: %d rows marked by %s", class.ID, in.Date, len(rows), in.MarkedBy)
	return len(rows), nil
}

// BackfillInput describes an approved leave to reflect in attendance
type BackfillInput struct {
	StudentID  string
	ClassID    string
	SchoolID   string
	StartDate  time.Time
	EndDate    time.Time
	ApprovedBy string
}

// BackfillLeaveApproval writes status "leave" for every day in the inclusive
// range, overwriting any earlier mark. Re-running writes identical rows and
// returns the same count.
func (r *Reconciler) BackfillLeaveApproval(ctx context.Context, in BackfillInput) (int, error) {
	if in.StudentID == "" || in.SchoolID == "" {
		return 0, shared.NewValidationError("student_id and school_id are required")
	}

	days, err := r.rangeDays(in.StartDate, in.EndDate)
	if err != nil {
		return 0, err
	}

	now := r.now()
	rows := make([]shared.Attendance, 0, len(days))
	for _, d := range days {
		rows = append(rows, shared.Attendance{
			ID:        shared.GenerateID("ATT"),
			SchoolID:  in.SchoolID,
			ClassID:   in.ClassID,
			StudentID: in.StudentID,
			Date:      d,
			Status:    shared.AttendanceLeave,
			MarkedBy:  in.ApprovedBy,
			Remarks:   LeaveRemarks,
			UpdatedAt: now,
		})
	}

	if err := r.store.UpsertMany(ctx, rows); err != nil {
		return 0, fmt.Errorf("backfill leave for %s: %w", in.StudentID, err)
	}
	return len(rows), nil
}

// History lists a student's attendance between two YYYY-MM-DD dates.
// A non-empty schoolID must match the student's school.
func (r *Reconciler) History(ctx context.Context, schoolID, studentID, from, to string) ([]shared.Attendance, error) {
	start, err := shared.ParseDate(from)
	if err != nil {
		return nil, shared.NewValidationError("invalid date", shared.FieldError{Field: "from", Message: err.Error()})
	}
	end, err := shared.ParseDate(to)
	if err != nil {
		return nil, shared.NewValidationError("invalid date", shared.FieldError{Field: "to", Message: err.Error()})
	}
	if _, err := r.rangeDays(start, end); err != nil {
		return nil, err
	}
	if schoolID != "" {
		students, err := r.store.FindStudents(ctx, []string{studentID})
		if err != nil {
			return nil, fmt.Errorf("load student %s: %w", studentID, err)
		}
		st, ok := students[studentID]
		if !ok {
			return nil, &shared.NotFoundError{Entity: "student", ID: studentID}
		}
		if st.SchoolID != schoolID {
			return nil, &shared.ConsistencyError{Entity: "student", EntityID: studentID, Field: "school_id", Expected: schoolID, Actual: st.SchoolID}
		}
	}
	return r.store.ListForStudent(ctx, studentID, start, end)
}

// CheckRange validates a leave range against the backfill limit
func (r *Reconciler) CheckRange(start, end time.Time) error {
	_, err := r.rangeDays(start, end)
	return err
}

func (r *Reconciler) rangeDays(start, end time.Time) ([]time.Time, error) {
	if start.IsZero() || end.IsZero() {
		return nil, shared.NewValidationError("start_date and end_date are required")
	}
	if shared.NormalizeDate(end).Before(shared.NormalizeDate(start)) {
		return nil, shared.NewValidationError("invalid date range",
			shared.FieldError{Field: "end_date", Message: "must not be before start_date"})
	}
	if n := shared.DaysBetweenInclusive(start, end); n > r.maxBackfillDays {
		return nil, shared.NewValidationError("date range too long",
			shared.FieldError{Field: "end_date", Message: fmt.Sprintf("range covers %d days, limit is %d", n, r.maxBackfillDays)})
	}
	return shared.DatesInRange(start, end), nil
}

func integrity(err *shared.ConsistencyError) error {
	log.Printf("[DataIntegrity] %v", err)
	return err
}
