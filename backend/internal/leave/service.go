package leave

import (
	"context"
	"fmt"
	"log"
	"time"

	"schoolledger/backend/internal/attendance"
	"schoolledger/backend/internal/shared"
)

// Store persists leaves. Decide must only apply when the stored status is
// still Pending and report a StateError otherwise.
type Store interface {
	Insert(ctx context.Context, l *shared.Leave) error
	Find(ctx context.Context, id string) (*shared.Leave, error)
	Decide(ctx context.Context, id, status, decidedBy, rejectionReason string, at time.Time) (*shared.Leave, error)
	MarkSynced(ctx context.Context, id string, at time.Time) error
}

// Backfiller writes attendance for an approved leave
type Backfiller interface {
	BackfillLeaveApproval(ctx context.Context, in attendance.BackfillInput) (int, error)
	CheckRange(start, end time.Time) error
}

// Service applies for and decides leaves
type Service struct {
	store      Store
	backfiller Backfiller
	auditor    shared.Auditor
	now        func() time.Time
}

// NewService creates a new Service instance
func NewService(store Store, backfiller Backfiller, auditor shared.Auditor) *Service {
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	return &Service{
		store:      store,
		backfiller: backfiller,
		auditor:    auditor,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ApplyInput is a new leave request
type ApplyInput struct {
	ApplicantID string `json:"-"`
	Role        string `json:"-"`
	SchoolID    string `json:"-"`
	ClassID     string `json:"-"`
	StartDate   string `json:"start_date" validate:"required,date"`
	EndDate     string `json:"end_date" validate:"required,date"`
	Type        string `json:"type" validate:"required,oneof=sick casual emergency other"`
	Reason      string `json:"reason" validate:"max=500"`
}

// Apply records a Pending leave
func (s *Service) Apply(ctx context.Context, in ApplyInput) (*shared.Leave, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.ApplicantID == "" || !shared.IsValidRole(in.Role) {
		return nil, shared.NewValidationError("applicant identity is required")
	}
	if in.Role == shared.RoleStudent && in.ClassID == "" {
		return nil, shared.NewValidationError("class is required for student leave",
			shared.FieldError{Field: "class_id", Message: "missing from token"})
	}

	start, _ := shared.ParseDate(in.StartDate)
	end, _ := shared.ParseDate(in.EndDate)
	if err := s.backfiller.CheckRange(start, end); err != nil {
		return nil, err
	}

	l := &shared.Leave{
		ID:          shared.GenerateID("LEAVE"),
		SchoolID:    in.SchoolID,
		ClassID:     in.ClassID,
		ApplicantID: in.ApplicantID,
		Role:        in.Role,
		StartDate:   start,
		EndDate:     end,
		Type:        in.Type,
		Reason:      shared.CleanString(in.Reason),
		Status:      shared.LeavePending,
		CreatedAt:   s.now(),
	}
	if err := s.store.Insert(ctx, l); err != nil {
		return nil, fmt.Errorf("insert leave: %w", err)
	}
	return l, nil
}

// DecideInput approves or rejects a Pending leave
type DecideInput struct {
	LeaveID   string `json:"-"`
	SchoolID  string `json:"-"`
	DecidedBy string `json:"-"`
	Status    string `json:"status" validate:"required,oneof=Approved Rejected"`
	Reason    string `json:"reason"`
}

// Decision is the decided leave plus how many attendance rows were written
type Decision struct {
	Leave          *shared.Leave `json:"leave"`
	AttendanceDays int           `json:"attendance_days"`
}

// Decide moves a Pending leave to Approved or Rejected. Approving a
// student's leave backfills attendance for the whole range. If the backfill
// fails after the transition committed, the leave stays Approved without
// attendance_synced_at and ResyncAttendance repairs it.
func (s *Service) Decide(ctx context.Context, in DecideInput) (*Decision, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return nil, err
	}

	current, err := s.store.Find(ctx, in.LeaveID)
	if err != nil {
		return nil, err
	}
	if in.SchoolID != "" && current.SchoolID != in.SchoolID {
		return nil, &shared.ConsistencyError{Entity: "leave", EntityID: current.ID, Field: "school_id", Expected: in.SchoolID, Actual: current.SchoolID}
	}
	if err := Transition(current.Status, in.Status); err != nil {
		return nil, err
	}

	reason := shared.CleanString(in.Reason)
	if in.Status == shared.LeaveRejected && reason == "" {
		return nil, shared.NewValidationError("rejection requires a reason",
			shared.FieldError{Field: "reason", Message: "this field is required"})
	}
	if in.Status == shared.LeaveApproved {
		reason = ""
	}

	decided, err := s.store.Decide(ctx, current.ID, in.Status, in.DecidedBy, reason, s.now())
	if err != nil {
		return nil, err
	}

	action := shared.ActionLeaveReject
	if decided.Status == shared.LeaveApproved {
		action = shared.ActionLeaveApprove
	}
	s.auditor.Record(ctx, in.DecidedBy, action, decided.ID, map[string]interface{}{
		"applicant_id": decided.ApplicantID,
		"role":         decided.Role,
	})

	result := &Decision{Leave: decided}
	if decided.Status != shared.LeaveApproved || decided.Role != shared.RoleStudent {
		return result, nil
	}

	days, err := s.sync(ctx, decided, in.DecidedBy)
	if err != nil {
		return nil, fmt.Errorf("leave %s approved but attendance backfill failed, retry with resync: %w", decided.ID, err)
	}
	result.AttendanceDays = days
	return result, nil
}

// ResyncAttendance re-runs the backfill for an Approved student leave
func (s *Service) ResyncAttendance(ctx context.Context, leaveID, schoolID, userID string) (*Decision, error) {
	l, err := s.store.Find(ctx, leaveID)
	if err != nil {
		return nil, err
	}
	if schoolID != "" && l.SchoolID != schoolID {
		return nil, &shared.ConsistencyError{Entity: "leave", EntityID: l.ID, Field: "school_id", Expected: schoolID, Actual: l.SchoolID}
	}
	if l.Status != shared.LeaveApproved {
		return nil, &shared.StateError{Entity: "leave", From: l.Status, To: "attendance resync"}
	}
	if l.Role != shared.RoleStudent {
		return nil, shared.NewValidationError("only student leaves carry attendance")
	}

	approver := l.DecidedBy
	if approver == "" {
		approver = userID
	}
	days, err := s.sync(ctx, l, approver)
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, userID, shared.ActionLeaveResync, l.ID, map[string]interface{}{"days": days})
	return &Decision{Leave: l, AttendanceDays: days}, nil
}

func (s *Service) sync(ctx context.Context, l *shared.Leave, approvedBy string) (int, error) {
	days, err := s.backfiller.BackfillLeaveApproval(ctx, attendance.BackfillInput{
		StudentID:  l.ApplicantID,
		ClassID:    l.ClassID,
		SchoolID:   l.SchoolID,
		StartDate:  l.StartDate,
		EndDate:    l.EndDate,
		ApprovedBy: approvedBy,
	})
	if err != nil {
		return 0, err
	}

	at := s.now()
	if err := s.store.MarkSynced(ctx, l.ID, at); err != nil {
		log.Printf("Warning: leave %s backfilled but sync stamp failed: %v", l.ID, err)
	} else {
		l.AttendanceSyncedAt = &at
	}

	log.Printf("[Leave] %s: %d attendance days set to leave for %s", l.ID, days, l.ApplicantID)
	return days, nil
}
