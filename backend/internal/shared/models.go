// ============================================================================
// backend/internal/shared/models.go
// Shared data models for MongoDB documents
// ============================================================================

package shared

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// People & Classes
// ============================================================================

// User represents an account (student, teacher, or admin) scoped to one school
type User struct {
	ID           string    `bson:"_id" json:"id"`
	SchoolID     string    `bson:"school_id" json:"school_id"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash,omitempty" json:"-"`
	Role         string    `bson:"role" json:"role"`
	Name         string    `bson:"name" json:"name"`
	IsActive     bool      `bson:"is_active" json:"is_active"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`

	// Student-specific fields
	ClassID    string `bson:"class_id,omitempty" json:"class_id,omitempty"`
	RollNumber string `bson:"roll_number,omitempty" json:"roll_number,omitempty"`
}

// Class represents a class/section in a school for one academic year
type Class struct {
	ID           string `bson:"_id" json:"id"`
	SchoolID     string `bson:"school_id" json:"school_id"`
	Name         string `bson:"name" json:"name"`
	AcademicYear string `bson:"academic_year" json:"academic_year"`
	TeacherID    string `bson:"teacher_id,omitempty" json:"teacher_id,omitempty"`
}

// ============================================================================
// Fee Models
// ============================================================================

// FeeStructure is a recurring or one-time charge definition for a class/year
type FeeStructure struct {
	ID           string          `bson:"_id" json:"id"`
	SchoolID     string          `bson:"school_id" json:"school_id"`
	ClassID      string          `bson:"class_id" json:"class_id"`
	Type         string          `bson:"type" json:"type"`
	Amount       decimal.Decimal `bson:"amount" json:"amount"`
	DueDate      time.Time       `bson:"due_date" json:"due_date"`
	AcademicYear string          `bson:"academic_year" json:"academic_year"`
	IsMonthly    bool            `bson:"is_monthly" json:"is_monthly"`
	Description  string          `bson:"description,omitempty" json:"description,omitempty"`
	CreatedAt    time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// FeePayment is immutable once written
type FeePayment struct {
	ID             string          `bson:"_id" json:"id"`
	SchoolID       string          `bson:"school_id" json:"school_id"`
	StudentID      string          `bson:"student_id" json:"student_id"`
	FeeStructureID string          `bson:"fee_structure_id,omitempty" json:"fee_structure_id,omitempty"`
	Amount         decimal.Decimal `bson:"amount" json:"amount"`
	Method         string          `bson:"method" json:"method"`
	Status         string          `bson:"status" json:"status"`
	OrderID        string          `bson:"order_id,omitempty" json:"order_id,omitempty"`
	TransactionID  string          `bson:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	RecordedBy     string          `bson:"recorded_by" json:"recorded_by"`
	Remarks        string          `bson:"remarks,omitempty" json:"remarks,omitempty"`
	PaidAt         time.Time       `bson:"paid_at" json:"paid_at"`
}

// ============================================================================
// Exam & Mark Models
// ============================================================================

// Exam defines the scale marks are recorded against
type Exam struct {
	ID         string    `bson:"_id" json:"id"`
	SchoolID   string    `bson:"school_id" json:"school_id"`
	ClassID    string    `bson:"class_id" json:"class_id"`
	Name       string    `bson:"name" json:"name"`
	Subject    string    `bson:"subject" json:"subject"`
	TotalMarks float64   `bson:"total_marks" json:"total_marks"`
	ExamDate   time.Time `bson:"exam_date" json:"exam_date"`
}

// Mark is unique per (student_id, exam_id); resubmission overwrites every derived field
type Mark struct {
	ID            string    `bson:"_id" json:"id"`
	SchoolID      string    `bson:"school_id" json:"school_id"`
	StudentID     string    `bson:"student_id" json:"student_id"`
	ExamID        string    `bson:"exam_id" json:"exam_id"`
	MarksObtained float64   `bson:"marks_obtained" json:"marks_obtained"`
	TotalMarks    float64   `bson:"total_marks" json:"total_marks"`
	Percentage    float64   `bson:"percentage" json:"percentage"`
	Grade         string    `bson:"grade" json:"grade"`
	Policy        string    `bson:"policy" json:"policy"`
	Remarks       string    `bson:"remarks" json:"remarks"`
	EnteredBy     string    `bson:"entered_by" json:"entered_by"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// ============================================================================
// Attendance & Leave Models
// ============================================================================

// Attendance is unique per (student_id, date); date is UTC midnight
type Attendance struct {
	ID        string    `bson:"_id" json:"id"`
	SchoolID  string    `bson:"school_id" json:"school_id"`
	ClassID   string    `bson:"class_id" json:"class_id"`
	StudentID string    `bson:"student_id" json:"student_id"`
	Date      time.Time `bson:"date" json:"date"`
	Status    string    `bson:"status" json:"status"`
	MarkedBy  string    `bson:"marked_by" json:"marked_by"`
	Remarks   string    `bson:"remarks" json:"remarks"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Leave is a request for absence over the inclusive range [StartDate, EndDate]
type Leave struct {
	ID                 string     `bson:"_id" json:"id"`
	SchoolID           string     `bson:"school_id" json:"school_id"`
	ClassID            string     `bson:"class_id,omitempty" json:"class_id,omitempty"`
	ApplicantID        string     `bson:"applicant_id" json:"applicant_id"`
	Role               string     `bson:"role" json:"role"`
	StartDate          time.Time  `bson:"start_date" json:"start_date"`
	EndDate            time.Time  `bson:"end_date" json:"end_date"`
	Type               string     `bson:"type" json:"type"`
	Reason             string     `bson:"reason,omitempty" json:"reason,omitempty"`
	Status             string     `bson:"status" json:"status"`
	RejectionReason    string     `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	DecidedBy          string     `bson:"decided_by,omitempty" json:"decided_by,omitempty"`
	DecidedAt          *time.Time `bson:"decided_at,omitempty" json:"decided_at,omitempty"`
	AttendanceSyncedAt *time.Time `bson:"attendance_synced_at,omitempty" json:"attendance_synced_at,omitempty"`
	CreatedAt          time.Time  `bson:"created_at" json:"created_at"`
}

// ============================================================================
// Audit Log Models
// ============================================================================

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        string                 `bson:"_id" json:"id"`
	Timestamp time.Time              `bson:"timestamp" json:"timestamp"`
	UserID    string                 `bson:"user_id" json:"user_id"`
	Action    string                 `bson:"action" json:"action"`
	Resource  string                 `bson:"resource" json:"resource"`
	Details   map[string]interface{} `bson:"details,omitempty" json:"details,omitempty"`
}

// ============================================================================
// Constants
// ============================================================================

const (
	// User roles
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"

	// Payment methods
	MethodCash     = "Cash"
	MethodOnline   = "Online"
	MethodCheque   = "Cheque"
	MethodTransfer = "Transfer"

	// Payment statuses
	PaymentCompleted = "Completed"
	PaymentPending   = "Pending"
	PaymentFailed    = "Failed"

	// Attendance statuses
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceLate    = "late"
	AttendanceExcused = "excused"
	AttendanceLeave   = "leave"

	// Leave statuses
	LeavePending  = "Pending"
	LeaveApproved = "Approved"
	LeaveRejected = "Rejected"

	// Audit actions
	ActionPaymentRecord   = "payment_record"
	ActionLeaveApprove    = "leave_approve"
	ActionLeaveReject     = "leave_reject"
	ActionLeaveResync     = "leave_resync"
	ActionFeeStructureDel = "fee_structure_delete"

	// Collections
	ColUsers         = "users"
	ColClasses       = "classes"
	ColFeeStructures = "fee_structures"
	ColFeePayments   = "fee_payments"
	ColExams         = "exams"
	ColMarks         = "marks"
	ColAttendance    = "attendance"
	ColLeaves        = "leaves"
	ColAuditLogs     = "audit_logs"
)

// IsValidRole checks if user role is valid
func IsValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}
