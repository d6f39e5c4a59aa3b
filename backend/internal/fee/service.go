package fee

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"schoolledger/backend/internal/shared"
)

// Store is the persistence the fee service needs
type Store interface {
	FindStudent(ctx context.Context, studentID string) (*shared.User, error)
	ListClassStudents(ctx context.Context, classID string) ([]shared.User, error)
	FindClass(ctx context.Context, classID string) (*shared.Class, error)

	ListStructures(ctx context.Context, classID, academicYear string) ([]shared.FeeStructure, error)
	FindStructure(ctx context.Context, id string) (*shared.FeeStructure, error)
	InsertStructure(ctx context.Context, fs *shared.FeeStructure) error
	UpdateStructure(ctx context.Context, fs *shared.FeeStructure) error
	DeleteStructure(ctx context.Context, id string) error
	CountStructurePayments(ctx context.Context, structureID string) (int64, error)

	ListPayments(ctx context.Context, studentIDs []string) ([]shared.FeePayment, error)
	FindPaymentByTransaction(ctx context.Context, transactionID string) (*shared.FeePayment, error)
	InsertPayment(ctx context.Context, p *shared.FeePayment) error
}

// PaymentChecker authorizes a claimed online payment
type PaymentChecker interface {
	Check(orderID, paymentID, signature string) error
}

// Service runs fee queries and payment recording
type Service struct {
	store    Store
	verifier PaymentChecker
	auditor  shared.Auditor
	now      func() time.Time
}

// NewService creates a new Service instance
func NewService(store Store, verifier PaymentChecker, auditor shared.Auditor) *Service {
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	return &Service{
		store:    store,
		verifier: verifier,
		auditor:  auditor,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ============================================================================
// Status queries
// ============================================================================

// StudentReport is a student's status with the documents it was computed from
type StudentReport struct {
	StudentStatus
	FeeStructures []shared.FeeStructure `json:"fee_structures"`
	Payments      []shared.FeePayment   `json:"payments"`
}

// ClassReport lists every student's status under the shared class total
type ClassReport struct {
	ClassID        string          `json:"class_id"`
	AcademicYear   string          `json:"academic_year,omitempty"`
	TotalClassFees decimal.Decimal `json:"total_class_fees"`
	Students       []StudentStatus `json:"students"`
}

// StatusQuery scopes a status report. SchoolID is the caller's school and is
// enforced when set. AcademicYear narrows both the structures and the payments
// counted against them; payments not tied to a listed structure drop out.
type StatusQuery struct {
	SchoolID     string
	AcademicYear string
}

// StudentStatus loads a student's structures and payments and computes their position
func (s *Service) StudentStatus(ctx context.Context, studentID string, q StatusQuery) (*StudentReport, error) {
	if studentID == "" {
		return nil, shared.NewValidationError("student_id is required")
	}

	student, err := s.findStudent(ctx, studentID, q.SchoolID)
	if err != nil {
		return nil, err
	}

	var structures []shared.FeeStructure
	if student.ClassID != "" {
		if structures, err = s.store.ListStructures(ctx, student.ClassID, q.AcademicYear); err != nil {
			return nil, fmt.Errorf("list fee structures for %s: %w", student.ClassID, err)
		}
	}
	payments, err := s.store.ListPayments(ctx, []string{studentID})
	if err != nil {
		return nil, fmt.Errorf("list payments for %s: %w", studentID, err)
	}
	payments = forYear(payments, structures, q.AcademicYear)

	status, err := ComputeStudentStatus(*student, structures, payments)
	if err != nil {
		return nil, err
	}

	if structures == nil {
		structures = []shared.FeeStructure{}
	}
	if payments == nil {
		payments = []shared.FeePayment{}
	}
	return &StudentReport{StudentStatus: status, FeeStructures: structures, Payments: payments}, nil
}

// ClassStatus computes every student's position in a class. Each row matches
// what StudentStatus returns for that student under the same query.
func (s *Service) ClassStatus(ctx context.Context, classID string, q StatusQuery) (*ClassReport, error) {
	if classID == "" {
		return nil, shared.NewValidationError("class_id is required")
	}

	class, err := s.checkClass(ctx, classID, q.SchoolID)
	if err != nil {
		return nil, err
	}

	students, err := s.store.ListClassStudents(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("list students for %s: %w", classID, err)
	}
	for _, st := range students {
		if st.SchoolID != class.SchoolID {
			return nil, integrity(&shared.ConsistencyError{Entity: "student", EntityID: st.ID, Field: "school_id", Expected: class.SchoolID, Actual: st.SchoolID})
		}
	}

	structures, err := s.store.ListStructures(ctx, classID, q.AcademicYear)
	if err != nil {
		return nil, fmt.Errorf("list fee structures for %s: %w", classID, err)
	}

	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	payments, err := s.store.ListPayments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list payments for class %s: %w", classID, err)
	}
	payments = forYear(payments, structures, q.AcademicYear)

	total, statuses, err := ComputeClassStatuses(students, structures, payments)
	if err != nil {
		return nil, err
	}
	return &ClassReport{ClassID: classID, AcademicYear: q.AcademicYear, TotalClassFees: total, Students: statuses}, nil
}

// forYear keeps the payments made against one of structures. Without a year
// every payment counts.
func forYear(payments []shared.FeePayment, structures []shared.FeeStructure, academicYear string) []shared.FeePayment {
	if academicYear == "" {
		return payments
	}
	listed := make(map[string]bool, len(structures))
	for _, fs := range structures {
		listed[fs.ID] = true
	}
	var out []shared.FeePayment
	for _, p := range payments {
		if listed[p.FeeStructureID] {
			out = append(out, p)
		}
	}
	return out
}

// ============================================================================
// Payment recording
// ============================================================================

// OnlinePaymentInput is a gateway checkout result awaiting verification
type OnlinePaymentInput struct {
	SchoolID       string          `json:"-"`
	StudentID      string          `json:"student_id" validate:"required"`
	OrderID        string          `json:"order_id" validate:"required"`
	PaymentID      string          `json:"payment_id" validate:"required"`
	Signature      string          `json:"signature" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	FeeStructureID string          `json:"fee_structure_id" validate:"required"`
	RecordedBy     string          `json:"-"`
}

// OfflinePaymentInput is a payment taken at the counter
type OfflinePaymentInput struct {
	SchoolID       string          `json:"-"`
	StudentID      string          `json:"student_id" validate:"required"`
	FeeStructureID string          `json:"fee_structure_id"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method" validate:"required,oneof=Cash Cheque Transfer"`
	TransactionID  string          `json:"transaction_id"`
	Remarks        string          `json:"remarks"`
	RecordedBy     string          `json:"-"`
}

// RecordResult is the persisted payment. AlreadyApplied means an earlier call
// recorded the same gateway transaction and nothing new was written.
type RecordResult struct {
	Payment        *shared.FeePayment `json:"payment"`
	AlreadyApplied bool               `json:"already_applied"`
}

// VerifyAndRecord persists an online payment as Completed only after the
// gateway signature checks out. Each transaction is applied at most once.
func (s *Service) VerifyAndRecord(ctx context.Context, in OnlinePaymentInput) (*RecordResult, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, shared.NewValidationError("invalid amount", shared.FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	if err := s.verifier.Check(in.OrderID, in.PaymentID, in.Signature); err != nil {
		log.Printf("[FeeLedger] rejected payment order=%s payment=%s: %v", in.OrderID, in.PaymentID, err)
		return nil, err
	}

	if prior, err := s.priorPayment(ctx, in.PaymentID, in.SchoolID); err != nil || prior != nil {
		return prior, err
	}

	student, fs, err := s.loadTarget(ctx, in.StudentID, in.FeeStructureID, in.SchoolID)
	if err != nil {
		return nil, err
	}

	payment := &shared.FeePayment{
		ID:             shared.GenerateID("PAY"),
		SchoolID:       student.SchoolID,
		StudentID:      student.ID,
		FeeStructureID: fs.ID,
		Amount:         in.Amount,
		Method:         shared.MethodOnline,
		Status:         shared.PaymentCompleted,
		OrderID:        in.OrderID,
		TransactionID:  in.PaymentID,
		RecordedBy:     in.RecordedBy,
		Remarks:        "Online payment",
		PaidAt:         s.now(),
	}
	return s.insert(ctx, payment)
}

// RecordOffline records a Cash, Cheque or Transfer payment as Completed
func (s *Service) RecordOffline(ctx context.Context, in OfflinePaymentInput) (*RecordResult, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, shared.NewValidationError("invalid amount", shared.FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	if in.TransactionID != "" {
		if prior, err := s.priorPayment(ctx, in.TransactionID, in.SchoolID); err != nil || prior != nil {
			return prior, err
		}
	}

	student, err := s.findStudent(ctx, in.StudentID, in.SchoolID)
	if err != nil {
		return nil, err
	}
	structureID := ""
	if in.FeeStructureID != "" {
		_, fs, err := s.loadTarget(ctx, in.StudentID, in.FeeStructureID, in.SchoolID)
		if err != nil {
			return nil, err
		}
		structureID = fs.ID
	}

	payment := &shared.FeePayment{
		ID:             shared.GenerateID("PAY"),
		SchoolID:       student.SchoolID,
		StudentID:      student.ID,
		FeeStructureID: structureID,
		Amount:         in.Amount,
		Method:         in.Method,
		Status:         shared.PaymentCompleted,
		TransactionID:  in.TransactionID,
		RecordedBy:     in.RecordedBy,
		Remarks:        in.Remarks,
		PaidAt:         s.now(),
	}
	return s.insert(ctx, payment)
}

func (s *Service) priorPayment(ctx context.Context, transactionID, schoolID string) (*RecordResult, error) {
	prior, err := s.store.FindPaymentByTransaction(ctx, transactionID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup transaction %s: %w", transactionID, err)
	}
	if schoolID != "" && prior.SchoolID != schoolID {
		return nil, &shared.ConsistencyError{Entity: "fee_payment", EntityID: prior.ID, Field: "school_id", Expected: schoolID, Actual: prior.SchoolID}
	}
	if prior.Status != shared.PaymentCompleted {
		return nil, &shared.StateError{Entity: "fee_payment " + prior.ID, From: prior.Status, To: shared.PaymentCompleted}
	}
	return &RecordResult{Payment: prior, AlreadyApplied: true}, nil
}

// findStudent loads a student and, when schoolID is set, requires it to match
func (s *Service) findStudent(ctx context.Context, studentID, schoolID string) (*shared.User, error) {
	student, err := s.store.FindStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if schoolID != "" && student.SchoolID != schoolID {
		return nil, &shared.ConsistencyError{Entity: "student", EntityID: studentID, Field: "school_id", Expected: schoolID, Actual: student.SchoolID}
	}
	return student, nil
}

func (s *Service) loadTarget(ctx context.Context, studentID, structureID, schoolID string) (*shared.User, *shared.FeeStructure, error) {
	student, err := s.findStudent(ctx, studentID, schoolID)
	if err != nil {
		return nil, nil, err
	}
	fs, err := s.store.FindStructure(ctx, structureID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkStructures(*student, []shared.FeeStructure{*fs}); err != nil {
		return nil, nil, err
	}
	return student, fs, nil
}

// insert writes once. A duplicate transaction_id means a concurrent call won
// the race, so its payment is returned as already applied.
func (s *Service) insert(ctx context.Context, p *shared.FeePayment) (*RecordResult, error) {
	err := s.store.InsertPayment(ctx, p)
	if shared.IsDuplicateKey(err) && p.TransactionID != "" {
		return s.priorPayment(ctx, p.TransactionID, p.SchoolID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert payment for %s: %w", p.StudentID, err)
	}

	s.auditor.Record(ctx, p.RecordedBy, shared.ActionPaymentRecord, p.ID, map[string]interface{}{
		"student_id":     p.StudentID,
		"amount":         p.Amount.String(),
		"method":         p.Method,
		"transaction_id": p.TransactionID,
	})
	log.Printf("[FeeLedger] recorded %s payment %s for %s (%s)", p.Method, p.ID, p.StudentID, p.Amount)
	return &RecordResult{Payment: p}, nil
}

// ============================================================================
// Fee structure lifecycle
// ============================================================================

// StructureInput creates or replaces a fee structure
type StructureInput struct {
	SchoolID     string          `json:"-"`
	ClassID      string          `json:"class_id" validate:"required"`
	Type         string          `json:"type" validate:"required"`
	Amount       decimal.Decimal `json:"amount"`
	DueDate      string          `json:"due_date" validate:"required,date"`
	AcademicYear string          `json:"academic_year" validate:"required"`
	IsMonthly    bool            `json:"is_monthly"`
	Description  string          `json:"description"`
}

func (in StructureInput) validate() (time.Time, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return time.Time{}, err
	}
	if !in.Amount.IsPositive() {
		return time.Time{}, shared.NewValidationError("invalid amount", shared.FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	return shared.ParseDate(in.DueDate)
}

// CreateStructure adds a fee structure to a class in the caller's school
func (s *Service) CreateStructure(ctx context.Context, in StructureInput) (*shared.FeeStructure, error) {
	due, err := in.validate()
	if err != nil {
		return nil, err
	}
	class, err := s.checkClass(ctx, in.ClassID, in.SchoolID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fs := &shared.FeeStructure{
		ID:           shared.GenerateID("FEE"),
		SchoolID:     class.SchoolID,
		ClassID:      in.ClassID,
		Type:         shared.CleanString(in.Type),
		Amount:       in.Amount,
		DueDate:      due,
		AcademicYear: in.AcademicYear,
		IsMonthly:    in.IsMonthly,
		Description:  in.Description,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertStructure(ctx, fs); err != nil {
		return nil, fmt.Errorf("insert fee structure: %w", err)
	}
	return fs, nil
}

// UpdateStructure replaces the editable fields of a structure
func (s *Service) UpdateStructure(ctx context.Context, id string, in StructureInput) (*shared.FeeStructure, error) {
	due, err := in.validate()
	if err != nil {
		return nil, err
	}

	fs, err := s.store.FindStructure(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.SchoolID != "" && fs.SchoolID != in.SchoolID {
		return nil, &shared.ConsistencyError{Entity: "fee_structure", EntityID: id, Field: "school_id", Expected: in.SchoolID, Actual: fs.SchoolID}
	}
	if in.ClassID != fs.ClassID {
		if _, err := s.checkClass(ctx, in.ClassID, fs.SchoolID); err != nil {
			return nil, err
		}
	}

	fs.ClassID = in.ClassID
	fs.Type = shared.CleanString(in.Type)
	fs.Amount = in.Amount
	fs.DueDate = due
	fs.AcademicYear = in.AcademicYear
	fs.IsMonthly = in.IsMonthly
	fs.Description = in.Description
	fs.UpdatedAt = s.now()

	if err := s.store.UpdateStructure(ctx, fs); err != nil {
		return nil, fmt.Errorf("update fee structure %s: %w", id, err)
	}
	return fs, nil
}

// DeleteStructure removes a structure no payment references
func (s *Service) DeleteStructure(ctx context.Context, id, schoolID, userID string) error {
	fs, err := s.store.FindStructure(ctx, id)
	if err != nil {
		return err
	}
	if schoolID != "" && fs.SchoolID != schoolID {
		return &shared.ConsistencyError{Entity: "fee_structure", EntityID: id, Field: "school_id", Expected: schoolID, Actual: fs.SchoolID}
	}

	n, err := s.store.CountStructurePayments(ctx, id)
	if err != nil {
		return fmt.Errorf("count payments for %s: %w", id, err)
	}
	if n > 0 {
		return &shared.ConsistencyError{Entity: "fee_structure", EntityID: id, Field: "payments", Expected: "0", Actual: fmt.Sprint(n)}
	}

	if err := s.store.DeleteStructure(ctx, id); err != nil {
		return fmt.Errorf("delete fee structure %s: %w", id, err)
	}
	s.auditor.Record(ctx, userID, shared.ActionFeeStructureDel, id, map[string]interface{}{"class_id": fs.ClassID})
	return nil
}

func (s *Service) checkClass(ctx context.Context, classID, schoolID string) (*shared.Class, error) {
	class, err := s.store.FindClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if schoolID != "" && class.SchoolID != schoolID {
		return nil, &shared.ConsistencyError{Entity: "class", EntityID: classID, Field: "school_id", Expected: schoolID, Actual: class.SchoolID}
	}
	return class, nil
}
