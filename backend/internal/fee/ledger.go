package fee

import (
	"log"

	"github.com/shopspring/decimal"

	"schoolledger/backend/internal/shared"
)

// Status labels for a student's fee position
const (
	StatusPaid    = "Paid"
	StatusPartial = "Partial"
	StatusPending = "Pending"
	StatusNoDues  = "No Dues"
)

// monthsPerYear annualizes monthly structures regardless of calendar overlap
var monthsPerYear = decimal.NewFromInt(12)

// StudentStatus is a student's authoritative fee position
type StudentStatus struct {
	StudentID     string          `json:"student_id"`
	Name          string          `json:"name,omitempty"`
	RollNumber    string          `json:"roll_number,omitempty"`
	TotalFees     decimal.Decimal `json:"total_fees"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	Status        string          `json:"status"`
}

// AnnualAmount is what one structure contributes to a year's total
func AnnualAmount(fs shared.FeeStructure) decimal.Decimal {
	if fs.IsMonthly {
		return fs.Amount.Mul(monthsPerYear)
	}
	return fs.Amount
}

// TotalFees sums the annualized contribution of every structure
func TotalFees(structures []shared.FeeStructure) decimal.Decimal {
	total := decimal.Zero
	for _, fs := range structures {
		total = total.Add(AnnualAmount(fs))
	}
	return total
}

// TotalPaid sums Completed payments only
func TotalPaid(payments []shared.FeePayment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Status == shared.PaymentCompleted {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// Classify derives the status label. totalFees == 0 is "No Dues" whatever was paid.
func Classify(totalFees, totalPaid decimal.Decimal) (pending decimal.Decimal, status string) {
	pending = decimal.Max(decimal.Zero, totalFees.Sub(totalPaid))

	switch {
	case totalFees.IsZero():
		return pending, StatusNoDues
	case pending.IsZero():
		return pending, StatusPaid
	case totalPaid.IsPositive():
		return pending, StatusPartial
	default:
		return pending, StatusPending
	}
}

// ComputeStudentStatus computes one student's position. Every structure and
// payment must belong to the student's school (and class, for structures).
func ComputeStudentStatus(student shared.User, structures []shared.FeeStructure, payments []shared.FeePayment) (StudentStatus, error) {
	if err := checkStructures(student, structures); err != nil {
		return StudentStatus{}, err
	}
	if err := checkPayments(student, payments); err != nil {
		return StudentStatus{}, err
	}
	return statusFor(student, TotalFees(structures), payments), nil
}

// ComputeClassStatuses applies the per-student computation over a shared class
// total. Payments are partitioned by student once, so the cost is
// O(students + payments).
func ComputeClassStatuses(students []shared.User, structures []shared.FeeStructure, payments []shared.FeePayment) (decimal.Decimal, []StudentStatus, error) {
	byStudent := make(map[string][]shared.FeePayment, len(students))
	known := make(map[string]shared.User, len(students))
	for _, s := range students {
		known[s.ID] = s
	}

	for _, p := range payments {
		student, ok := known[p.StudentID]
		if !ok {
			return decimal.Zero, nil, integrity(&shared.ConsistencyError{
				Entity: "fee_payment", EntityID: p.ID, Field: "student_id", Expected: "student of this class", Actual: p.StudentID,
			})
		}
		if p.SchoolID != student.SchoolID {
			return decimal.Zero, nil, integrity(&shared.ConsistencyError{
				Entity: "fee_payment", EntityID: p.ID, Field: "school_id", Expected: student.SchoolID, Actual: p.SchoolID,
			})
		}
		byStudent[p.StudentID] = append(byStudent[p.StudentID], p)
	}

	totalClassFees := TotalFees(structures)
	statuses := make([]StudentStatus, 0, len(students))
	for _, s := range students {
		if err := checkStructures(s, structures); err != nil {
			return decimal.Zero, nil, err
		}
		statuses = append(statuses, statusFor(s, totalClassFees, byStudent[s.ID]))
	}
	return totalClassFees, statuses, nil
}

func statusFor(student shared.User, totalFees decimal.Decimal, payments []shared.FeePayment) StudentStatus {
	paid := TotalPaid(payments)
	pending, status := Classify(totalFees, paid)
	return StudentStatus{
		StudentID:     student.ID,
		Name:          student.Name,
		RollNumber:    student.RollNumber,
		TotalFees:     totalFees,
		TotalPaid:     paid,
		PendingAmount: pending,
		Status:        status,
	}
}

func checkStructures(student shared.User, structures []shared.FeeStructure) error {
	for _, fs := range structures {
		if fs.SchoolID != student.SchoolID {
			return integrity(&shared.ConsistencyError{
				Entity: "fee_structure", EntityID: fs.ID, Field: "school_id", Expected: student.SchoolID, Actual: fs.SchoolID,
			})
		}
		if student.ClassID != "" && fs.ClassID != student.ClassID {
			return integrity(&shared.ConsistencyError{
				Entity: "fee_structure", EntityID: fs.ID, Field: "class_id", Expected: student.ClassID, Actual: fs.ClassID,
			})
		}
	}
	return nil
}

func checkPayments(student shared.User, payments []shared.FeePayment) error {
	for _, p := range payments {
		if p.SchoolID != student.SchoolID {
			return integrity(&shared.ConsistencyError{
				Entity: "fee_payment", EntityID: p.ID, Field: "school_id", Expected: student.SchoolID, Actual: p.SchoolID,
			})
		}
		if p.StudentID != student.ID {
			return integrity(&shared.ConsistencyError{
				Entity: "fee_payment", EntityID: p.ID, Field: "student_id", Expected: student.ID, Actual: p.StudentID,
			})
		}
	}
	return nil
}

func integrity(err *shared.ConsistencyError) error {
	log.Printf("[DataIntegrity] %v", err)
	return err
}
