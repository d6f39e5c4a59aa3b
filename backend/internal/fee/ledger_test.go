package fee

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolledger/backend/internal/shared"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func student(id string) shared.User {
	return shared.User{ID: id, SchoolID: "SCH1", ClassID: "C1", Role: shared.RoleStudent}
}

func structure(id, amount string, monthly bool) shared.FeeStructure {
	return shared.FeeStructure{ID: id, SchoolID: "SCH1", ClassID: "C1", Amount: dec(amount), IsMonthly: monthly}
}

func feePayment(id, studentID, amount, status string) shared.FeePayment {
	return shared.FeePayment{ID: id, SchoolID: "SCH1", StudentID: studentID, Amount: dec(amount), Status: status}
}

func TestAnnualAmount_MonthlyTimesTwelve(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		var structures []shared.FeeStructure
		for i := 0; i < n; i++ {
			structures = append(structures, structure(fmt.Sprintf("F%d", i), "500", true))
		}
		assert.True(t, dec("6000").Mul(decimal.NewFromInt(int64(n))).Equal(TotalFees(structures)))
	}

	assert.True(t, dec("1250.50").Equal(AnnualAmount(structure("F", "1250.50", false))))
}

func TestClassify_Boundaries(t *testing.T) {
	cases := []struct {
		fees, paid, pending, status string
	}{
		{"1000", "1000", "0", StatusPaid},
		{"1000", "400", "600", StatusPartial},
		{"1000", "0", "1000", StatusPending},
		{"0", "0", "0", StatusNoDues},
		{"0", "250", "0", StatusNoDues},
		{"1000", "1500", "0", StatusPaid},
	}
	for _, c := range cases {
		pending, status := Classify(dec(c.fees), dec(c.paid))
		assert.Equal(t, c.status, status, "fees=%s paid=%s", c.fees, c.paid)
		assert.True(t, dec(c.pending).Equal(pending), "fees=%s paid=%s pending=%s", c.fees, c.paid, pending)
	}
}

func TestComputeStudentStatus(t *testing.T) {
	st := student("S1")
	structures := []shared.FeeStructure{
		structure("F1", "500", true),
		structure("F2", "1000", false),
	}
	payments := []shared.FeePayment{
		feePayment("P1", "S1", "2000", shared.PaymentCompleted),
		feePayment("P2", "S1", "3000", shared.PaymentPending),
		feePayment("P3", "S1", "700.25", shared.PaymentFailed),
	}

	got, err := ComputeStudentStatus(st, structures, payments)
	require.NoError(t, err)

	assert.True(t, dec("7000").Equal(got.TotalFees))
	assert.True(t, dec("2000").Equal(got.TotalPaid))
	assert.True(t, dec("5000").Equal(got.PendingAmount))
	assert.Equal(t, StatusPartial, got.Status)
}

func TestComputeStudentStatus_SchoolMismatch(t *testing.T) {
	st := student("S1")

	badStructure := structure("F1", "100", false)
	badStructure.SchoolID = "SCH2"
	_, err := ComputeStudentStatus(st, []shared.FeeStructure{badStructure}, nil)
	var cerr *shared.ConsistencyError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "fee_structure", cerr.Entity)

	badPayment := feePayment("P1", "S1", "100", shared.PaymentCompleted)
	badPayment.SchoolID = "SCH2"
	_, err = ComputeStudentStatus(st, nil, []shared.FeePayment{badPayment})
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "fee_payment", cerr.Entity)
	assert.Equal(t, "school_id", cerr.Field)

	otherStudent := feePayment("P2", "S9", "100", shared.PaymentCompleted)
	_, err = ComputeStudentStatus(st, nil, []shared.FeePayment{otherStudent})
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "student_id", cerr.Field)
}

func TestComputeClassStatuses(t *testing.T) {
	students := []shared.User{student("S1"), student("S2"), student("S3")}
	structures := []shared.FeeStructure{structure("F1", "100", false)}
	payments := []shared.FeePayment{
		feePayment("P1", "S1", "100", shared.PaymentCompleted),
		feePayment("P2", "S2", "40", shared.PaymentCompleted),
		feePayment("P3", "S2", "60", shared.PaymentPending),
	}

	total, statuses, err := ComputeClassStatuses(students, structures, payments)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(total))

	require.Len(t, statuses, 3)
	assert.Equal(t, StatusPaid, statuses[0].Status)
	assert.Equal(t, StatusPartial, statuses[1].Status)
	assert.Equal(t, StatusPending, statuses[2].Status)
	assert.True(t, dec("60").Equal(statuses[1].PendingAmount))
}

func TestComputeClassStatuses_RejectsForeignPayments(t *testing.T) {
	students := []shared.User{student("S1")}

	_, _, err := ComputeClassStatuses(students, nil, []shared.FeePayment{feePayment("P1", "S9", "1", shared.PaymentCompleted)})
	var cerr *shared.ConsistencyError
	require.ErrorAs(t, err, &cerr)

	p := feePayment("P2", "S1", "1", shared.PaymentCompleted)
	p.SchoolID = "SCH2"
	_, _, err = ComputeClassStatuses(students, nil, []shared.FeePayment{p})
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "school_id", cerr.Field)
}

func TestComputeClassStatuses_Large(t *testing.T) {
	const n = 2000
	students := make([]shared.User, 0, n)
	payments := make([]shared.FeePayment, 0, n*3)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("S%04d", i)
		students = append(students, student(id))
		for j := 0; j < 3; j++ {
			payments = append(payments, feePayment(fmt.Sprintf("P%d-%d", i, j), id, "10", shared.PaymentCompleted))
		}
	}

	total, statuses, err := ComputeClassStatuses(students, []shared.FeeStructure{structure("F1", "5", true)}, payments)
	require.NoError(t, err)
	assert.True(t, dec("60").Equal(total))
	require.Len(t, statuses, n)
	for _, s := range statuses {
		assert.Equal(t, StatusPartial, s.Status)
		assert.True(t, dec("30").Equal(s.TotalPaid))
	}
}
