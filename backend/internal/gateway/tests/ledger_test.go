package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"schoolledger/backend/internal/fee"
	"schoolledger/backend/internal/grading"
	"schoolledger/backend/internal/leave"
	"schoolledger/backend/internal/payment"
	"schoolledger/backend/internal/shared"
)

func TestGateway_Ledger(t *testing.T) {
	env := setupGatewayTestEnv(t)
	ctx := context.Background()

	teacher := tokenFor(t, "T1", shared.RoleTeacher, "")
	admin := tokenFor(t, "A1", shared.RoleAdmin, "")
	student := tokenFor(t, "S1", shared.RoleStudent, "C1")

	t.Run("Record marks twice keeps one row", func(t *testing.T) {
		body := map[string]interface{}{
			"policy":  "eight_band",
			"entries": []map[string]interface{}{{"student_id": "S1", "marks_obtained": 85}},
		}
		for i := 0; i < 2; i++ {
			var res grading.BatchResult
			require.Equal(t, http.StatusOK, env.call(t, "POST", "/api/exams/E1/marks", teacher, body, &res))
			require.Len(t, res.Marks, 1)
			assert.Equal(t, 85.0, res.Marks[0].Percentage)
			assert.Equal(t, "A", res.Marks[0].Grade)
		}

		n, err := env.DB.Collection(shared.ColMarks).CountDocuments(ctx, bson.M{"student_id": "S1", "exam_id": "E1"})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		var summary grading.Summary
		require.Equal(t, http.StatusOK, env.call(t, "GET", "/api/marks/students/S1/summary", student, nil, &summary))
		assert.Equal(t, 1, summary.Count)
	})

	t.Run("Verified payment updates status once", func(t *testing.T) {
		sig, err := payment.Sign("order_1", "pay_1", gatewaySecret)
		require.NoError(t, err)
		body := map[string]interface{}{
			"order_id": "order_1", "payment_id": "pay_1", "signature": sig, "amount": "2500", "fee_structure_id": "F1",
		}

		assert.Equal(t, http.StatusCreated, env.call(t, "POST", "/api/fees/payments/verify", student, body, nil))
		var replay fee.RecordResult
		assert.Equal(t, http.StatusOK, env.call(t, "POST", "/api/fees/payments/verify", student, body, &replay))
		assert.True(t, replay.AlreadyApplied)

		body["signature"] = "00" + sig[2:]
		body["payment_id"] = "pay_2"
		assert.Equal(t, http.StatusBadRequest, env.call(t, "POST", "/api/fees/payments/verify", student, body, nil))

		var report fee.StudentReport
		require.Equal(t, http.StatusOK, env.call(t, "GET", "/api/fees/students/S1/status", student, nil, &report))
		assert.True(t, decimal.NewFromInt(6000).Equal(report.TotalFees))
		assert.True(t, decimal.NewFromInt(2500).Equal(report.TotalPaid))
		assert.Equal(t, fee.StatusPartial, report.Status)

		var class fee.ClassReport
		require.Equal(t, http.StatusOK, env.call(t, "GET", "/api/fees/classes/C1/status", admin, nil, &class))
		require.Len(t, class.Students, 2)
		assert.Equal(t, fee.StatusPending, class.Students[1].Status)
	})

	t.Run("Staff of another school are refused", func(t *testing.T) {
		outsider := schoolToken(t, "SCH2", "A2", shared.RoleAdmin, "")
		offline := map[string]interface{}{"student_id": "S1", "amount": "100", "method": "Cash"}

		assert.Equal(t, http.StatusUnprocessableEntity, env.call(t, "POST", "/api/fees/payments/offline", outsider, offline, nil))
		assert.Equal(t, http.StatusUnprocessableEntity, env.call(t, "GET", "/api/fees/students/S1/status", outsider, nil, nil))
		assert.Equal(t, http.StatusUnprocessableEntity, env.call(t, "GET", "/api/fees/classes/C1/status", outsider, nil, nil))
		assert.Equal(t, http.StatusUnprocessableEntity, env.call(t, "GET", "/api/marks/students/S1/summary", outsider, nil, nil))
		assert.Equal(t, http.StatusUnprocessableEntity,
			env.call(t, "GET", "/api/attendance/students/S1?from=2024-04-01&to=2024-04-02", outsider, nil, nil))

		n, err := env.DB.Collection(shared.ColFeePayments).CountDocuments(ctx, bson.M{"student_id": "S1"})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("Fee structure with payments cannot be deleted", func(t *testing.T) {
		assert.Equal(t, http.StatusUnprocessableEntity, env.call(t, "DELETE", "/api/fees/structures/F1", admin, nil, nil))
	})

	t.Run("Leave approval overrides attendance", func(t *testing.T) {
		require.Equal(t, http.StatusOK, env.call(t, "POST", "/api/attendance/bulk", teacher, map[string]interface{}{
			"class_id": "C1", "date": "2024-04-11",
			"records": []map[string]interface{}{{"student_id": "S1", "status": "absent"}, {"student_id": "S2", "status": "present"}},
		}, nil))

		var l shared.Leave
		require.Equal(t, http.StatusCreated, env.call(t, "POST", "/api/leaves", student, map[string]interface{}{
			"start_date": "2024-04-10", "end_date": "2024-04-12", "type": "sick", "reason": "fever",
		}, &l))

		var decision leave.Decision
		require.Equal(t, http.StatusOK, env.call(t, "POST", "/api/leaves/"+l.ID+"/decision", teacher, map[string]interface{}{"status": "Approved"}, &decision))
		assert.Equal(t, 3, decision.AttendanceDays)

		var rows []shared.Attendance
		require.Equal(t, http.StatusOK, env.call(t, "GET", "/api/attendance/students/S1?from=2024-04-10&to=2024-04-12", student, nil, &rows))
		require.Len(t, rows, 3)
		for _, row := range rows {
			assert.Equal(t, shared.AttendanceLeave, row.Status)
		}

		assert.Equal(t, http.StatusConflict, env.call(t, "POST", "/api/leaves/"+l.ID+"/decision", teacher,
			map[string]interface{}{"status": "Rejected", "reason": "too late"}, nil))

		require.Equal(t, http.StatusOK, env.call(t, "POST", "/api/leaves/"+l.ID+"/resync", admin, nil, &decision))
		assert.Equal(t, 3, decision.AttendanceDays)
	})

	t.Run("Teacher leave writes no attendance", func(t *testing.T) {
		var l shared.Leave
		require.Equal(t, http.StatusCreated, env.call(t, "POST", "/api/leaves", teacher, map[string]interface{}{
			"start_date": "2024-05-01", "end_date": "2024-05-02", "type": "casual",
		}, &l))
		require.Equal(t, http.StatusOK, env.call(t, "POST", "/api/leaves/"+l.ID+"/decision", admin, map[string]interface{}{"status": "Approved"}, nil))

		n, err := env.DB.Collection(shared.ColAttendance).CountDocuments(ctx, bson.M{"student_id": "T1"})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
