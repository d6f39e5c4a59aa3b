package leave

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolledger/backend/internal/attendance"
	"schoolledger/backend/internal/shared"
	"schoolledger/backend/internal/shared/sharedtest"
)

func TestMongoStore_Integration(t *testing.T) {
	db := sharedtest.Connect(t)
	ctx := context.Background()

	svc := NewService(NewMongoStore(db), attendance.NewReconciler(attendance.NewMongoStore(db), 31), shared.NewMongoAuditor(db))

	t.Run("Concurrent decisions have one winner", func(t *testing.T) {
		l := apply(t, svc, shared.RoleStudent)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, status := range []string{shared.LeaveApproved, shared.LeaveRejected} {
			wg.Add(1)
			go func(i int, status string) {
				defer wg.Done()
				_, errs[i] = svc.Decide(ctx, DecideInput{LeaveID: l.ID, DecidedBy: "T1", Status: status, Reason: "r"})
			}(i, status)
		}
		wg.Wait()

		failures := 0
		for _, err := range errs {
			if err != nil {
				var serr *shared.StateError
				assert.ErrorAs(t, err, &serr)
				failures++
			}
		}
		assert.Equal(t, 1, failures)
	})

	t.Run("Approval backfills attendance", func(t *testing.T) {
		l := apply(t, svc, shared.RoleStudent)
		res, err := svc.Decide(ctx, DecideInput{LeaveID: l.ID, DecidedBy: "T1", Status: shared.LeaveApproved})
		require.NoError(t, err)
		assert.Equal(t, 3, res.AttendanceDays)

		n, err := db.Collection(shared.ColAttendance).CountDocuments(ctx, map[string]interface{}{"student_id": "U1", "status": shared.AttendanceLeave})
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
	})
}
