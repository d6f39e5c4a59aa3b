package attendance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"schoolledger/backend/internal/shared"
	"schoolledger/backend/internal/shared/sharedtest"
)

func TestMongoStore_Integration(t *testing.T) {
	db := sharedtest.Connect(t)
	ctx := context.Background()
	store := NewMongoStore(db)
	r := NewReconciler(store, 31)

	_, err := db.Collection(shared.ColClasses).InsertOne(ctx, shared.Class{ID: "C1", SchoolID: "SCH1"})
	require.NoError(t, err)
	_, err = db.Collection(shared.ColUsers).InsertOne(ctx, shared.User{ID: "S1", SchoolID: "SCH1", ClassID: "C1", Role: shared.RoleStudent})
	require.NoError(t, err)

	count := func(t *testing.T) int64 {
		n, err := db.Collection(shared.ColAttendance).CountDocuments(ctx, bson.M{"student_id": "S1"})
		require.NoError(t, err)
		return n
	}

	t.Run("Bulk mark then backfill overwrites", func(t *testing.T) {
		_, err := r.BulkMark(ctx, BulkMarkInput{
			ClassID: "C1", Date: "2024-04-11", MarkedBy: "T1",
			Records: []Record{{StudentID: "S1", Status: shared.AttendanceAbsent}},
		})
		require.NoError(t, err)
		assert.EqualValues(t, 1, count(t))

		in := BackfillInput{StudentID: "S1", ClassID: "C1", SchoolID: "SCH1", StartDate: day("2024-04-10"), EndDate: day("2024-04-12"), ApprovedBy: "A1"}
		for i := 0; i < 2; i++ {
			n, err := r.BackfillLeaveApproval(ctx, in)
			require.NoError(t, err)
			assert.Equal(t, 3, n)
			assert.EqualValues(t, 3, count(t))
		}

		rows, err := r.History(ctx, "", "S1", "2024-04-10", "2024-04-12")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		for _, row := range rows {
			assert.Equal(t, shared.AttendanceLeave, row.Status)
			assert.Equal(t, "A1", row.MarkedBy)
		}
	})
}
