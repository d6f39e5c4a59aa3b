package leave

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolledger/backend/internal/attendance"
	"schoolledger/backend/internal/shared"
)

type memStore struct {
	leaves map[string]shared.Leave
}

func (m *memStore) Insert(_ context.Context, l *shared.Leave) error {
	m.leaves[l.ID] = *l
	return nil
}

func (m *memStore) Find(_ context.Context, id string) (*shared.Leave, error) {
	l, ok := m.leaves[id]
	if !ok {
		return nil, &shared.NotFoundError{Entity: "leave", ID: id}
	}
	return &l, nil
}

func (m *memStore) Decide(_ context.Context, id, status, by, reason string, at time.Time) (*shared.Leave, error) {
	l, ok := m.leaves[id]
	if !ok {
		return nil, &shared.NotFoundError{Entity: "leave", ID: id}
	}
	if l.Status != shared.LeavePending {
		return nil, &shared.StateError{Entity: "leave", From: l.Status, To: status}
	}
	l.Status, l.DecidedBy, l.RejectionReason, l.DecidedAt = status, by, reason, &at
	m.leaves[id] = l
	return &l, nil
}

func (m *memStore) MarkSynced(_ context.Context, id string, at time.Time) error {
	l := m.leaves[id]
	l.AttendanceSyncedAt = &at
	m.leaves[id] = l
	return nil
}

type fakeBackfiller struct {
	calls []attendance.BackfillInput
	err   error
}

func (f *fakeBackfiller) BackfillLeaveApproval(_ context.Context, in attendance.BackfillInput) (int, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return 0, f.err
	}
	return shared.DaysBetweenInclusive(in.StartDate, in.EndDate), nil
}

func (f *fakeBackfiller) CheckRange(start, end time.Time) error {
	if end.Before(start) {
		return shared.NewValidationError("invalid date range")
	}
	return nil
}

func setup() (*Service, *memStore, *fakeBackfiller) {
	store := &memStore{leaves: map[string]shared.Leave{}}
	bf := &fakeBackfiller{}
	svc := NewService(store, bf, nil)
	svc.now = func() time.Time { return time.Date(2024, 4, 20, 12, 0, 0, 0, time.UTC) }
	return svc, store, bf
}

func apply(t *testing.T, svc *Service, role string) *shared.Leave {
	t.Helper()
	l, err := svc.Apply(context.Background(), ApplyInput{
		ApplicantID: "U1", Role: role, SchoolID: "SCH1", ClassID: "C1",
		StartDate: "2024-04-10", EndDate: "2024-04-12", Type: "sick", Reason: "flu",
	})
	require.NoError(t, err)
	return l
}

func TestApply(t *testing.T) {
	svc, store, _ := setup()
	l := apply(t, svc, shared.RoleStudent)

	assert.Equal(t, shared.LeavePending, l.Status)
	assert.Equal(t, time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC), l.StartDate)
	assert.Contains(t, store.leaves, l.ID)

	_, err := svc.Apply(context.Background(), ApplyInput{
		ApplicantID: "U1", Role: shared.RoleStudent, SchoolID: "SCH1", ClassID: "C1",
		StartDate: "2024-04-12", EndDate: "2024-04-10", Type: "sick",
	})
	var verr *shared.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Apply(context.Background(), ApplyInput{
		ApplicantID: "U1", Role: shared.RoleStudent, SchoolID: "SCH1",
		StartDate: "2024-04-10", EndDate: "2024-04-10", Type: "sick",
	})
	assert.ErrorAs(t, err, &verr)
}

func TestDecide_ApproveStudentBackfills(t *testing.T) {
	svc, store, bf := setup()
	l := apply(t, svc, shared.RoleStudent)

	res, err := svc.Decide(context.Background(), DecideInput{LeaveID: l.ID, SchoolID: "SCH1", DecidedBy: "T1", Status: shared.LeaveApproved})
	require.NoError(t, err)

	assert.Equal(t, 3, res.AttendanceDays)
	require.Len(t, bf.calls, 1)
	assert.Equal(t, attendance.BackfillInput{
		StudentID: "U1", ClassID: "C1", SchoolID: "SCH1",
		StartDate: l.StartDate, EndDate: l.EndDate, ApprovedBy: "T1",
	}, bf.calls[0])

	stored := store.leaves[l.ID]
	assert.Equal(t, shared.LeaveApproved, stored.Status)
	assert.NotNil(t, stored.AttendanceSyncedAt)
}

func TestDecide_ApproveTeacherWritesNoAttendance(t *testing.T) {
	svc, _, bf := setup()
	l := apply(t, svc, shared.RoleTeacher)

	res, err := svc.Decide(context.Background(), DecideInput{LeaveID: l.ID, DecidedBy: "A1", Status: shared.LeaveApproved})
	require.NoError(t, err)
	assert.Zero(t, res.AttendanceDays)
	assert.Empty(t, bf.calls)
}

func TestDecide_RejectRequiresReason(t *testing.T) {
	svc, store, bf := setup()
	l := apply(t, svc, shared.RoleStudent)

	_, err := svc.Decide(context.Background(), DecideInput{LeaveID: l.ID, DecidedBy: "T1", Status: shared.LeaveRejected, Reason: "  "})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, shared.LeavePending, store.leaves[l.ID].Status)

	res, err := svc.Decide(context.Background(), DecideInput{LeaveID: l.ID, DecidedBy: "T1", Status: shared.LeaveRejected, Reason: "exam week"})
	require.NoError(t, err)
	assert.Equal(t, "exam week", res.Leave.RejectionReason)
	assert.Empty(t, bf.calls)
}

func TestDecide_TerminalStatesAreFinal(t *testing.T) {
	svc, store, bf := setup()
	ctx := context.Background()
	l := apply(t, svc, shared.RoleStudent)

	_, err := svc.Decide(ctx, DecideInput{LeaveID: l.ID, DecidedBy: "T1", Status: shared.LeaveApproved})
	require.NoError(t, err)
	before := store.leaves[l.ID]

	for _, next := range []string{shared.LeaveRejected, shared.LeaveApproved} {
		_, err = svc.Decide(ctx, DecideInput{LeaveID: l.ID, DecidedBy: "T2", Status: next, Reason: "changed mind"})
		var serr *shared.StateError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, shared.LeaveApproved, serr.From)
	}

	assert.Equal(t, before, store.leaves[l.ID])
	assert.Len(t, bf.calls, 1)
}

func TestDecide_BackfillFailureThenResync(t *testing.T) {
	svc, store, bf := setup()
	ctx := context.Background()
	l := apply(t, svc, shared.RoleStudent)

	bf.err = errors.New("connection reset")
	_, err := svc.Decide(ctx, DecideInput{LeaveID: l.ID, DecidedBy: "T1", Status: shared.LeaveApproved})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resync")

	stored := store.leaves[l.ID]
	assert.Equal(t, shared.LeaveApproved, stored.Status)
	assert.Nil(t, stored.AttendanceSyncedAt)

	bf.err = nil
	res, err := svc.ResyncAttendance(ctx, l.ID, "SCH1", "A1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.AttendanceDays)
	assert.Equal(t, "T1", bf.calls[len(bf.calls)-1].ApprovedBy)
	assert.NotNil(t, store.leaves[l.ID].AttendanceSyncedAt)
}

func TestResync_RequiresApprovedStudentLeave(t *testing.T) {
	svc, _, _ := setup()
	ctx := context.Background()

	pending := apply(t, svc, shared.RoleStudent)
	_, err := svc.ResyncAttendance(ctx, pending.ID, "", "A1")
	var serr *shared.StateError
	assert.ErrorAs(t, err, &serr)

	teacher := apply(t, svc, shared.RoleTeacher)
	_, err = svc.Decide(ctx, DecideInput{LeaveID: teacher.ID, DecidedBy: "A1", Status: shared.LeaveApproved})
	require.NoError(t, err)
	_, err = svc.ResyncAttendance(ctx, teacher.ID, "", "A1")
	var verr *shared.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.ResyncAttendance(ctx, "missing", "", "A1")
	assert.True(t, shared.IsNotFound(err))
}
