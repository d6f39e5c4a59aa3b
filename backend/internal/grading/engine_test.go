package grading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolledger/backend/internal/shared"
)

type memStore struct {
	mu       sync.Mutex
	exams    map[string]shared.Exam
	students map[string]shared.User
	marks    map[string]shared.Mark
	upserts  int
	failOn   string
}

func newMemStore() *memStore {
	return &memStore{
		exams:    map[string]shared.Exam{},
		students: map[string]shared.User{},
		marks:    map[string]shared.Mark{},
	}
}

func (m *memStore) FindExam(_ context.Context, id string) (*shared.Exam, error) {
	exam, ok := m.exams[id]
	if !ok {
		return nil, &shared.NotFoundError{Entity: "exam", ID: id}
	}
	return &exam, nil
}

func (m *memStore) FindStudents(_ context.Context, ids []string) (map[string]shared.User, error) {
	out := map[string]shared.User{}
	for _, id := range ids {
		if u, ok := m.students[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (m *memStore) UpsertMark(_ context.Context, mark *shared.Mark) (*shared.Mark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mark.StudentID == m.failOn {
		return nil, errors.New("write failed")
	}
	m.upserts++

	key := mark.StudentID + "|" + mark.ExamID
	stored := *mark
	if prev, ok := m.marks[key]; ok {
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
		if sameFields(prev, stored) {
			stored.UpdatedAt = prev.UpdatedAt
		}
	}
	m.marks[key] = stored
	return &stored, nil
}

func (m *memStore) ListStudentMarks(_ context.Context, studentID string) ([]shared.Mark, error) {
	var out []shared.Mark
	for _, mk := range m.marks {
		if mk.StudentID == studentID {
			out = append(out, mk)
		}
	}
	return out, nil
}

func sameFields(a, b shared.Mark) bool {
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	return a == b
}

func fixedEngine(store Store) *Engine {
	e := NewEngine(store)
	e.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	return e
}

func TestComputeMark(t *testing.T) {
	pct, grade, err := ComputeMark(85, 100, PolicyEightBand)
	require.NoError(t, err)
	assert.Equal(t, 85.0, pct)
	assert.Equal(t, "A", grade)

	pct, _, err = ComputeMark(2, 3, PolicySixBand)
	require.NoError(t, err)
	assert.Equal(t, 66.67, pct)

	pct, grade, err = ComputeMark(0, 50, PolicySixBand)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pct)
	assert.Equal(t, "F", grade)
}

func TestComputeMark_Invalid(t *testing.T) {
	var verr *shared.ValidationError

	_, _, err := ComputeMark(101, 100, PolicyEightBand)
	assert.ErrorAs(t, err, &verr)

	_, _, err = ComputeMark(-1, 100, PolicyEightBand)
	assert.ErrorAs(t, err, &verr)

	_, _, err = ComputeMark(10, 0, PolicyEightBand)
	assert.ErrorAs(t, err, &verr)
}

func TestRecordMark_Idempotent(t *testing.T) {
	store := newMemStore()
	engine := fixedEngine(store)
	ctx := context.Background()

	in := MarkInput{
		SchoolID: "SCH1", StudentID: "S1", ExamID: "E1",
		MarksObtained: 85, ExamTotalMarks: 100, Policy: PolicyEightBand, EnteredBy: "T1",
	}

	first, err := engine.RecordMark(ctx, in)
	require.NoError(t, err)
	engine.now = func() time.Time { return time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC) }
	second, err := engine.RecordMark(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, store.marks, 1)
	assert.Equal(t, 85.0, second.Percentage)
	assert.Equal(t, "A", second.Grade)
}

func TestRecordMark_ResubmissionOverwrites(t *testing.T) {
	store := newMemStore()
	engine := fixedEngine(store)
	ctx := context.Background()

	in := MarkInput{SchoolID: "SCH1", StudentID: "S1", ExamID: "E1", MarksObtained: 40, ExamTotalMarks: 50, Policy: PolicySixBand}
	first, err := engine.RecordMark(ctx, in)
	require.NoError(t, err)

	in.MarksObtained = 20
	later := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return later }
	second, err := engine.RecordMark(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, later, second.UpdatedAt)
	assert.Equal(t, 40.0, second.Percentage)
	assert.Equal(t, "F", second.Grade)
	assert.Len(t, store.marks, 1)
}

func TestRecordMarks_PartialFailure(t *testing.T) {
	store := newMemStore()
	store.exams["E1"] = shared.Exam{ID: "E1", SchoolID: "SCH1", TotalMarks: 100}
	store.students["S1"] = shared.User{ID: "S1", SchoolID: "SCH1", Role: shared.RoleStudent}
	store.students["S2"] = shared.User{ID: "S2", SchoolID: "SCH2", Role: shared.RoleStudent}
	store.students["S3"] = shared.User{ID: "S3", SchoolID: "SCH1", Role: shared.RoleStudent}
	store.students["S4"] = shared.User{ID: "S4", SchoolID: "SCH1", Role: shared.RoleStudent}
	store.failOn = "S4"

	engine := fixedEngine(store)
	res, err := engine.RecordMarks(context.Background(), BatchInput{
		SchoolID: "SCH1",
		ExamID:   "E1",
		Policy:   PolicyEightBand,
		Entries: []Entry{
			{StudentID: "S1", MarksObtained: 91},
			{StudentID: "S2", MarksObtained: 50},
			{StudentID: "S3", MarksObtained: 150},
			{StudentID: "S4", MarksObtained: 70},
			{StudentID: "GHOST", MarksObtained: 70},
		},
	})
	require.NoError(t, err)

	require.Len(t, res.Marks, 1)
	assert.Equal(t, "S1", res.Marks[0].StudentID)
	assert.Equal(t, "A+", res.Marks[0].Grade)

	require.Len(t, res.Failures, 4)
	assert.Equal(t, []int{1, 2, 3, 4}, []int{res.Failures[0].Index, res.Failures[1].Index, res.Failures[2].Index, res.Failures[3].Index})
	assert.Contains(t, res.Failures[0].Error, "school_id mismatch")
	assert.Contains(t, res.Failures[3].Error, "not found")
}

func TestRecordMarks_RequiresPolicy(t *testing.T) {
	engine := fixedEngine(newMemStore())
	_, err := engine.RecordMarks(context.Background(), BatchInput{ExamID: "E1"})

	var verr *shared.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRecordMarks_ExamNotFound(t *testing.T) {
	engine := fixedEngine(newMemStore())
	_, err := engine.RecordMarks(context.Background(), BatchInput{ExamID: "missing", Policy: PolicySixBand})
	assert.True(t, shared.IsNotFound(err))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))

	s := Summarize([]shared.Mark{{Percentage: 50}, {Percentage: 75.5}, {Percentage: 100}})
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 75.17, s.Average)
	assert.Equal(t, 100.0, s.Max)
	assert.Equal(t, 50.0, s.Min)
}

func TestStudentSummary(t *testing.T) {
	store := newMemStore()
	store.students["S1"] = shared.User{ID: "S1", SchoolID: "SCH1", ClassID: "C1", Role: shared.RoleStudent}
	engine := fixedEngine(store)
	ctx := context.Background()

	for i, exam := range []string{"E1", "E2"} {
		_, err := engine.RecordMark(ctx, MarkInput{
			SchoolID: "SCH1", StudentID: "S1", ExamID: exam,
			MarksObtained: float64(60 + i*20), ExamTotalMarks: 100, Policy: PolicyEightBand,
		})
		require.NoError(t, err)
	}

	s, err := engine.StudentSummary(ctx, "SCH1", "S1")
	require.NoError(t, err)
	assert.Equal(t, Summary{Count: 2, Average: 70, Max: 80, Min: 60}, s)

	_, err = engine.StudentSummary(ctx, "SCH2", "S1")
	var cerr *shared.ConsistencyError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "school_id", cerr.Field)
}
