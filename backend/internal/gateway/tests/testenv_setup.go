package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"schoolledger/backend/internal/gateway"
	"schoolledger/backend/internal/gateway/util"
	"schoolledger/backend/internal/shared"
	"schoolledger/backend/internal/shared/sharedtest"
)

const (
	jwtSecret     = "gateway-test-jwt"
	gatewaySecret = "s3cret"
)

// TestEnv holds the router wired to real services over a throwaway database
type TestEnv struct {
	Router http.Handler
	DB     *mongo.Database
}

// setupGatewayTestEnv wires the full stack against MongoDB and seeds one
// school with a class, two students, a teacher, an exam and a monthly fee.
func setupGatewayTestEnv(t *testing.T) *TestEnv {
	db := sharedtest.Connect(t)
	ctx := context.Background()

	cfg := &shared.ServiceConfig{ServiceName: "gateway-test"}
	cfg.Security.JWTSecret = jwtSecret
	cfg.Payment.GatewaySecret = gatewaySecret
	cfg.Attendance.MaxBackfillDays = 31

	services, err := gateway.NewServices(db, cfg)
	require.NoError(t, err)

	seed := []struct {
		col  string
		docs []interface{}
	}{
		{shared.ColClasses, []interface{}{shared.Class{ID: "C1", SchoolID: "SCH1", Name: "Grade 5", AcademicYear: "2024-25"}}},
		{shared.ColUsers, []interface{}{
			shared.User{ID: "S1", SchoolID: "SCH1", ClassID: "C1", Role: shared.RoleStudent, Name: "Asha", RollNumber: "01", IsActive: true},
			shared.User{ID: "S2", SchoolID: "SCH1", ClassID: "C1", Role: shared.RoleStudent, Name: "Bilal", RollNumber: "02", IsActive: true},
			shared.User{ID: "T1", SchoolID: "SCH1", Role: shared.RoleTeacher, Name: "Ms. Rao", IsActive: true},
		}},
		{shared.ColExams, []interface{}{shared.Exam{ID: "E1", SchoolID: "SCH1", ClassID: "C1", Name: "Midterm", Subject: "Math", TotalMarks: 100}}},
		{shared.ColFeeStructures, []interface{}{shared.FeeStructure{
			ID: "F1", SchoolID: "SCH1", ClassID: "C1", Type: "tuition", Amount: decimal.NewFromInt(500),
			AcademicYear: "2024-25", IsMonthly: true, CreatedAt: time.Now().UTC(),
		}}},
	}
	for _, s := range seed {
		_, err := db.Collection(s.col).InsertMany(ctx, s.docs)
		require.NoError(t, err)
	}

	return &TestEnv{Router: gateway.SetupRoutes(services, cfg), DB: db}
}

func tokenFor(t *testing.T, userID, role, classID string) string {
	t.Helper()
	return schoolToken(t, "SCH1", userID, role, classID)
}

func schoolToken(t *testing.T, schoolID, userID, role, classID string) string {
	t.Helper()
	tok, err := gateway.SignToken(jwtSecret, util.Claims{UserID: userID, Role: role, SchoolID: schoolID, ClassID: classID}, time.Hour)
	require.NoError(t, err)
	return tok
}

// call performs a request and decodes the "data" envelope into out when given
func (env *TestEnv) call(t *testing.T, method, path, tok string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	env.Router.ServeHTTP(rr, req)

	if out != nil && rr.Code < 300 {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
	return rr.Code
}
