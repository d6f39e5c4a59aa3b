package gateway

import (
	"go.mongodb.org/mongo-driver/mongo"

	"schoolledger/backend/internal/attendance"
	"schoolledger/backend/internal/fee"
	"schoolledger/backend/internal/gateway/handlers"
	"schoolledger/backend/internal/grading"
	"schoolledger/backend/internal/leave"
	"schoolledger/backend/internal/payment"
	"schoolledger/backend/internal/shared"
)

// Services holds the domain services behind the HTTP handlers.
// It is built once in main.go and injected into SetupRoutes.
type Services struct {
	Grades     handlers.GradeService
	Fees       handlers.FeeService
	Attendance handlers.AttendanceService
	Leaves     handlers.LeaveService
}

// NewServices wires every service to its MongoDB store. The leave service
// receives the attendance reconciler as its backfiller.
func NewServices(db *mongo.Database, cfg *shared.ServiceConfig) (*Services, error) {
	verifier, err := payment.NewVerifier(cfg.Payment.GatewaySecret)
	if err != nil {
		return nil, err
	}
	auditor := shared.NewMongoAuditor(db)
	reconciler := attendance.NewReconciler(attendance.NewMongoStore(db), cfg.Attendance.MaxBackfillDays)

	return &Services{
		Grades:     grading.NewEngine(grading.NewMongoStore(db)),
		Fees:       fee.NewService(fee.NewMongoStore(db), verifier, auditor),
		Attendance: reconciler,
		Leaves:     leave.NewService(leave.NewMongoStore(db), reconciler, auditor),
	}, nil
}
