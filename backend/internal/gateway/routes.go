package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"schoolledger/backend/internal/gateway/handlers"
	"schoolledger/backend/internal/gateway/util"
	"schoolledger/backend/internal/shared"
)

// SetupRoutes configures the Chi router, middleware, and route handlers.
func SetupRoutes(services *Services, cfg *shared.ServiceConfig) *chi.Mux {
	r := chi.NewRouter()

	// 1. Global Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	// 2. Initialize Handlers
	gradeHandler := &handlers.GradeHandler{Grades: services.Grades}
	feeHandler := &handlers.FeeHandler{Fees: services.Fees}
	attendanceHandler := &handlers.AttendanceHandler{Attendance: services.Attendance}
	leaveHandler := &handlers.LeaveHandler{Leaves: services.Leaves}

	staff := RequireRole(shared.RoleTeacher, shared.RoleAdmin)
	admin := RequireRole(shared.RoleAdmin)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": cfg.ServiceName})
	})

	// 3. Define Routes (all require a valid token)
	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Security.JWTSecret))

		// Marks
		r.With(staff).Post("/exams/{examId}/marks", gradeHandler.RecordMarks)
		r.Get("/marks/students/{studentId}/summary", gradeHandler.StudentSummary)

		// Fees
		r.Route("/fees", func(r chi.Router) {
			r.Get("/students/{studentId}/status", feeHandler.StudentStatus)
			r.With(staff).Get("/classes/{classId}/status", feeHandler.ClassStatus)

			r.With(RequireRole(shared.RoleStudent, shared.RoleAdmin)).Post("/payments/verify", feeHandler.VerifyPayment)
			r.With(admin).Post("/payments/offline", feeHandler.RecordOffline)

			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Post("/structures", feeHandler.CreateStructure)
				r.Put("/structures/{id}", feeHandler.UpdateStructure)
				r.Delete("/structures/{id}", feeHandler.DeleteStructure)
			})
		})

		// Attendance
		r.With(staff).Post("/attendance/bulk", attendanceHandler.BulkMark)
		r.Get("/attendance/students/{studentId}", attendanceHandler.StudentHistory)

		// Leaves
		r.Post("/leaves", leaveHandler.Apply)
		r.With(staff).Post("/leaves/{leaveId}/decision", leaveHandler.Decide)
		r.With(admin).Post("/leaves/{leaveId}/resync", leaveHandler.Resync)
	})

	return r
}
