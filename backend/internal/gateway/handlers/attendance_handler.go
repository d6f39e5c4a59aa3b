package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"schoolledger/backend/internal/attendance"
	"schoolledger/backend/internal/gateway/util"
	"schoolledger/backend/internal/shared"
)

// AttendanceService is the part of the reconciler the gateway calls
type AttendanceService interface {
	BulkMark(ctx context.Context, in attendance.BulkMarkInput) (int, error)
	History(ctx context.Context, schoolID, studentID, from, to string) ([]shared.Attendance, error)
}

// AttendanceHandler serves class attendance
type AttendanceHandler struct {
	Attendance AttendanceService
}

// BulkMark handles POST /api/attendance/bulk
func (h *AttendanceHandler) BulkMark(w http.ResponseWriter, r *http.Request) {
	user := util.UserFromContext(r.Context())

	var req attendance.BulkMarkInput
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, err)
		return
	}
	req.SchoolID = user.SchoolID
	req.MarkedBy = user.UserID

	count, err := h.Attendance.BulkMark(r.Context(), req)
	if err != nil {
		util.HandleError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"class_id": req.ClassID,
		"date":     req.Date,
		"count":    count,
	})
}

// StudentHistory handles GET /api/attendance/students/{studentId}
// Query Params: from, to (YYYY-MM-DD, required)
func (h *AttendanceHandler) StudentHistory(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentId")
	if !canViewStudent(r, studentID) {
		util.WriteJSONError(w, http.StatusForbidden, "Access denied: students can only view their own attendance")
		return
	}

	user := util.UserFromContext(r.Context())
	q := r.URL.Query()
	rows, err := h.Attendance.History(r.Context(), user.SchoolID, studentID, q.Get("from"), q.Get("to"))
	if err != nil {
		util.HandleError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, rows)
}
