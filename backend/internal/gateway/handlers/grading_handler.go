package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"schoolledger/backend/internal/gateway/util"
	"schoolledger/backend/internal/grading"
	"schoolledger/backend/internal/shared"
)

// GradeService is the part of the grade engine the gateway calls
type GradeService interface {
	RecordMarks(ctx context.Context, in grading.BatchInput) (*grading.BatchResult, error)
	StudentSummary(ctx context.Context, schoolID, studentID string) (grading.Summary, error)
}

// GradeHandler serves mark entry and summaries
type GradeHandler struct {
	Grades GradeService
}

// RecordMarksRequest mirrors the JSON input for POST /exams/{examId}/marks
type RecordMarksRequest struct {
	Policy  string          `json:"policy" validate:"required"`
	Entries []grading.Entry `json:"entries" validate:"required,min=1,dive"`
}

// RecordMarks handles POST /api/exams/{examId}/marks
// Rows are graded independently; the response lists committed marks and rejected rows.
func (h *GradeHandler) RecordMarks(w http.ResponseWriter, r *http.Request) {
	user := util.UserFromContext(r.Context())

	var req RecordMarksRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, err)
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		util.HandleError(w, err)
		return
	}
	policy, err := grading.ParsePolicy(req.Policy)
	if err != nil {
		util.HandleError(w, err)
		return
	}

	result, err := h.Grades.RecordMarks(r.Context(), grading.BatchInput{
		SchoolID:  user.SchoolID,
		ExamID:    chi.URLParam(r, "examId"),
		Policy:    policy,
		EnteredBy: user.UserID,
		Entries:   req.Entries,
	})
	if err != nil {
		util.HandleError(w, err)
		return
	}

	status := http.StatusOK
	if len(result.Failures) > 0 {
		status = http.StatusMultiStatus
	}
	util.WriteJSON(w, status, result)
}

// StudentSummary handles GET /api/marks/students/{studentId}/summary
func (h *GradeHandler) StudentSummary(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentId")
	if !canViewStudent(r, studentID) {
		util.WriteJSONError(w, http.StatusForbidden, "Access denied: students can only view their own marks")
		return
	}

	user := util.UserFromContext(r.Context())
	summary, err := h.Grades.StudentSummary(r.Context(), user.SchoolID, studentID)
	if err != nil {
		util.HandleError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, summary)
}

// canViewStudent lets staff see anyone and students only themselves
func canViewStudent(r *http.Request, studentID string) bool {
	user := util.UserFromContext(r.Context())
	if user == nil {
		return false
	}
	return user.Role != shared.RoleStudent || user.UserID == studentID
}
