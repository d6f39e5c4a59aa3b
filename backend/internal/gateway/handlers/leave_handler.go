package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"schoolledger/backend/internal/gateway/util"
	"schoolledger/backend/internal/leave"
	"schoolledger/backend/internal/shared"
)

// LeaveService is the part of the leave workflow the gateway calls
type LeaveService interface {
	Apply(ctx context.Context, in leave.ApplyInput) (*shared.Leave, error)
	Decide(ctx context.Context, in leave.DecideInput) (*leave.Decision, error)
	ResyncAttendance(ctx context.Context, leaveID, schoolID, userID string) (*leave.Decision, error)
}

// LeaveHandler serves leave requests and decisions
type LeaveHandler struct {
	Leaves LeaveService
}

// Apply handles POST /api/leaves
// The applicant, role, school and class come from the token.
func (h *LeaveHandler) Apply(w http.ResponseWriter, r *http.Request) {
	user := util.UserFromContext(r.Context())

	var req leave.ApplyInput
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, err)
		return
	}
	req.ApplicantID = user.UserID
	req.Role = user.Role
	req.SchoolID = user.SchoolID
	req.ClassID = user.ClassID

	l, err := h.Leaves.Apply(r.Context(), req)
	if err != nil {
		util.HandleError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, l)
}

// Decide handles POST /api/leaves/{leaveId}/decision
// Body: {"status": "Approved"|"Rejected", "reason": "..."}
func (h *LeaveHandler) Decide(w http.ResponseWriter, r *http.Request) {
	user := util.UserFromContext(r.Context())

	var req leave.DecideInput
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, err)
		return
	}
	req.LeaveID = chi.URLParam(r, "leaveId")
	req.SchoolID = user.SchoolID
	req.DecidedBy = user.UserID

	decision, err := h.Leaves.Decide(r.Context(), req)
	if err != nil {
		util.HandleError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, decision)
}

// Resync handles POST /api/leaves/{leaveId}/resync
func (h *LeaveHandler) Resync(w http.ResponseWriter, r *http.Request) {
	user := util.UserFromContext(r.Context())

	decision, err := h.Leaves.ResyncAttendance(r.Context(), chi.URLParam(r, "leaveId"), user.SchoolID, user.UserID)
	if err != nil {
		util.HandleError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, decision)
}
