package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"schoolledger/backend/internal/fee"
	"schoolledger/backend/internal/gateway/util"
	"schoolledger/backend/internal/shared"
)

// FeeService is the part of the fee ledger the gateway calls
type FeeService interface {
	StudentStatus(ctx context.Context, studentID string, q fee.StatusQuery) (*fee.StudentReport, error)
	ClassStatus(ctx context.Context, classID string, q fee.StatusQuery) (*fee.ClassReport, error)
	VerifyAndRecord(ctx context.Context, in fee.OnlinePaymentInput) (*fee.RecordResult, error)
	RecordOffline(ctx context.Context, in fee.OfflinePaymentInput) (*fee.RecordResult, error)
	CreateStructure(ctx context.Context, in fee.StructureInput) (*shared.FeeStructure, error)
	UpdateStructure(ctx context.Context, id string, in fee.StructureInput) (*shared.FeeStructure, error)
	DeleteStructure(ctx context.Context, id, schoolID, userID string) error
}

// FeeHandler serves fee status, payments and fee structures
type FeeHandler struct {
	Fees FeeService
}

// StudentStatus handles GET /api/fees/students/{studentId}/status
// Query Params: academic_year (optional)
func (h *FeeHandler) StudentStatus(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentId")
	if !canViewStudent(r, studentID) {
		util.WriteJSONError(w, http.StatusForbidden, "Access denied: students can only view their own fees")
		return
	}

	report, err := h.Fees.StudentStatus(r.Context(), studentID, statusQuery(r))
	if err != nil {
		util.HandleError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, report)
}

// ClassStatus handles GET /api/fees/classes/{classId}/status
// Query Params: academic_year (optional)
func (h *FeeHandler) ClassStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.Fees.ClassStatus(r.Context(), chi.URLParam(r, "classId"), statusQuery(r))
	if err != nil {
		util.HandleError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, report)
}

// VerifyPayment handles POST /api/fees/payments/verify
// Students pay for themselves; admins may record on a student's behalf.
func (h *FeeHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	user := util.UserFromContext(r.Context())

	var req fee.OnlinePaymentInput
	if user.Role == shared.RoleStudent {
		req.StudentID = user.UserID
	}
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, err)
		return
	}
	if user.Role == shared.RoleStudent && req.StudentID != user.UserID {
		util.WriteJSONError(w, http.StatusForbidden, "Access denied: students can only pay their own fees")
		return
	}
	req.SchoolID = user.SchoolID
	req.RecordedBy = user.UserID

	result, err := h.Fees.VerifyAndRecord(r.Context(), req)
	if err != nil {
		util.HandleError(w, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyApplied {
		status = http.StatusOK
	}
	util.WriteJSON(w, status, result)
}

// RecordOffline handles POST /api/fees/payments/offline
func (h *FeeHandler) RecordOffline(w http.ResponseWriter, r *http.Request) {
	user := util.UserFromContext(r.Context())

	var req fee.OfflinePaymentInput
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, err)
		return
	}
	req.SchoolID = user.SchoolID
	req.RecordedBy = user.UserID

	result, err := h.Fees.RecordOffline(r.Context(), req)
	if err != nil {
		util.HandleError(w, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyApplied {
		status = http.StatusOK
	}
	util.WriteJSON(w, status, result)
}

// CreateStructure handles POST /api/fees/structures
func (h *FeeHandler) CreateStructure(w http.ResponseWriter, r *http.Request) {
	user := util.UserFromContext(r.Context())

	var req fee.StructureInput
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, err)
		return
	}
	req.SchoolID = user.SchoolID

	fs, err := h.Fees.CreateStructure(r.Context(), req)
	if err != nil {
		util.HandleError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, fs)
}

// UpdateStructure handles PUT /api/fees/structures/{id}
func (h *FeeHandler) UpdateStructure(w http.ResponseWriter, r *http.Request) {
	user := util.UserFromContext(r.Context())

	var req fee.StructureInput
	if err := util.DecodeJSON(r, &req); err != nil {
		util.HandleError(w, err)
		return
	}
	req.SchoolID = user.SchoolID

	fs, err := h.Fees.UpdateStructure(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		util.HandleError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, fs)
}

// DeleteStructure handles DELETE /api/fees/structures/{id}
// Refused while any payment references the structure.
func (h *FeeHandler) DeleteStructure(w http.ResponseWriter, r *http.Request) {
	user := util.UserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.Fees.DeleteStructure(r.Context(), id, user.SchoolID, user.UserID); err != nil {
		util.HandleError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"id": id})
}

func statusQuery(r *http.Request) fee.StatusQuery {
	return fee.StatusQuery{
		SchoolID:     util.UserFromContext(r.Context()).SchoolID,
		AcademicYear: r.URL.Query().Get("academic_year"),
	}
}
