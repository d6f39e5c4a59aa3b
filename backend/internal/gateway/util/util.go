package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"schoolledger/backend/internal/shared"
)

// maxBodyBytes caps request bodies; a full class of marks fits well inside
const maxBodyBytes = 1 << 20

// JSONResponse is the success envelope
type JSONResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// JSONError is the failure envelope. Fields lists per-input validation failures.
type JSONError struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Fields  []shared.FieldError `json:"fields,omitempty"`
}

// WriteJSON writes payload inside a {"success": true, "data": ...} envelope
func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	write(w, status, JSONResponse{Success: true, Data: payload})
}

// WriteJSONError writes {"success": false, "message": ..., "fields": [...]}
func WriteJSONError(w http.ResponseWriter, status int, message string, fields ...shared.FieldError) {
	log.Printf("HTTP %d: %s", status, message)
	write(w, status, JSONError{Success: false, Message: message, Fields: fields})
}

func write(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

// HandleError translates the error taxonomy to HTTP through its status code
func HandleError(w http.ResponseWriter, err error) {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		WriteJSONError(w, http.StatusBadRequest, verr.Message, verr.Fields...)
		return
	}

	st, ok := status.FromError(err)
	if !ok {
		log.Printf("Unclassified error: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	switch st.Code() {
	case codes.InvalidArgument:
		WriteJSONError(w, http.StatusBadRequest, st.Message())
	case codes.Unauthenticated:
		WriteJSONError(w, http.StatusUnauthorized, st.Message())
	case codes.PermissionDenied:
		WriteJSONError(w, http.StatusForbidden, st.Message())
	case codes.NotFound:
		WriteJSONError(w, http.StatusNotFound, st.Message())
	case codes.AlreadyExists, codes.Aborted:
		WriteJSONError(w, http.StatusConflict, st.Message())
	case codes.FailedPrecondition:
		WriteJSONError(w, http.StatusUnprocessableEntity, st.Message())
	case codes.Unavailable:
		WriteJSONError(w, http.StatusServiceUnavailable, "Service Unavailable: the database is unreachable.")
	case codes.DeadlineExceeded:
		WriteJSONError(w, http.StatusGatewayTimeout, "Request timed out.")
	default:
		log.Printf("Internal error: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// DecodeJSON reads a single JSON object into v. Unknown fields are rejected.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.NewValidationError("request body is required")
		}
		return shared.NewValidationError(fmt.Sprintf("invalid request body: %v", err))
	}
	if dec.More() {
		return shared.NewValidationError("request body must contain a single JSON object")
	}
	return nil
}

// ExtractToken returns the credential from "Authorization: Bearer <token>"
func ExtractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("authorization header missing")
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" || strings.Contains(token, " ") {
		return "", errors.New("invalid authorization header format")
	}
	return token, nil
}
