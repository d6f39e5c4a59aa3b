package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolledger/backend/internal/shared"
)

func TestHandleError_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", shared.NewValidationError("bad"), http.StatusBadRequest},
		{"signature", &shared.SignatureMismatchError{OrderID: "o", PaymentID: "p"}, http.StatusBadRequest},
		{"consistency", &shared.ConsistencyError{Entity: "fee_payment"}, http.StatusUnprocessableEntity},
		{"state", &shared.StateError{Entity: "leave", From: "Approved", To: "Rejected"}, http.StatusConflict},
		{"not found", &shared.NotFoundError{Entity: "exam", ID: "E1"}, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", &shared.NotFoundError{Entity: "exam", ID: "E1"}), http.StatusNotFound},
		{"configuration", &shared.ConfigurationError{Key: "PAYMENT_GATEWAY_SECRET"}, http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			HandleError(rr, c.err)
			assert.Equal(t, c.want, rr.Code)

			var body JSONError
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.False(t, body.Success)
		})
	}
}

func TestHandleError_ValidationFields(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleError(rr, shared.NewValidationError("invalid input", shared.FieldError{Field: "amount", Message: "must be greater than 0"}))

	var body JSONError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "invalid input", body.Message)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "amount", body.Fields[0].Field)
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	var verr *shared.ValidationError

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, DecodeJSON(req, &v))
	assert.Equal(t, "x", v.Name)

	for _, body := range []string{``, `{"other":1}`, `{"name":"x"}{"name":"y"}`, `[1]`} {
		req := httptest.NewRequest("POST", "/", strings.NewReader(body))
		assert.ErrorAs(t, DecodeJSON(req, &v), &verr, "body %q", body)
	}
}

func TestExtractToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	_, err := ExtractToken(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Token abc")
	_, err = ExtractToken(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Bearer abc")
	tok, err := ExtractToken(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestUserContext(t *testing.T) {
	assert.Nil(t, UserFromContext(context.Background()))

	ctx := WithUser(context.Background(), &Claims{UserID: "U1", Role: shared.RoleAdmin})
	assert.Equal(t, "U1", UserFromContext(ctx).UserID)
}
