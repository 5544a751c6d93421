package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("invoice 7: %w", ErrNotFound), http.StatusNotFound},
		{ErrDuplicate, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrForbidden, http.StatusForbidden},
		{ErrConflict, http.StatusConflict},
		{ErrUpstream, http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestRespondErrorValidationProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &ValidationProblem{
		Detail: "invoice invalid",
		Fields: []FieldError{{Code: "required", Field: "customer"}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	require.Equal(t, "customer", body.Errors[0].Field)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Notes string `json:"notes"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"notes":"x","bogus":1}`))
	err := DecodeJSON(httptest.NewRecorder(), req, &target)
	require.ErrorIs(t, err, ErrValidation)
}
