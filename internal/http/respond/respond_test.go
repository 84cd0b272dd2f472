package respond_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commonpurse/commonpurse/internal/http/respond"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

type body struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:        "Validation",
			err:         &treasury.Error{Kind: treasury.KindValidation, Message: "amount must be greater than zero"},
			wantStatus:  http.StatusBadRequest,
			wantCode:    "VALIDATION_ERROR",
			wantMessage: "amount must be greater than zero",
		},
		{
			name:        "NotFoundWrapped",
			err:         fmt.Errorf("loading: %w", treasury.NotFound("proposal")),
			wantStatus:  http.StatusNotFound,
			wantCode:    "NOT_FOUND",
			wantMessage: "proposal not found",
		},
		{
			name:        "ConflictHidesCause",
			err:         treasury.Conflict(errors.New("UNIQUE constraint failed: proposal_approvals")),
			wantStatus:  http.StatusConflict,
			wantCode:    "CONFLICT",
			wantMessage: "duplicate record",
		},
		{
			name:        "Authorization",
			err:         &treasury.Error{Kind: treasury.KindAuthorization, Message: "not a leader"},
			wantStatus:  http.StatusForbidden,
			wantCode:    "AUTHORIZATION_ERROR",
			wantMessage: "not a leader",
		},
		{
			name:        "InvalidState",
			err:         &treasury.Error{Kind: treasury.KindInvalidState, Message: "proposal is executed"},
			wantStatus:  http.StatusConflict,
			wantCode:    "INVALID_STATE",
			wantMessage: "proposal is executed",
		},
		{
			name:        "InsufficientFunds",
			err:         treasury.ErrInsufficientFunds,
			wantStatus:  http.StatusUnprocessableEntity,
			wantCode:    "INSUFFICIENT_FUNDS",
			wantMessage: "insufficient funds",
		},
		{
			name:        "Unknown",
			err:         errors.New("driver: bad connection"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "INTERNAL_ERROR",
			wantMessage: "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respond.Error(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var got body
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.wantCode, got.Error.Code)
			assert.Equal(t, tt.wantMessage, got.Error.Message)
		})
	}
}

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	respond.JSON(rec, http.StatusCreated, map[string]int{"added": 2})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"added":2}`, rec.Body.String())
}
