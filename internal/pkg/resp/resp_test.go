package resp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridroom/internal/pkg/errs"
)

func respond(t *testing.T, fn func(w http.ResponseWriter, r *http.Request)) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))

	var body JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestRespondError_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   int
		retry  bool
	}{
		{"mapped status", errs.NewError(errs.ErrUnknownRoom), http.StatusNotFound, errs.ErrUnknownRoom, false},
		{"websocket-only code", errs.NewError(errs.ErrUnknownDoor), http.StatusBadRequest, errs.ErrUnknownDoor, false},
		{"unknown event", errs.NewError(errs.ErrUnknownEvent), http.StatusBadRequest, errs.ErrUnknownEvent, false},
		{"invalid slot", errs.NewError(errs.ErrInvalidSlot), http.StatusBadRequest, errs.ErrInvalidSlot, false},
		{"message flood", errs.NewError(errs.ErrMessageFlood), http.StatusBadRequest, errs.ErrMessageFlood, false},
		{"connect required", errs.NewError(errs.ErrConnectRequired), http.StatusBadRequest, errs.ErrConnectRequired, false},
		{"throttled", errs.NewError(errs.ErrRateLimitExceeded), http.StatusTooManyRequests, errs.ErrRateLimitExceeded, true},
		{"busy", errs.NewError(errs.ErrServerBusy), http.StatusServiceUnavailable, errs.ErrServerBusy, true},
		{"foreign error", errors.New("disk on fire"), http.StatusInternalServerError, errs.ErrUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := respond(t, func(w http.ResponseWriter, r *http.Request) { RespondErr(w, r, tt.err) })
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.retry, rec.Header().Get("Retry-After") != "")
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestRespondSuccess(t *testing.T) {
	rec, body := respond(t, func(w http.ResponseWriter, r *http.Request) {
		RespondSuccess(w, r, map[string]int{"purged": 2})
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, map[string]any{"purged": float64(2)}, body.Data)
}
