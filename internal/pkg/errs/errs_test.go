package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCustomError_Kind(t *testing.T) {
	tests := []struct {
		code int
		want Kind
	}{
		{ErrInvalidJSONFormat, KindRequest},
		{ErrMovementBlocked, KindValidation},
		{ErrInvalidSession, KindAuthorization},
		{ErrSlotTaken, KindContention},
		{ErrUnknown, KindInternal},
		{ErrStreamNegotiationFailed, KindExternalService},
		{ErrPersistenceFailed, KindPersistence},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.want, NewError(tc.code).Kind())
		})
	}
}

func TestNewError_UnknownCodeFallsBack(t *testing.T) {
	e := NewError(99999)
	assert.Equal(t, ErrUnknown, e.Code)
	assert.Equal(t, http.StatusInternalServerError, e.Status)
}

func TestErrorMap_Complete(t *testing.T) {
	for code, e := range errorMap {
		assert.Equal(t, code, e.Code)
		assert.NotEmpty(t, e.Message)
		// websocket-only codes carry no status; resp floors them to 400
		if e.Status != 0 {
			assert.GreaterOrEqual(t, e.Status, http.StatusBadRequest, "code %d", code)
		}
	}
}

func TestIsAndAs(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", NewError(ErrSlotTaken))
	assert.True(t, Is(wrapped, ErrSlotTaken))
	assert.False(t, Is(wrapped, ErrSeatTaken))
	assert.Equal(t, ErrSlotTaken, As(wrapped).Code)

	assert.Equal(t, ErrUnknown, As(errors.New("boom")).Code)
	assert.Nil(t, As(nil))
}
