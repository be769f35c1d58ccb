package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{ErrAlreadyDeleted, http.StatusGone},
		{ErrConflict, http.StatusConflict},
		{ErrInvalidParent, http.StatusBadRequest},
		{ErrDepthExceeded, http.StatusBadRequest},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrInvalidPageRequest, http.StatusBadRequest},
		{ErrStoreTimeout, http.StatusServiceUnavailable},
		{ErrStoreUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, HTTPStatus(tc.err), "for %v", tc.err)
	}
}

func TestHTTPStatusSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("%w: parent belongs to another target", ErrInvalidParent)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestMessageHidesInternalDetail(t *testing.T) {
	wrapped := fmt.Errorf("%w: pq: connection refused", ErrStoreUnavailable)
	assert.Equal(t, "store unavailable", Message(wrapped))

	assert.Equal(t, "internal error", Message(fmt.Errorf("dial tcp: i/o timeout")))
	assert.Equal(t, "not found", Message(ErrNotFound))
}

func TestValidationErrorUnwrapsToInvalidInput(t *testing.T) {
	err := &ValidationError{Message: "body is empty"}
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	assert.Equal(t, "invalid input", Message(err))
	assert.True(t, Is[*ValidationError](err))
}
