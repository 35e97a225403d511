package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvalidTransitionCarriesBothStatuses(t *testing.T) {
	err := NewInvalidTransition("CLOSED", "RESOLVED")

	de := ToDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, CodeValidationFailed, de.Code)
	assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)
	assert.Equal(t, "CLOSED", de.Details["from"])
	assert.Equal(t, "RESOLVED", de.Details["to"])
}

func TestNewSLARuleNotConfigured(t *testing.T) {
	err := NewSLARuleNotConfigured("org-1", "HIGH")

	assert.True(t, HasCode(err, CodeNotFound))
	assert.Contains(t, err.Error(), "no SLA rule configured")
	assert.Equal(t, "org-1", ToDomainError(err).Details["organization_id"])
}

func TestToDomainError_WrapsUnknownAsInternal(t *testing.T) {
	cause := errors.New("boom")
	de := ToDomainError(cause)

	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.ErrorIs(t, de, cause)
}

func TestToDomainError_FindsWrappedDomainError(t *testing.T) {
	err := fmt.Errorf("create ticket: %w", NewConflict("duplicate", nil))

	assert.Equal(t, CodeConflict, ToDomainError(err).Code)
	assert.True(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(err, CodeNotFound))
}

func TestToDomainError_Nil(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))
}
