package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"no rows", fmt.Errorf("load: %w", pgx.ErrNoRows), CodeNotFound, http.StatusNotFound},
		{"deadline", fmt.Errorf("tx: %w", context.DeadlineExceeded), CodeTimeout, http.StatusGatewayTimeout},
		{"generic", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
		{"already domain", NewForbidden("nope"), CodeForbidden, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			de := ToDomainError(tc.err)
			require.NotNil(t, de)
			assert.Equal(t, tc.code, de.Code)
			assert.Equal(t, tc.status, de.HTTPStatus)
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, ToDomainError(NewTimeout(nil)).Retryable())
	assert.True(t, ToDomainError(NewStoreUnavailable(nil)).Retryable())
	assert.False(t, ToDomainError(NewValidationError("bad", nil)).Retryable())
}

func TestMapErrorNil(t *testing.T) {
	assert.NoError(t, MapError(nil))
	assert.Nil(t, ToDomainError(nil))
	assert.True(t, HasCode(NewNotFound("ticket", nil), CodeNotFound))
}
