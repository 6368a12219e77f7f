package errors_test

import (
	"testing"

	apperrors "github.com/jrsteele09/go-meetings-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		require.NoError(t, apperrors.Wrapf(nil, "loading %s", "tokens"))
	})

	t.Run("wraps with context", func(t *testing.T) {
		err := apperrors.Wrapf(apperrors.ErrInvalidID, "meeting %q", "abc")
		require.EqualError(t, err, `meeting "abc": invalid id`)
		require.True(t, apperrors.Is(err, apperrors.ErrInvalidID))
	})
}

type statusError struct{ code int }

func (e *statusError) Error() string { return "status" }

func TestAs(t *testing.T) {
	err := apperrors.Wrapf(&statusError{code: 404}, "get %s", "/meetings/1/")

	var target *statusError
	require.True(t, apperrors.As(err, &target))
	require.Equal(t, 404, target.code)
	require.False(t, apperrors.As(apperrors.ErrInvalidID, &target))
}
