package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthRequired_IsEmailRestricted(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, ErrAuthRequired, ErrEmailRestricted)
	require.False(t, errors.Is(ErrEmailRestricted, ErrAuthRequired))
}

func TestKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrAuthRequired, "auth_required"},
		{ErrEmailRestricted, "email_restricted"},
		{fmt.Errorf("redeem: %w", ErrExhausted), "exhausted"},
		{fmt.Errorf("db: %w", ErrUnavailable), "unavailable"},
		{ErrWrongPassword, "wrong_password"},
		{ErrInvalidPassphrase, "invalid_passphrase"},
		{fmt.Errorf("%w: empty", ErrInvalidArgument), "invalid_argument"},
		{errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Kind(tc.err), "err=%v", tc.err)
	}
}
