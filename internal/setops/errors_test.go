package setops

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKindSentinel(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("import: %w", Errorf(KindQuality, "only %d rows", 2))
	require.ErrorIs(t, err, ErrQuality)
	require.NotErrorIs(t, err, ErrParse)
	require.Equal(t, KindQuality, KindOf(err))
	require.Equal(t, "only 2 rows", Message(err))
}

func TestWrapKeepsCause(t *testing.T) {
	t.Parallel()

	cause := &StatusError{URL: "https://example.com", StatusCode: 403}
	err := Wrap(KindFetch, "fetch failed", cause)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, 403, statusErr.StatusCode)
	require.Contains(t, err.Error(), "unexpected status 403")
	require.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
