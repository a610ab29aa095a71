package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := E(KindValidation, "bad input %d", 42)
	require.Equal(t, KindValidation, KindOf(err))
	require.Contains(t, err.Error(), "bad input 42")

	require.Equal(t, Kind(""), KindOf(errors.New("plain")))
	require.Equal(t, Kind(""), KindOf(nil))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindStore, cause, "persist schedule")

	require.Equal(t, KindStore, KindOf(err))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "persist schedule")
}

func TestKindSurvivesFurtherWrapping(t *testing.T) {
	inner := E(KindUpstreamConflict, "blocks overlap")
	outer := fmt.Errorf("compose failed: %w", inner)

	require.Equal(t, KindUpstreamConflict, KindOf(outer))
	require.True(t, IsKind(outer, KindUpstreamConflict))
	require.False(t, IsKind(outer, KindValidation))
}
