package pkg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInvariantError(t *testing.T) {
	err := fmt.Errorf("bootstrap: %w", NewInvariantError(ZeroDurationFragment, 2, "of %d", 5))
	require.ErrorIs(t, err, ErrInvariant)
	var ie *InvariantError
	require.True(t, errors.As(err, &ie))
	require.Equal(t, ZeroDurationFragment, ie.Kind)
	require.Equal(t, 2, ie.Index)
	require.Equal(t, "bootstrap: zero duration fragment at 2: of 5", err.Error())
	require.Equal(t, "invariant(9)", InvariantKind(9).String())
}
