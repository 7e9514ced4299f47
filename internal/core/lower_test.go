package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func lowerSrc(t *testing.T, src string) []Op {
	t.Helper()
	ops, err := Lower(Tokenize([]byte(src)))
	require.NoError(t, err)
	return ops
}

func TestLowerFoldsConsecutiveOps(t *testing.T) {
	ops := lowerSrc(t, "+++>>>")
	require.Len(t, ops, 2)
	require.Equal(t, OpAdd, ops[0].Kind)
	require.Equal(t, 3, ops[0].Arg)
	require.Equal(t, OpShift, ops[1].Kind)
	require.Equal(t, 3, ops[1].Arg)
}

func TestLowerResolvesBracketsBothWays(t *testing.T) {
	ops := lowerSrc(t, "[+]")
	require.Len(t, ops, 3)
	require.Equal(t, OpJz, ops[0].Kind)
	require.Equal(t, 3, ops[0].Arg, "Jz must target the op after the matching Jnz")
	require.Equal(t, OpAdd, ops[1].Kind)
	require.Equal(t, OpJnz, ops[2].Kind)
	require.Equal(t, 0, ops[2].Arg, "Jnz must target the matching Jz")
}

func TestLowerNestedBrackets(t *testing.T) {
	ops := lowerSrc(t, "[[+]]")
	require.NoError(t, Verify(ops))
}

func TestLowerUnmatchedOpenBracketIsAnError(t *testing.T) {
	_, err := Lower(Tokenize([]byte("[+")))
	require.Error(t, err)
	var lowerErr *Error
	require.ErrorAs(t, err, &lowerErr)
}

func TestLowerUnmatchedCloseBracketIsAnError(t *testing.T) {
	_, err := Lower(Tokenize([]byte("+]")))
	require.Error(t, err)
}

func TestLowerEmptySourceProducesNoOps(t *testing.T) {
	ops := lowerSrc(t, "")
	require.Empty(t, ops)
}
