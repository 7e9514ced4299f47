package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptimiseO0IsANoOp(t *testing.T) {
	ops, err := Lower(Tokenize([]byte("+++")))
	require.NoError(t, err)
	require.Equal(t, ops, OptimiseWithLevel(ops, O0))
}

func TestOptimiseClearLoopRequiresOddStep(t *testing.T) {
	// "[-]" nets -1 (odd) and must become a single ZERO.
	ops, err := Lower(Tokenize([]byte("[-]")))
	require.NoError(t, err)
	result := Optimise(ops)
	require.Equal(t, []OpKind{OpZero}, kinds(result))
}

func TestOptimiseDoesNotClearEvenStepLoops(t *testing.T) {
	// "[--]" nets -2 (even): not sound to collapse to ZERO, must survive as
	// a loop (possibly re-expressed, but still containing a Jz/Jnz pair).
	ops, err := Lower(Tokenize([]byte("[--]")))
	require.NoError(t, err)
	result := Optimise(ops)
	require.Contains(t, kinds(result), OpJz)
	require.NotContains(t, kinds(result), OpZero)
}

func TestOptimiseRecognizesAddTo(t *testing.T) {
	ops, err := Lower(Tokenize([]byte("[->+<]")))
	require.NoError(t, err)
	result := Optimise(ops)
	require.Equal(t, []OpKind{OpAddTo, OpZero}, kinds(result))
	require.Equal(t, 1, result[0].Arg)
}

func TestOptimiseRecognizesMoveUntil(t *testing.T) {
	ops, err := Lower(Tokenize([]byte("[>>]")))
	require.NoError(t, err)
	result := Optimise(ops)
	require.Equal(t, []OpKind{OpMoveUntil}, kinds(result))
	require.Equal(t, 2, result[0].Arg)
}

func TestOptimiseRemovesEmptyLoops(t *testing.T) {
	ops, err := Lower(Tokenize([]byte("+[]+")))
	require.NoError(t, err)
	result := Optimise(ops)
	require.NotContains(t, kinds(result), OpJz)
}

func TestOptimiseMergesAdjacentAddAndShiftToZero(t *testing.T) {
	// "+++---" folds (at Lower time) into Add(3), Add(-3) and ">>><<<" into
	// Shift(3), Shift(-3); O1 merges each pair into a zero op and then
	// removeNoOps strips the resulting no-ops entirely.
	ops, err := Lower(Tokenize([]byte("+++--->>><<<")))
	require.NoError(t, err)
	result := OptimiseWithLevel(ops, O1)
	require.Empty(t, result)
}

func TestOptimiseMergesAdjacentShiftsWithNetEffect(t *testing.T) {
	ops, err := Lower(Tokenize([]byte(">>><")))
	require.NoError(t, err)
	result := OptimiseWithLevel(ops, O1)
	require.Equal(t, []OpKind{OpShift}, kinds(result))
	require.Equal(t, 2, result[0].Arg)
}

func TestOptimiseJumpTargetsStayConsistentAfterFusion(t *testing.T) {
	ops, err := Lower(Tokenize([]byte("+++[>>>+++<<<-]")))
	require.NoError(t, err)
	result := Optimise(ops)
	require.NoError(t, Verify(result))
}

func kinds(ops []Op) []OpKind {
	out := make([]OpKind, len(ops))
	for i, op := range ops {
		out[i] = op.Kind
	}
	return out
}
