package gas

import (
	"strings"
	"testing"

	"github.com/lcox74/bfcc/internal/core"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) []core.Op {
	t.Helper()
	ops, err := core.Lower(core.Tokenize([]byte(src)))
	require.NoError(t, err)
	return core.Optimise(ops)
}

func TestGenerateEmitsBSSTapeAndStartLabel(t *testing.T) {
	out := NewGenerator(compile(t, "+.")).Generate()
	require.Contains(t, out, ".section .bss")
	require.Contains(t, out, ".lcomm tape, 30000")
	require.Contains(t, out, "_start:")
	require.Contains(t, out, "movq $tape, %r13")
}

func TestGenerateEmitsHelperFunctions(t *testing.T) {
	out := NewGenerator(compile(t, ".,")).Generate()
	require.Contains(t, out, "_bf_read:")
	require.Contains(t, out, "_bf_write:")
	require.Contains(t, out, "call _bf_read")
	require.Contains(t, out, "call _bf_write")
}

func TestGenerateLabelsJumpTargetsForLoops(t *testing.T) {
	// "[>+<-]" matches none of the peepholes, so it stays a real loop.
	out := NewGenerator(compile(t, "+[>+<-]")).Generate()
	require.Contains(t, out, "jz .jt_")
	require.Contains(t, out, "jnz .jt_")
}

func TestGenerateEmitsAddToAndMoveUntilSequences(t *testing.T) {
	// "[->+<]" folds to ADDTO; a tight "[>]" scan folds to MOVEUNTIL.
	out := NewGenerator(compile(t, "+[->+<]>[>]")).Generate()
	require.True(t,
		strings.Contains(out, "addb %al, (%r13,%r12)") && strings.Contains(out, ".mu_"),
		"expected both the AddTo fused sequence and a MoveUntil loop label in output:\n%s", out)
}

func TestGenerateEndsWithExitSyscall(t *testing.T) {
	out := NewGenerator(compile(t, "+++")).Generate()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// The exit(0) epilogue precedes the trailing helper functions, so check
	// its three instructions appear in order somewhere in the body.
	require.Contains(t, out, "movq $60, %rax")
	require.Contains(t, out, "xorq %rdi, %rdi")
	require.Contains(t, out, "movq $60, %rax\n    xorq %rdi, %rdi\n    syscall\n")
	_ = lines
}
