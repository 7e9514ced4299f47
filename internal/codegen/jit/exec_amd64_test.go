//go:build linux && amd64

package jit

import (
	"io"
	"os"
	"testing"

	"github.com/lcox74/bfcc/internal/core"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// withCapturedStdout redirects fd 1 to an os.Pipe's write end for the
// duration of fn, since the JIT-compiled function body writes through a
// raw write(2) syscall on fd 1, not through os.Stdout.
func withCapturedStdout(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	savedStdout, err := unix.Dup(1)
	require.NoError(t, err)

	require.NoError(t, unix.Dup2(int(w.Fd()), 1))

	fn()

	require.NoError(t, w.Close())
	require.NoError(t, unix.Dup2(savedStdout, 1))
	require.NoError(t, unix.Close(savedStdout))

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return string(out)
}

func runJIT(t *testing.T, src string) string {
	t.Helper()

	ops, err := core.Lower(core.Tokenize([]byte(src)))
	require.NoError(t, err)
	ops = core.Optimise(ops)

	code := NewGenerator(ops).Generate()

	prog, err := Materialize(code)
	require.NoError(t, err)
	defer func() { require.NoError(t, prog.Release()) }()

	tape := make([]byte, core.TapeSize)
	return withCapturedStdout(t, func() {
		require.NoError(t, prog.Run(tape))
	})
}

func TestJITPrintsA(t *testing.T) {
	out := runJIT(t, "++++++[>++++++++++<-]>+++++.")
	require.Equal(t, "A", out)
}

func TestJITAddToPeephole(t *testing.T) {
	// "+[->+<]" transfers cell 0 into cell 1 via the AddTo peephole; output
	// the transferred value to observe the result without tape introspection.
	out := runJIT(t, "+[->+<]>.")
	require.Equal(t, string([]byte{1}), out)
}

func TestJITClearLoopPeephole(t *testing.T) {
	out := runJIT(t, "+++++[-]+++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++.")
	require.Equal(t, "A", out)
}

func TestJITMoveUntilSkipsBodyWhenCellAlreadyZero(t *testing.T) {
	// ">+<" sets cell1=1 and returns the pointer to cell0 (still 0), so the
	// "[>]" MoveUntil loop must execute zero times: the pointer must stay on
	// cell0 (output 0) rather than stepping to cell1 (output 1) before its
	// first test.
	out := runJIT(t, ">+<[>].>.")
	require.Equal(t, string([]byte{0, 1}), out)
}
