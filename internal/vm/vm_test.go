package vm

import (
	"bytes"
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

func runWithIO(t *testing.T, src, stdin string, opts ...VMOption) string {
	t.Helper()
	ops := compile(t, src)
	var out bytes.Buffer
	allOpts := append([]VMOption{WithInput(strings.NewReader(stdin)), WithOutput(&out)}, opts...)
	v := NewVM(allOpts...)
	require.NoError(t, v.Run(ops))
	return out.String()
}

func TestHelloWorld(t *testing.T) {
	const hello = "++++++++[>++++[>++>+++>+++>+<<<<-]>+>+>->>+[<]<-]>>.>---.+++++++..+++.>>.<-.<.+++.------.--------.>>+.>++."
	require.Equal(t, "Hello World!\n", runWithIO(t, hello, ""))
}

func TestEchoesInputByte(t *testing.T) {
	require.Equal(t, "A", runWithIO(t, ",.", "A"))
}

func TestEOFZeroDefault(t *testing.T) {
	require.Equal(t, "\x00", runWithIO(t, ",.", ""))
}

func TestEOFMinusOneBehavior(t *testing.T) {
	require.Equal(t, "\xff", runWithIO(t, ",.", "", WithEOFBehavior(EOFMinusOne)))
}

func TestEOFNoChangeLeavesCellUnchanged(t *testing.T) {
	// Prime the cell to 'A' with +'s, then an EOF read must leave it alone.
	src := strings.Repeat("+", 65) + ",."
	require.Equal(t, "A", runWithIO(t, src, "", WithEOFBehavior(EOFNoChange)))
}

func TestTapeWrapsAtBothEnds(t *testing.T) {
	// Shift left from cell 0 must wrap to the last cell, not underflow.
	ops := compile(t, "<+.")
	var out bytes.Buffer
	v := NewVM(WithMemorySize(10), WithOutput(&out))
	require.NoError(t, v.Run(ops))
	require.Equal(t, []byte{1}, out.Bytes())

	// Shift right from the last cell must wrap back to cell 0.
	ops = compile(t, "+>>>>>>>>>>.")
	out.Reset()
	v = NewVM(WithMemorySize(10), WithOutput(&out))
	require.NoError(t, v.Run(ops))
	require.Equal(t, []byte{1}, out.Bytes())
}

func TestAddToTransfersAndZeroesSourceCell(t *testing.T) {
	// "+++[->+<]" transfers 3 into the next cell and zeroes the source.
	ops := compile(t, "+++[->+<]>.<.")
	var out bytes.Buffer
	v := NewVM(WithOutput(&out))
	require.NoError(t, v.Run(ops))
	require.Equal(t, []byte{3, 0}, out.Bytes())
}

func TestMoveUntilScansToZeroCell(t *testing.T) {
	// Three cells of 1, then a zero: "[>]" from cell 0 (already non-zero)
	// should land the pointer on the zero cell.
	ops := compile(t, "+>+>+<<[>]<.")
	var out bytes.Buffer
	v := NewVM(WithOutput(&out))
	require.NoError(t, v.Run(ops))
	require.Equal(t, []byte{1}, out.Bytes())
}

func TestOutputErrorIsReturnedAsRuntimeError(t *testing.T) {
	ops := compile(t, "+.")
	v := NewVM(WithOutput(failingWriter{}))
	err := v.Run(ops)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, bytes.ErrTooLarge }
