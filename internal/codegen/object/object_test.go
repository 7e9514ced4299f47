package object

import (
	"testing"

	"github.com/lcox74/bfcc/internal/core"
	"github.com/lcox74/bfcc/pkg/elf"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) []core.Op {
	t.Helper()
	ops, err := core.Lower(core.Tokenize([]byte(src)))
	require.NoError(t, err)
	return core.Optimise(ops)
}

func TestGenerateRecordsAllThreeCallSymbols(t *testing.T) {
	ops := compile(t, "+.,")
	code, calls := NewGenerator(ops).Generate()
	require.NotEmpty(t, code)

	var sawWrite, sawRead, sawExit bool
	for _, c := range calls {
		switch c.Symbol {
		case SymWrite:
			sawWrite = true
		case SymRead:
			sawRead = true
		case SymExit:
			sawExit = true
		}
		// Every call site's offset must land inside the buffer with room
		// for its trailing rel32 field.
		require.LessOrEqual(t, c.Offset+4, len(code))
	}
	require.True(t, sawWrite, "Output must emit a bf_write call site")
	require.True(t, sawRead, "Input must emit a bf_read call site")
	require.True(t, sawExit, "normal completion must emit a trailing bf_exit call site")
}

func TestGenerateEndsInRetAfterExit(t *testing.T) {
	ops := compile(t, "+++")
	code, _ := NewGenerator(ops).Generate()
	require.Equal(t, byte(0xC3), code[len(code)-1])
}

func TestGenerateErrorExitSkipsTrailingExitCall(t *testing.T) {
	// The I/O error path must jump past the final bf_exit call straight to
	// the shared epilogue, so a failing bf_write's error pointer survives
	// in rax back to the caller.
	ops := compile(t, ".")
	gen := NewGenerator(ops)
	code, calls := gen.Generate()
	require.NotEmpty(t, code)
	require.Less(t, gen.errorExit, len(code))
	// The last recorded call site is the trailing bf_exit; the error exit
	// must land after its rel32 field.
	require.Equal(t, SymExit, calls[len(calls)-1].Symbol)
	require.GreaterOrEqual(t, gen.errorExit, calls[len(calls)-1].Offset+4)
}

func TestBuildObjectProducesValidELFHeader(t *testing.T) {
	ops := compile(t, "++.")
	out := BuildObject(ops)

	require.GreaterOrEqual(t, len(out), 64)
	require.Equal(t, []byte{0x7F, 'E', 'L', 'F'}, out[0:4])
	require.Equal(t, byte(2), out[4], "EI_CLASS must be ELFCLASS64")
	require.Equal(t, byte(1), out[5], "EI_DATA must be ELFDATA2LSB")

	// e_type (offset 16, 2 bytes LE) must be ET_REL.
	eType := uint16(out[16]) | uint16(out[17])<<8
	require.Equal(t, uint16(elf.ET_REL), eType)
}

func TestBuildObjectIsDeterministic(t *testing.T) {
	ops := compile(t, "++[>+<-]>.")
	a := BuildObject(ops)
	b := BuildObject(ops)
	require.Equal(t, a, b)
}
