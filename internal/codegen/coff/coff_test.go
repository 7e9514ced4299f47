package coff

import (
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

func TestBuildObjectHasAMD64FileHeader(t *testing.T) {
	ops := compile(t, "++.")
	out := BuildObject(ops)

	require.GreaterOrEqual(t, len(out), fileHeaderSize+sectionHeaderSize)
	machine := uint16(out[0]) | uint16(out[1])<<8
	require.Equal(t, uint16(imageFileMachineAMD64), machine)

	numSections := uint16(out[2]) | uint16(out[3])<<8
	require.Equal(t, uint16(1), numSections)
}

func TestBuildObjectIsDeterministic(t *testing.T) {
	ops := compile(t, "++[>+<-]>.")
	a := BuildObject(ops)
	b := BuildObject(ops)
	require.Equal(t, a, b)
}

func TestLongSymbolNameGoesToStringTable(t *testing.T) {
	// WinMain is 7 bytes, fits inline; bf_write/bf_read/bf_exit also fit
	// inline (<=8 bytes) — exercise the string-table path directly with a
	// name long enough to force it.
	b := NewBuilder([]byte{0x90})
	b.AddSymbol(Symbol{Name: "a_name_longer_than_eight_bytes", Defined: true})
	out := b.Build()
	require.NotEmpty(t, out)
	require.Contains(t, string(out), "a_name_longer_than_eight_bytes")
}
