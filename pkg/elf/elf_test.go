package elf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildProducesValidHeaderAndSingleLoadSegment(t *testing.T) {
	code := []byte{0x90, 0x90, 0xC3} // nop; nop; ret
	b := NewBuilder()
	b.SetEntry(0x400000)
	b.SetCode(code, 0x400000, PF_R|PF_X)

	out := b.Build()
	require.GreaterOrEqual(t, len(out), ELF64HeaderSize+ELF64PhdrSize)

	require.Equal(t, []byte{ELFMAG0, ELFMAG1, ELFMAG2, ELFMAG3}, out[0:4])
	require.Equal(t, byte(ELFCLASS64), out[4])
	require.Equal(t, byte(ELFDATA2LSB), out[5])

	eType := binary.LittleEndian.Uint16(out[16:18])
	require.Equal(t, uint16(ET_EXEC), eType)

	phOff := binary.LittleEndian.Uint64(out[32:40])
	require.Equal(t, uint64(ELF64HeaderSize), phOff)

	phNum := binary.LittleEndian.Uint16(out[56:58])
	require.Equal(t, uint16(1), phNum, "executable must carry exactly one PT_LOAD segment")

	// The single program header: type, flags, then off/vaddr/paddr/filesz/memsz/align.
	phdr := out[phOff : phOff+ELF64PhdrSize]
	require.Equal(t, uint32(PT_LOAD), binary.LittleEndian.Uint32(phdr[0:4]))
	require.Equal(t, uint32(PF_R|PF_X), binary.LittleEndian.Uint32(phdr[4:8]))
	vaddr := binary.LittleEndian.Uint64(phdr[16:24])
	require.Equal(t, uint64(0x400000), vaddr)
	fileSz := binary.LittleEndian.Uint64(phdr[32:40])
	memSz := binary.LittleEndian.Uint64(phdr[40:48])
	require.Equal(t, uint64(len(code)), fileSz)
	require.Equal(t, fileSz, memSz, "no BSS: file size and memory size must match exactly")
}

func TestBuildEmitsFourSectionHeaders(t *testing.T) {
	code := []byte{0xC3}
	b := NewBuilder()
	b.SetEntry(0x400000)
	b.SetCode(code, 0x400000, PF_R|PF_X)
	out := b.Build()

	shNum := binary.LittleEndian.Uint16(out[60:62])
	shStrNdx := binary.LittleEndian.Uint16(out[62:64])
	require.Equal(t, uint16(4), shNum, "null + .text + .strtab + .shstrtab")
	require.Equal(t, uint16(3), shStrNdx)
}

func TestBuildPlacesCodeAtPageAlignedOffset(t *testing.T) {
	code := []byte{0xC3}
	b := NewBuilder()
	b.SetEntry(0x400000)
	b.SetCode(code, 0x400000, PF_R|PF_X)
	out := b.Build()

	phOff := binary.LittleEndian.Uint64(out[32:40])
	phdr := out[phOff : phOff+ELF64PhdrSize]
	fileOff := binary.LittleEndian.Uint64(phdr[8:16])
	require.Equal(t, uint64(0), fileOff%PageSize)
	require.Equal(t, code, out[fileOff:fileOff+uint64(len(code))])
}

func TestObjectBuilderProducesRelocatableHeader(t *testing.T) {
	code := []byte{0xC3}
	ob := NewObjectBuilder(code)
	ob.AddSymbol(Symbol{Name: "_start", Value: 0, Defined: true, Global: true, Func: true})
	ob.AddSymbol(Symbol{Name: "bf_exit", Global: true, Func: true})
	ob.AddReloc(Reloc{Offset: 1, Symbol: "bf_exit", Addend: -4})

	out := ob.Build()
	require.Equal(t, []byte{ELFMAG0, ELFMAG1, ELFMAG2, ELFMAG3}, out[0:4])

	eType := binary.LittleEndian.Uint16(out[16:18])
	require.Equal(t, uint16(ET_REL), eType)

	phNum := binary.LittleEndian.Uint16(out[56:58])
	require.Equal(t, uint16(0), phNum, "a relocatable object carries no program headers")

	shNum := binary.LittleEndian.Uint16(out[60:62])
	require.Equal(t, uint16(6), shNum, "null+.text+.symtab+.strtab+.shstrtab+.rela.text")
}

func TestObjectBuilderOmitsRelaSectionWhenNoRelocations(t *testing.T) {
	ob := NewObjectBuilder([]byte{0xC3})
	ob.AddSymbol(Symbol{Name: "_start", Defined: true, Global: true, Func: true})
	out := ob.Build()

	shNum := binary.LittleEndian.Uint16(out[60:62])
	require.Equal(t, uint16(5), shNum, "null+.text+.symtab+.strtab+.shstrtab, no .rela.text")
}

func TestObjectBuilderIsDeterministic(t *testing.T) {
	ob := func() *ObjectBuilder {
		b := NewObjectBuilder([]byte{0x90, 0xC3})
		b.AddSymbol(Symbol{Name: "_start", Defined: true, Global: true, Func: true})
		b.AddSymbol(Symbol{Name: "bf_write", Global: true, Func: true})
		b.AddReloc(Reloc{Offset: 1, Symbol: "bf_write", Addend: -4})
		return b
	}
	require.Equal(t, ob().Build(), ob().Build())
}
