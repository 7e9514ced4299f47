// Package elf provides ELF64 binary format building utilities.
// This package has no dependencies on the compiler internals and can be used
// standalone for generating ELF executables.
package elf

import (
	"encoding/binary"
)

// ELF64 constants
const (
	// ELF identification
	ELFMAG0       = 0x7f
	ELFMAG1       = 'E'
	ELFMAG2       = 'L'
	ELFMAG3       = 'F'
	ELFCLASS64    = 2
	ELFDATA2LSB   = 1 // Little endian
	EV_CURRENT    = 1
	ELFOSABI_NONE = 0

	// ELF types
	ET_EXEC = 2 // Executable file

	// Machine types
	EM_X86_64 = 62

	// Program header types
	PT_NULL = 0
	PT_LOAD = 1

	// Program header flags
	PF_X = 0x1 // Execute
	PF_W = 0x2 // Write
	PF_R = 0x4 // Read

	// Sizes
	ELF64HeaderSize = 64
	ELF64PhdrSize   = 56
	PageSize        = 0x1000
)

// Header64 represents the ELF64 file header.
type Header64 struct {
	Ident     [16]byte // ELF identification
	Type      uint16   // Object file type
	Machine   uint16   // Machine type
	Version   uint32   // Object file version
	Entry     uint64   // Entry point address
	PhOff     uint64   // Program header offset
	ShOff     uint64   // Section header offset
	Flags     uint32   // Processor-specific flags
	EhSize    uint16   // ELF header size
	PhEntSize uint16   // Program header entry size
	PhNum     uint16   // Number of program headers
	ShEntSize uint16   // Section header entry size
	ShNum     uint16   // Number of section headers
	ShStrNdx  uint16   // Section name string table index
}

// Phdr64 represents an ELF64 program header.
type Phdr64 struct {
	Type   uint32 // Segment type
	Flags  uint32 // Segment flags
	Off    uint64 // File offset
	VAddr  uint64 // Virtual address
	PAddr  uint64 // Physical address
	FileSz uint64 // Size in file
	MemSz  uint64 // Size in memory
	Align  uint64 // Alignment
}

// Builder constructs a minimal single-segment ELF64 executable: one
// PT_LOAD segment carrying the code (spec.md §4.4's static executable
// contract). There is deliberately no BSS segment here — a back-end that
// needs scratch memory (the Brainfuck tape) obtains it at runtime via mmap,
// the same way the JIT and object materialisers do, rather than baking a
// fixed load address into the file.
type Builder struct {
	entry    uint64
	vaddr    uint64
	code     []byte
	segFlags uint32
}

// NewBuilder creates a new ELF64 builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetEntry sets the entry point virtual address.
func (b *Builder) SetEntry(vaddr uint64) {
	b.entry = vaddr
}

// SetCode sets the single PT_LOAD segment's contents, virtual address and
// program-header flags.
func (b *Builder) SetCode(data []byte, vaddr uint64, flags uint32) {
	b.vaddr = vaddr
	b.code = data
	b.segFlags = flags
}

// Build produces the final ELF binary: header, one program header, the
// code itself, and a trailing null/.text/.strtab/.shstrtab section-header
// table per spec.md §4.4 (the sections carry no extra data beyond what the
// program header already describes — they exist so tools like `readelf`
// and `objdump` can make sense of the file, not because the loader needs
// them). Unlike pkg/elf/object.go's ObjectBuilder, which has no program
// headers and puts its section headers right after the ELF header, this
// layout places the section-header table after the code.
func (b *Builder) Build() []byte {
	headerSize := ELF64HeaderSize + ELF64PhdrSize
	codeOffset := alignUp(uint64(headerSize), PageSize)
	codeEnd := codeOffset + uint64(len(b.code))

	shstrtab := newStrtab()
	shstrtab.add("")
	textNameOff := shstrtab.add(".text")
	strtabNameOff := shstrtab.add(".strtab")
	shstrtabNameOff := shstrtab.add(".shstrtab")

	strtab := newStrtab()
	strtab.add("")

	shoff := alignUp(codeEnd, 8)
	strtabOff := shoff + 4*ELF64ShdrSize
	shstrtabOff := strtabOff + uint64(len(strtab.buf))

	out := make([]byte, 0, shstrtabOff+uint64(len(shstrtab.buf)))

	out = b.writeHeader(out, shoff)
	out = writePhdr(out, &Phdr64{
		Type:   PT_LOAD,
		Flags:  b.segFlags,
		Off:    codeOffset,
		VAddr:  b.vaddr,
		PAddr:  b.vaddr,
		FileSz: uint64(len(b.code)),
		MemSz:  uint64(len(b.code)),
		Align:  PageSize,
	})

	for uint64(len(out)) < codeOffset {
		out = append(out, 0)
	}
	out = append(out, b.code...)

	for uint64(len(out)) < shoff {
		out = append(out, 0)
	}
	out = writeShdr(out, shdr{}) // [0] NULL
	out = writeShdr(out, shdr{ // [1] .text
		name: textNameOff, typ: SHT_PROGBITS, flags: SHF_ALLOC | SHF_EXECINSTR,
		addr: b.vaddr, offset: codeOffset, size: uint64(len(b.code)), addralign: 16,
	})
	out = writeShdr(out, shdr{ // [2] .strtab
		name: strtabNameOff, typ: SHT_STRTAB,
		offset: strtabOff, size: uint64(len(strtab.buf)), addralign: 1,
	})
	out = writeShdr(out, shdr{ // [3] .shstrtab
		name: shstrtabNameOff, typ: SHT_STRTAB,
		offset: shstrtabOff, size: uint64(len(shstrtab.buf)), addralign: 1,
	})

	out = append(out, strtab.buf...)
	out = append(out, shstrtab.buf...)

	return out
}

// writeHeader writes the ELF64 header.
//
//	ELF Layout (Minimal)
//
//	Offset     Content                Size
//	0x0000     ELF Header             64 bytes
//	0x0040     Program Header         56 bytes (PT_LOAD: code, R+X)
//	0x1000     Code segment           variable (page-aligned)
//	...        null/.text/.strtab/.shstrtab section headers
//
//	Virtual Address:
//	0x400000   Code (mapped from file; the tape, if any, is obtained via
//	           mmap at runtime rather than a second fixed segment)
func (b *Builder) writeHeader(out []byte, shoff uint64) []byte {
	hdr := Header64{
		Type:      ET_EXEC,
		Machine:   EM_X86_64,
		Version:   EV_CURRENT,
		Entry:     b.entry,
		PhOff:     ELF64HeaderSize,
		ShOff:     shoff,
		Flags:     0,
		EhSize:    ELF64HeaderSize,
		PhEntSize: ELF64PhdrSize,
		PhNum:     1,
		ShEntSize: ELF64ShdrSize,
		ShNum:     4,
		ShStrNdx:  3,
	}

	// ELF identification
	hdr.Ident[0] = ELFMAG0
	hdr.Ident[1] = ELFMAG1
	hdr.Ident[2] = ELFMAG2
	hdr.Ident[3] = ELFMAG3
	hdr.Ident[4] = ELFCLASS64
	hdr.Ident[5] = ELFDATA2LSB
	hdr.Ident[6] = EV_CURRENT
	hdr.Ident[7] = ELFOSABI_NONE
	// Ident[8..15] are padding (already zero)

	// Write header bytes
	out = append(out, hdr.Ident[:]...)
	out = appendLE16(out, hdr.Type)
	out = appendLE16(out, hdr.Machine)
	out = appendLE32(out, hdr.Version)
	out = appendLE64(out, hdr.Entry)
	out = appendLE64(out, hdr.PhOff)
	out = appendLE64(out, hdr.ShOff)
	out = appendLE32(out, hdr.Flags)
	out = appendLE16(out, hdr.EhSize)
	out = appendLE16(out, hdr.PhEntSize)
	out = appendLE16(out, hdr.PhNum)
	out = appendLE16(out, hdr.ShEntSize)
	out = appendLE16(out, hdr.ShNum)
	out = appendLE16(out, hdr.ShStrNdx)

	return out
}

// writePhdr writes a program header.
func writePhdr(out []byte, phdr *Phdr64) []byte {
	out = appendLE32(out, phdr.Type)
	out = appendLE32(out, phdr.Flags)
	out = appendLE64(out, phdr.Off)
	out = appendLE64(out, phdr.VAddr)
	out = appendLE64(out, phdr.PAddr)
	out = appendLE64(out, phdr.FileSz)
	out = appendLE64(out, phdr.MemSz)
	out = appendLE64(out, phdr.Align)
	return out
}

// Little-endian append helpers
func appendLE16(out []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(out, buf[:]...)
}

func appendLE32(out []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(out, buf[:]...)
}

func appendLE64(out []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(out, buf[:]...)
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
