// Package coff writes the optional Windows COFF object container spec.md
// §1 names as "in-scope-but-optional" for the AOT path: the same
// relocatable contract internal/codegen/object emits for ELF (one `.text`
// section, an externally-resolved `bf_write`/`bf_read`/`bf_exit` trio, a
// PC-relative relocation per call site), laid out as a minimal
// IMAGE_FILE_HEADER object a linker like LLD or MSVC's link.exe can consume.
//
// The entry symbol is named WinMain rather than _start, the convention the
// rest of the corpus's Windows-targeting code
// (_examples/tinyrange-rtg/pkg/...) follows for a process entry point; the
// generated machine code itself is unchanged from internal/codegen/object's
// output, since the instruction encoding depends only on the externally
// resolved symbols, not on the host OS.
package coff

import (
	"encoding/binary"

	"github.com/lcox74/bfcc/internal/codegen/object"
	"github.com/lcox74/bfcc/internal/core"
	"github.com/lcox74/bfcc/internal/xlog"
)

// x86-64 COFF constants (Microsoft PE/COFF spec §§3-5).
const (
	imageFileMachineAMD64 = 0x8664

	imageSCNCntCode            = 0x00000020
	imageSCNMemExecute         = 0x20000000
	imageSCNMemRead            = 0x40000000
	textSectionCharacteristics = imageSCNCntCode | imageSCNMemExecute | imageSCNMemRead

	imageSymUndefined = 0
	imageSymTextSect  = 1

	imageSymTypeFunction  = 0x20
	imageSymClassExternal = 2

	// IMAGE_REL_AMD64_REL32: the stored 32-bit field is patched with
	// S - (P + 4), i.e. relative to the end of the relocated field. That
	// end-of-field offset is implicit in the relocation type itself, unlike
	// ELF's R_X86_64_PLT32 which needs an explicit -4 addend to say the
	// same thing — so no extra adjustment is needed here.
	imageRelAMD64Rel32 = 0x0004

	fileHeaderSize    = 20
	sectionHeaderSize = 40
	relocEntrySize    = 10
	symbolEntrySize   = 18
)

// Symbol mirrors elf.Symbol but without a Func/Global distinction COFF
// doesn't need for this minimal writer: every bfcc-emitted symbol is an
// external function, defined (the entry point) or not.
type Symbol struct {
	Name    string
	Defined bool
}

// Reloc records one call site's patch-up against an external symbol. COFF's
// IMAGE_RELOCATION carries no addend field, unlike ELF's Rela; Offset is
// the rel32 field's own offset, passed through unchanged, and the implicit
// addend is the zero placeholder already stored in that field.
type Reloc struct {
	Offset uint64
	Symbol string
}

// Builder accumulates a .text section, its symbol table, and its
// relocations for a single COFF object file.
type Builder struct {
	Code    []byte
	Symbols []Symbol
	Relocs  []Reloc
}

// NewBuilder creates an empty COFF object builder over the given code.
func NewBuilder(code []byte) *Builder { return &Builder{Code: code} }

func (b *Builder) AddSymbol(s Symbol) { b.Symbols = append(b.Symbols, s) }
func (b *Builder) AddReloc(r Reloc)   { b.Relocs = append(b.Relocs, r) }

// strtab accumulates long (>8 byte) symbol names in COFF's string-table
// format: a 4-byte little-endian total length prefix followed by
// NUL-terminated names.
type strtab struct{ buf []byte }

func newStrtab() *strtab { return &strtab{buf: make([]byte, 4)} }

func (s *strtab) add(name string) uint32 {
	off := uint32(len(s.buf))
	s.buf = append(s.buf, []byte(name)...)
	s.buf = append(s.buf, 0)
	return off
}

func (s *strtab) bytes() []byte {
	binary.LittleEndian.PutUint32(s.buf, uint32(len(s.buf)))
	return s.buf
}

// Build serialises the accumulated state into a complete single-section
// COFF object: IMAGE_FILE_HEADER, one IMAGE_SECTION_HEADER, `.text`'s raw
// bytes, its relocation table, the symbol table, and the string table, in
// that layout order (the order PointerTo* fields in the file header
// require, not a format mandate).
func (b *Builder) Build() []byte {
	strs := newStrtab()

	type nameField [8]byte
	shortName := func(name string) (nameField, bool) {
		var f nameField
		if len(name) > 8 {
			return f, false
		}
		copy(f[:], name)
		return f, true
	}

	symIndex := map[string]uint32{}
	type symEnt struct {
		name    nameField
		longOff uint32
		long    bool
		section uint16
		typ     uint16
	}
	var syms []symEnt
	for _, s := range b.Symbols {
		sect := uint16(imageSymUndefined)
		if s.Defined {
			sect = imageSymTextSect
		}
		entry := symEnt{section: sect, typ: imageSymTypeFunction}
		if f, ok := shortName(s.Name); ok {
			entry.name = f
		} else {
			entry.long = true
			entry.longOff = strs.add(s.Name)
		}
		symIndex[s.Name] = uint32(len(syms))
		syms = append(syms, entry)
	}

	textOff := uint64(fileHeaderSize) + sectionHeaderSize
	textEnd := textOff + uint64(len(b.Code))

	relocOff := textEnd
	relocEnd := relocOff + uint64(len(b.Relocs))*relocEntrySize

	symtabOff := relocEnd
	symtabEnd := symtabOff + uint64(len(syms))*symbolEntrySize

	out := make([]byte, 0, symtabEnd+uint64(len(strs.bytes())))

	// IMAGE_FILE_HEADER
	out = appendLE16(out, imageFileMachineAMD64)
	out = appendLE16(out, 1) // NumberOfSections
	out = appendLE32(out, 0) // TimeDateStamp: zeroed for reproducible output
	out = appendLE32(out, uint32(symtabOff))
	out = appendLE32(out, uint32(len(syms)))
	out = appendLE16(out, 0) // SizeOfOptionalHeader
	out = appendLE16(out, 0) // Characteristics

	// IMAGE_SECTION_HEADER for .text
	var textName [8]byte
	copy(textName[:], ".text")
	out = append(out, textName[:]...)
	out = appendLE32(out, 0) // VirtualSize
	out = appendLE32(out, 0) // VirtualAddress
	out = appendLE32(out, uint32(len(b.Code)))
	out = appendLE32(out, uint32(textOff))
	if len(b.Relocs) > 0 {
		out = appendLE32(out, uint32(relocOff))
	} else {
		out = appendLE32(out, 0)
	}
	out = appendLE32(out, 0) // PointerToLinenumbers
	out = appendLE16(out, uint16(len(b.Relocs)))
	out = appendLE16(out, 0) // NumberOfLinenumbers
	out = appendLE32(out, textSectionCharacteristics)

	out = append(out, b.Code...)

	for _, r := range b.Relocs {
		out = appendLE32(out, uint32(r.Offset))
		out = appendLE32(out, symIndex[r.Symbol])
		out = appendLE16(out, imageRelAMD64Rel32)
	}

	for _, s := range syms {
		if s.long {
			out = appendLE32(out, 0)
			out = appendLE32(out, s.longOff)
		} else {
			out = append(out, s.name[:]...)
		}
		out = appendLE32(out, 0) // Value
		out = appendLE16(out, s.section)
		out = appendLE16(out, s.typ)
		out = append(out, byte(imageSymClassExternal))
		out = append(out, 0) // NumberOfAuxSymbols
	}

	out = append(out, strs.bytes()...)
	return out
}

func appendLE16(out []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(out, tmp[:]...)
}

func appendLE32(out []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(out, tmp[:]...)
}

// BuildObject lowers ops via internal/codegen/object's Generator (the
// machine code and call-site table are OS-independent) and serialises the
// result as a COFF object with a WinMain entry point instead of _start.
func BuildObject(ops []core.Op) []byte {
	code, calls := object.NewGenerator(ops).Generate()

	b := NewBuilder(code)
	b.AddSymbol(Symbol{Name: "WinMain", Defined: true})
	b.AddSymbol(Symbol{Name: object.SymWrite})
	b.AddSymbol(Symbol{Name: object.SymRead})
	b.AddSymbol(Symbol{Name: object.SymExit})

	for _, c := range calls {
		b.AddReloc(Reloc{Offset: uint64(c.Offset), Symbol: c.Symbol})
	}

	xlog.Info("coff: object built", "text_bytes", len(code), "relocs", len(calls))
	return b.Build()
}
