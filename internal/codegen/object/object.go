// Package object lowers IR into a relocatable ELF64 object: a `_start`
// entry point whose Output/Input/exit sites are left as zeroed call
// placeholders and recorded in a relocation table against the three
// undefined symbols spec.md §4.4 names (bf_write, bf_read, bf_exit),
// resolved later by whatever runtime the caller links the object against.
// This is the AOT ELF branch of spec.md §4.4; internal/codegen/coff is its
// Windows COFF sibling built from the same IR-to-relocation pipeline.
package object

import (
	"encoding/binary"

	"github.com/lcox74/bfcc/internal/core"
	"github.com/lcox74/bfcc/internal/xlog"
	"github.com/lcox74/bfcc/pkg/amd64"
	"github.com/lcox74/bfcc/pkg/elf"
)

// Symbol names for the three externally-resolved routines, per spec.md §4.4.
const (
	SymWrite = "bf_write"
	SymRead  = "bf_read"
	SymExit  = "bf_exit"
)

var (
	tapeBase = amd64.R12
	dataPtr  = amd64.R13
	scratch  = amd64.RAX
)

type jumpFixup struct {
	offset    int
	targetIdx int
}

// CallSite records one call-rel32's byte offset and the external symbol it
// targets, for callers (such as internal/codegen/coff) building their own
// relocation table from the same generated code.
type CallSite struct {
	Offset int
	Symbol string
}

const targetErrorExit = -1

// Generator produces the relocatable `.text` body and its call-site table.
type Generator struct {
	ops       []core.Op
	code      []byte
	targets   map[int]bool
	labelAddr map[int]int
	fixups    []jumpFixup
	calls     []CallSite
	errorExit int
}

// NewGenerator creates a Generator for the given IR stream.
func NewGenerator(ops []core.Op) *Generator {
	g := &Generator{
		ops:       ops,
		code:      make([]byte, 0, 4096),
		targets:   make(map[int]bool),
		labelAddr: make(map[int]int),
	}
	for _, op := range ops {
		if op.Kind == core.OpJz || op.Kind == core.OpJnz {
			g.targets[op.Arg] = true
		}
	}
	return g
}

// Generate produces the finalised `.text` bytes and the list of call sites
// that still need relocations against bf_write/bf_read/bf_exit.
func (g *Generator) Generate() (code []byte, calls []CallSite) {
	g.emitPrologue()

	for i, op := range g.ops {
		if g.targets[i] {
			g.labelAddr[i] = len(g.code)
		}
		g.emitOp(op)
	}
	if g.targets[len(g.ops)] {
		g.labelAddr[len(g.ops)] = len(g.code)
	}

	g.emitCall(SymExit)

	g.errorExit = len(g.code)
	g.emitEpilogue()

	g.resolveFixups()
	return g.code, g.calls
}

func (g *Generator) emitBytes(b []byte) { g.code = append(g.code, b...) }

func (g *Generator) emitPrologue() {
	g.emitBytes(amd64.PushReg64(amd64.RBP))
	g.emitBytes(amd64.PushReg64(tapeBase))
	g.emitBytes(amd64.PushReg64(dataPtr))
	g.emitBytes(amd64.MovReg64Reg64(tapeBase, amd64.RDI))
	g.emitBytes(amd64.XorReg64Reg64(dataPtr, dataPtr))
}

func (g *Generator) emitEpilogue() {
	g.emitBytes(amd64.PopReg64(dataPtr))
	g.emitBytes(amd64.PopReg64(tapeBase))
	g.emitBytes(amd64.PopReg64(amd64.RBP))
	g.emitBytes(amd64.Ret())
}

// emitCall appends a `call rel32` whose displacement is left as a zero
// placeholder and recorded as a call site (for the relocation table). The
// branch to the shared error exit after an I/O call is added separately by
// emitErrorCheck.
func (g *Generator) emitCall(symbol string) {
	g.calls = append(g.calls, CallSite{Offset: len(g.code) + 1, Symbol: symbol})
	g.emitBytes(amd64.CallRel32(0))
}

func (g *Generator) emitOp(op core.Op) {
	switch op.Kind {
	case core.OpShift:
		g.emitShift(op.Arg)
	case core.OpAdd:
		g.emitAdd(op.Arg)
	case core.OpZero:
		g.emitBytes(amd64.MovbZeroMem(tapeBase, dataPtr))
	case core.OpIn:
		g.emitIn()
	case core.OpOut:
		g.emitOut()
	case core.OpJz:
		g.emitJz(op.Arg)
	case core.OpJnz:
		g.emitJnz(op.Arg)
	case core.OpAddTo:
		g.emitAddTo(op.Arg)
	case core.OpMoveUntil:
		g.emitMoveUntil(op.Arg)
	}
}

func (g *Generator) emitShift(k int) {
	if k == 0 {
		return
	}
	g.emitBytes(amd64.ModularShift(dataPtr, scratch, int32(k), core.TapeSize))
}

func (g *Generator) emitAdd(k int) {
	if k == 0 {
		return
	}
	if k > 0 {
		g.emitBytes(amd64.AddbImm8Mem(tapeBase, dataPtr, uint8(k)))
	} else {
		g.emitBytes(amd64.SubbImm8Mem(tapeBase, dataPtr, uint8(-k)))
	}
}

// emitOut lowers Output per spec.md §4.2: "Load cell byte into first-arg
// register; emit call to write trampoline; on non-null return jump to exit."
func (g *Generator) emitOut() {
	g.emitBytes(amd64.MovMemToReg8(amd64.RDI, tapeBase, dataPtr))
	g.emitCall(SymWrite)
	g.emitErrorCheck()
}

// emitIn lowers Input per spec.md §4.2: "Compute cell address into
// first-arg register; emit call to read trampoline; on non-null return
// jump to exit."
func (g *Generator) emitIn() {
	g.emitBytes(amd64.LeaMemToReg64(amd64.RDI, tapeBase, dataPtr))
	g.emitCall(SymRead)
	g.emitErrorCheck()
}

func (g *Generator) emitErrorCheck() {
	g.emitBytes(amd64.TestReg64Reg64(amd64.RAX))
	g.fixups = append(g.fixups, jumpFixup{offset: len(g.code) + 2, targetIdx: targetErrorExit})
	g.emitBytes(amd64.JnzRel32(0))
}

func (g *Generator) emitJz(target int) {
	g.emitBytes(amd64.TestbMem(tapeBase, dataPtr))
	g.fixups = append(g.fixups, jumpFixup{offset: len(g.code) + 2, targetIdx: target})
	g.emitBytes(amd64.JzRel32(0))
}

func (g *Generator) emitJnz(target int) {
	g.emitBytes(amd64.TestbMem(tapeBase, dataPtr))
	g.fixups = append(g.fixups, jumpFixup{offset: len(g.code) + 2, targetIdx: target})
	g.emitBytes(amd64.JnzRel32(0))
}

func (g *Generator) emitAddTo(offset int) {
	g.emitBytes(amd64.MovMemToReg8(amd64.RAX, tapeBase, dataPtr))
	g.emitBytes(amd64.ModularShift(dataPtr, scratch, int32(offset), core.TapeSize))
	g.emitBytes(amd64.AddReg8Mem(tapeBase, dataPtr, amd64.RAX))
	g.emitBytes(amd64.ModularShift(dataPtr, scratch, int32(-offset), core.TapeSize))
	g.emitBytes(amd64.MovbZeroMem(tapeBase, dataPtr))
}

// emitMoveUntil lowers MoveUntil(step) as a while-loop, per spec.md §4.2's
// "test cell, exit on zero, else move, jump back" order (the same order
// internal/vm's `for memory[v.dp] != 0 { move }` implements): the cell is
// tested before the first move, so a loop entered on an already-zero cell
// never moves the pointer.
func (g *Generator) emitMoveUntil(step int) {
	loopHead := len(g.code)
	g.emitBytes(amd64.TestbMem(tapeBase, dataPtr))
	jzOffset := len(g.code) + 2
	g.emitBytes(amd64.JzRel32(0))
	g.emitBytes(amd64.ModularShift(dataPtr, scratch, int32(step), core.TapeSize))
	rel32 := int32(loopHead - (len(g.code) + 5))
	g.emitBytes(amd64.JmpRel32(rel32))
	instrEnd := jzOffset + 4
	binary.LittleEndian.PutUint32(g.code[jzOffset:], uint32(int32(len(g.code)-instrEnd)))
}

func (g *Generator) resolveFixups() {
	for _, fixup := range g.fixups {
		var targetAddr int
		if fixup.targetIdx == targetErrorExit {
			targetAddr = g.errorExit
		} else {
			targetAddr = g.labelAddr[fixup.targetIdx]
		}
		instrEnd := fixup.offset + 4
		rel32 := int32(targetAddr - instrEnd)
		binary.LittleEndian.PutUint32(g.code[fixup.offset:], uint32(rel32))
	}
}

// BuildObject runs Generate and serialises the result into a complete
// relocatable ELF64 object via pkg/elf's ObjectBuilder: `_start` defined
// at offset 0, bf_write/bf_read/bf_exit left undefined, and one
// R_X86_64_PLT32-equivalent relocation (addend -4, per spec.md §3) per
// call site.
func BuildObject(ops []core.Op) []byte {
	code, calls := NewGenerator(ops).Generate()

	ob := elf.NewObjectBuilder(code)
	ob.AddSymbol(elf.Symbol{Name: "_start", Value: 0, Defined: true, Global: true, Func: true})
	ob.AddSymbol(elf.Symbol{Name: SymWrite, Global: true, Func: true})
	ob.AddSymbol(elf.Symbol{Name: SymRead, Global: true, Func: true})
	ob.AddSymbol(elf.Symbol{Name: SymExit, Global: true, Func: true})

	for _, c := range calls {
		ob.AddReloc(elf.Reloc{Offset: uint64(c.Offset), Symbol: c.Symbol, Addend: -4})
	}

	xlog.Info("object: ELF64 object built", "text_bytes", len(code), "relocs", len(calls))
	return ob.Build()
}
