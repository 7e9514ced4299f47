// Package jit emits a position-independent x86-64 function body from a
// Brainfuck IR stream and materialises it as executable memory. Unlike
// internal/codegen/linux's freestanding _start, the body here follows the
// SystemV x86-64 calling convention spec.md §4.2 describes for the common
// code generator: argument 1 (the tape base pointer) arrives in rdi, and
// the function returns an int64 result — 0 on success, the negated errno
// of whichever syscall failed otherwise — so the materialiser can turn it
// back into a Go error without taking ownership of a foreign heap
// allocation (see DESIGN.md's note on the FFI error-ownership Open
// Question).
//
// I/O is lowered to raw write(2)/read(2) syscalls emitted directly into
// the function body, the same approach
// _examples/original_source/singlepass-jit takes, rather than a call back
// into Go: crossing from freshly-mapped machine code into Go's own
// (non-SystemV) calling convention would need its own assembly trampoline
// per call site, and the syscall ABI is already stable and exactly what a
// libc write()/read() would do on Linux.
package jit

import (
	"encoding/binary"

	"github.com/lcox74/bfcc/internal/core"
	"github.com/lcox74/bfcc/pkg/amd64"
)

// Linux x86-64 syscall numbers used by inline I/O.
const (
	sysRead  = 0
	sysWrite = 1
)

// Register convention, per spec.md §4.2: r12 is the tape base (loaded from
// the incoming rdi argument), r13 is the tape-relative cell index.
var (
	tapeBase = amd64.R12
	dataPtr  = amd64.R13
	scratch  = amd64.RAX
)

// jumpFixup records a location that needs a rel32 patched in once the
// target's final code offset is known.
type jumpFixup struct {
	offset    int
	targetIdx int // IR index, or one of the exit sentinels below
}

// Sentinel target indices outside the range of any real IR index,
// resolved against labelled exit points rather than the IR's labelAddr map.
const (
	targetMainExit = -1
)

// Generator produces a SystemV-callable x86-64 function body from IR.
type Generator struct {
	ops       []core.Op
	code      []byte
	targets   map[int]bool
	labelAddr map[int]int
	fixups    []jumpFixup
	mainExit  int // code offset of the shared pop/ret epilogue
}

// NewGenerator creates a Generator for the given IR stream.
func NewGenerator(ops []core.Op) *Generator {
	g := &Generator{
		ops:       ops,
		code:      make([]byte, 0, 4096),
		targets:   make(map[int]bool),
		labelAddr: make(map[int]int),
	}
	g.collectTargets()
	return g
}

func (g *Generator) collectTargets() {
	for _, op := range g.ops {
		if op.Kind == core.OpJz || op.Kind == core.OpJnz {
			g.targets[op.Arg] = true
		}
	}
}

// Generate produces the finalised, relocation-free function body. The
// returned bytes are position-independent: every branch target lies within
// the buffer and is resolved before return.
func (g *Generator) Generate() []byte {
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

	// Success path: fall into the shared exit with a zeroed return value.
	g.emitBytes(amd64.XorReg64Reg64(amd64.RAX, amd64.RAX))

	g.mainExit = len(g.code)
	g.emitEpilogue()

	g.resolveFixups()
	return g.code
}

func (g *Generator) emitBytes(b []byte) { g.code = append(g.code, b...) }

// emitPrologue saves the callee-saved registers the function reserves and
// loads the incoming tape-base argument, per spec.md §4.2: "saves rbp,
// then r12 and r13 (in that order), moves the incoming argument into r12,
// and zeroes r13".
func (g *Generator) emitPrologue() {
	g.emitBytes(amd64.PushReg64(amd64.RBP))
	g.emitBytes(amd64.PushReg64(tapeBase))
	g.emitBytes(amd64.PushReg64(dataPtr))
	g.emitBytes(amd64.MovReg64Reg64(tapeBase, amd64.RDI))
	g.emitBytes(amd64.XorReg64Reg64(dataPtr, dataPtr))
}

// emitEpilogue restores the callee-saved registers in reverse push order
// and returns. rax already holds the function's result at this point.
func (g *Generator) emitEpilogue() {
	g.emitBytes(amd64.PopReg64(dataPtr))
	g.emitBytes(amd64.PopReg64(tapeBase))
	g.emitBytes(amd64.PopReg64(amd64.RBP))
	g.emitBytes(amd64.Ret())
}

func (g *Generator) emitOp(op core.Op) {
	switch op.Kind {
	case core.OpShift:
		g.emitShift(op.Arg)
	case core.OpAdd:
		g.emitAdd(op.Arg)
	case core.OpZero:
		g.emitZero()
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

func (g *Generator) emitZero() {
	g.emitBytes(amd64.MovbZeroMem(tapeBase, dataPtr))
}

// emitOut lowers Output to: lea rsi, [tapeBase+dataPtr]; write(1, rsi, 1);
// if the syscall's signed return is negative, jump to the shared exit with
// that value (a negated errno) already in rax.
func (g *Generator) emitOut() {
	g.emitBytes(amd64.LeaMemToReg64(amd64.RSI, tapeBase, dataPtr))
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RAX, sysWrite))
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RDI, 1))
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RDX, 1))
	g.emitBytes(amd64.Syscall())
	g.emitErrorCheck()
}

// emitIn lowers Input to: lea rsi, [tapeBase+dataPtr]; read(0, rsi, 1);
// error-check as emitOut does, then fold EOF (a zero return) into a zero
// byte at the current cell, matching spec.md §7's local EOF conversion.
func (g *Generator) emitIn() {
	g.emitBytes(amd64.LeaMemToReg64(amd64.RSI, tapeBase, dataPtr))
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RAX, sysRead))
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RDI, 0))
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RDX, 1))
	g.emitBytes(amd64.Syscall())
	g.emitErrorCheck()

	g.emitBytes(amd64.TestReg32Reg32(amd64.RAX)) // rax in {0,1} here: 0 == EOF
	jnzOffset := len(g.code) + 2
	g.emitBytes(amd64.JnzRel32(0))
	g.emitBytes(amd64.MovbZeroMem(tapeBase, dataPtr))
	g.patchRel32(jnzOffset, len(g.code))
}

// emitErrorCheck reserves a forward jl to the shared exit point and
// appends it to the fixup list; resolveFixups patches it once mainExit's
// offset is known.
func (g *Generator) emitErrorCheck() {
	g.emitBytes(amd64.CmpReg64Imm8(amd64.RAX, 0))
	g.fixups = append(g.fixups, jumpFixup{offset: len(g.code) + 2, targetIdx: targetMainExit})
	g.emitBytes(amd64.JlRel32(0))
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

// emitMoveUntil lowers MoveUntil(step) as a while-loop, matching spec.md
// §4.2's "test cell, exit on zero, else move, jump back" order and
// internal/vm's `for memory[v.dp] != 0 { move }`: the cell under the
// pointer is tested before ever moving, so a loop entered with the cell
// already zero performs no move at all.
func (g *Generator) emitMoveUntil(step int) {
	loopHead := len(g.code)
	g.emitBytes(amd64.TestbMem(tapeBase, dataPtr))
	jzOffset := len(g.code) + 2
	g.emitBytes(amd64.JzRel32(0))
	g.emitBytes(amd64.ModularShift(dataPtr, scratch, int32(step), core.TapeSize))
	rel32 := int32(loopHead - (len(g.code) + 5))
	g.emitBytes(amd64.JmpRel32(rel32))
	g.patchRel32(jzOffset, len(g.code))
}

// patchRel32 fixes up the rel32 immediate at rel32FieldOffset so the branch
// lands at targetOffset, used for the forward rel32 branches that emitIn and
// emitMoveUntil resolve themselves (no forward-reference bookkeeping needed
// since the target is known before the emitting call returns).
func (g *Generator) patchRel32(rel32FieldOffset, targetOffset int) {
	instrEnd := rel32FieldOffset + 4
	rel32 := int32(targetOffset - instrEnd)
	binary.LittleEndian.PutUint32(g.code[rel32FieldOffset:], uint32(rel32))
}

func (g *Generator) resolveFixups() {
	for _, fixup := range g.fixups {
		var targetAddr int
		if fixup.targetIdx == targetMainExit {
			targetAddr = g.mainExit
		} else {
			targetAddr = g.labelAddr[fixup.targetIdx]
		}
		instrEnd := fixup.offset + 4
		rel32 := int32(targetAddr - instrEnd)
		binary.LittleEndian.PutUint32(g.code[fixup.offset:], uint32(rel32))
	}
}
