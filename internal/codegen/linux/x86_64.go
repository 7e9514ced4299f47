// Package linux produces ELF64 x86_64 Linux executables from IR operations.
package linux

import (
	"encoding/binary"

	"github.com/lcox74/bfcc/internal/core"
	"github.com/lcox74/bfcc/pkg/amd64"
	"github.com/lcox74/bfcc/pkg/elf"
)

// Linux syscall numbers
const (
	// sysRead = 0 // Omitted, it's quicker to use xor to zero out
	sysWrite = 1
	sysExit  = 60
	sysMmap  = 9
)

// mmap(2) flags for the anonymous tape mapping: PROT_READ|PROT_WRITE and
// MAP_PRIVATE|MAP_ANONYMOUS.
const (
	mmapProtRW   = 0x1 | 0x2
	mmapPrivAnon = 0x02 | 0x20
	mmapNoFD     = -1
)

// CodeBase is the virtual address of the single PT_LOAD segment, per
// spec.md §4.4. The tape has no fixed address: it's mmap'd at process
// start (the same way the JIT and object back-ends obtain it), which is
// what lets the executable stay a single-segment file instead of needing
// a second PT_LOAD for BSS.
const CodeBase = 0x400000

// Register convention for this back-end: the tape base is obtained from
// mmap(2) at process start and lives in R13, the data pointer lives in R12. A scratch 32-bit
// register (RAX) is used by the modular-wraparound sequence.
var (
	tapeBase = amd64.R13
	dataPtr  = amd64.R12
	scratch  = amd64.RAX
)

// jumpFixup records a location that needs to be patched with a relative offset.
type jumpFixup struct {
	offset    int // Offset in code where rel32 starts
	targetIdx int // IR index of the jump target
}

// X86_64Generator produces x86_64 machine code from IR operations.
type X86_64Generator struct {
	ops       []core.Op
	code      []byte
	targets   map[int]bool // IR indices that are jump targets
	labelAddr map[int]int  // IR index -> code offset
	fixups    []jumpFixup  // Jumps that need patching
	codeBase  uint64       // Virtual address where code will be loaded
}

// NewX86_64Generator creates a new x86_64 machine code generator. The code
// segment's file offset is always page-aligned (pkg/elf.Builder places
// PT_LOAD right after the single program header, rounded up to PageSize),
// so per spec.md §4.4's `p_vaddr = 0x400000 + (text_offset mod 0x1000)`
// rule the virtual address is exactly CodeBase.
func NewX86_64Generator(ops []core.Op) *X86_64Generator {
	g := &X86_64Generator{
		ops:       ops,
		code:      make([]byte, 0, 4096),
		targets:   make(map[int]bool),
		labelAddr: make(map[int]int),
		codeBase:  CodeBase,
	}
	g.collectTargets()
	return g
}

// collectTargets finds all jump target indices.
func (g *X86_64Generator) collectTargets() {
	for _, op := range g.ops {
		if op.Kind == core.OpJz || op.Kind == core.OpJnz {
			g.targets[op.Arg] = true
		}
	}
}

// Generate produces raw x86_64 machine code.
func (g *X86_64Generator) Generate() []byte {
	g.emitPrologue()

	for i, op := range g.ops {
		if g.targets[i] {
			g.labelAddr[i] = len(g.code)
		}
		g.emitOp(op)
	}

	// Record final label address if it's a target
	if g.targets[len(g.ops)] {
		g.labelAddr[len(g.ops)] = len(g.code)
	}

	g.emitEpilogue()
	g.emitHelpers()
	g.resolveFixups()

	return g.code
}

// GenerateELF produces a complete ELF64 executable: a single PT_LOAD
// segment holding the code, per spec.md §4.4 — no second segment for the
// tape, since the prologue mmaps it at process start.
func (g *X86_64Generator) GenerateELF() []byte {
	code := g.Generate()

	builder := elf.NewBuilder()
	builder.SetEntry(g.codeBase)
	builder.SetCode(code, g.codeBase, elf.PF_R|elf.PF_X)

	return builder.Build()
}

// emitBytes appends a byte slice to the code buffer.
func (g *X86_64Generator) emitBytes(b []byte) {
	g.code = append(g.code, b...)
}

// emitPrologue outputs the program start: mmap an anonymous RW region for
// the tape into R13, then zero R12 (the data pointer). A fixed BSS-segment
// address would have forced a second PT_LOAD, which spec.md §4.4 rules out
// for this back-end — mmap keeps the executable to the single segment the
// JIT and object back-ends already use the same tape-acquisition idiom for.
func (g *X86_64Generator) emitPrologue() {
	g.emitBytes(amd64.XorReg64Reg64(amd64.RDI, amd64.RDI))             // addr = NULL
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RSI, int32(core.TapeSize))) // length
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RDX, mmapProtRW))           // prot
	g.emitBytes(amd64.MovqImm32Reg64(amd64.R10, mmapPrivAnon))         // flags
	g.emitBytes(amd64.MovqImm32Reg64(amd64.R8, mmapNoFD))              // fd
	g.emitBytes(amd64.XorReg64Reg64(amd64.R9, amd64.R9))               // offset = 0
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RAX, sysMmap))
	g.emitBytes(amd64.Syscall())
	g.emitBytes(amd64.MovReg64Reg64(tapeBase, amd64.RAX)) // r13 = mmap(...)
	g.emitBytes(amd64.XorReg64Reg64(dataPtr, dataPtr))    // r12 = 0
}

// emitEpilogue outputs the exit(0) syscall.
func (g *X86_64Generator) emitEpilogue() {
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RAX, sysExit)) // mov $60, %rax
	g.emitBytes(amd64.XorReg64Reg64(amd64.RDI, amd64.RDI))
	g.emitBytes(amd64.Syscall())
}

// helperReadOffset and helperWriteOffset store the code offsets of helper functions.
var helperReadOffset, helperWriteOffset int

// emitHelpers outputs the I/O helper functions.
func (g *X86_64Generator) emitHelpers() {
	// _bf_read:
	helperReadOffset = len(g.code)
	g.emitBytes(amd64.LeaMemToReg64(amd64.RSI, tapeBase, dataPtr)) // leaq (%r13,%r12), %rsi
	g.emitBytes(amd64.XorReg64Reg64(amd64.RAX, amd64.RAX))         // syscall 0 (read)
	g.emitBytes(amd64.XorReg64Reg64(amd64.RDI, amd64.RDI))         // fd 0 (stdin)
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RDX, 1))
	g.emitBytes(amd64.Syscall())
	g.emitBytes(amd64.Ret())

	// _bf_write:
	helperWriteOffset = len(g.code)
	g.emitBytes(amd64.LeaMemToReg64(amd64.RSI, tapeBase, dataPtr))
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RAX, sysWrite))
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RDI, 1)) // fd 1 (stdout)
	g.emitBytes(amd64.MovqImm32Reg64(amd64.RDX, 1))
	g.emitBytes(amd64.Syscall())
	g.emitBytes(amd64.Ret())
}

// emitOp outputs machine code for a single IR operation.
func (g *X86_64Generator) emitOp(op core.Op) {
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

// emitShift outputs the branchless modular pointer update
// %r12 = (%r12 + k) mod TapeSize, wrapping at the tape bounds the same way
// the interpreter and VM back-ends do.
func (g *X86_64Generator) emitShift(k int) {
	if k == 0 {
		return
	}
	g.emitBytes(amd64.ModularShift(dataPtr, scratch, int32(k), core.TapeSize))
}

// emitAdd outputs: addb/subb $k, (%r13,%r12)
// Tape cells are unsigned bytes [0, 255], so we use separate add/sub with uint8 immediates.
func (g *X86_64Generator) emitAdd(k int) {
	if k == 0 {
		return
	}
	if k > 0 {
		g.emitBytes(amd64.AddbImm8Mem(tapeBase, dataPtr, uint8(k)))
	} else {
		g.emitBytes(amd64.SubbImm8Mem(tapeBase, dataPtr, uint8(-k)))
	}
}

// emitZero outputs: movb $0, (%r13,%r12)
func (g *X86_64Generator) emitZero() {
	g.emitBytes(amd64.MovbZeroMem(tapeBase, dataPtr))
}

// emitIn outputs a call to _bf_read helper.
func (g *X86_64Generator) emitIn() {
	g.fixups = append(g.fixups, jumpFixup{
		offset:    len(g.code) + 1, // rel32 starts at offset 1 in call instruction
		targetIdx: -1,              // Special marker for read helper
	})
	g.emitBytes(amd64.CallRel32(0)) // Placeholder
}

// emitOut outputs a call to _bf_write helper.
func (g *X86_64Generator) emitOut() {
	g.fixups = append(g.fixups, jumpFixup{
		offset:    len(g.code) + 1,
		targetIdx: -2, // Special marker for write helper
	})
	g.emitBytes(amd64.CallRel32(0)) // Placeholder
}

// emitJz outputs: testb $0xff, (%r13,%r12); jz target
func (g *X86_64Generator) emitJz(target int) {
	g.emitBytes(amd64.TestbMem(tapeBase, dataPtr))
	g.fixups = append(g.fixups, jumpFixup{
		offset:    len(g.code) + 2, // rel32 starts at offset 2 in jz instruction
		targetIdx: target,
	})
	g.emitBytes(amd64.JzRel32(0)) // Placeholder
}

// emitJnz outputs: testb $0xff, (%r13,%r12); jnz target
func (g *X86_64Generator) emitJnz(target int) {
	g.emitBytes(amd64.TestbMem(tapeBase, dataPtr))
	g.fixups = append(g.fixups, jumpFixup{
		offset:    len(g.code) + 2, // rel32 starts at offset 2 in jnz instruction
		targetIdx: target,
	})
	g.emitBytes(amd64.JnzRel32(0)) // Placeholder
}

// emitAddTo outputs: movb (%r13,%r12), %al; addb %al, offset(%r13,%r12); movb $0, (%r13,%r12)
// The offset is folded into the index register via a temporary pointer
// shift so the same disp8=0 SIB-addressing helpers used everywhere else
// can be reused unchanged.
func (g *X86_64Generator) emitAddTo(offset int) {
	g.emitBytes(amd64.MovMemToReg8(amd64.RAX, tapeBase, dataPtr)) // movb (%r13,%r12), %al
	g.emitBytes(amd64.ModularShift(dataPtr, scratch, int32(offset), core.TapeSize))
	g.emitBytes(amd64.AddReg8Mem(tapeBase, dataPtr, amd64.RAX)) // addb %al, (%r13,%r12)
	g.emitBytes(amd64.ModularShift(dataPtr, scratch, int32(-offset), core.TapeSize))
	g.emitBytes(amd64.MovbZeroMem(tapeBase, dataPtr))
}

// emitMoveUntil lowers MoveUntil(step) as a while-loop, per spec.md §4.2's
// "test cell, exit on zero, else move, jump back" order (the same order
// internal/vm's `for memory[v.dp] != 0 { move }` implements): the cell is
// tested before the first move, so a loop entered on an already-zero cell
// never moves the pointer.
func (g *X86_64Generator) emitMoveUntil(step int) {
	loopHead := len(g.code)
	g.emitBytes(amd64.TestbMem(tapeBase, dataPtr))
	jzOffset := len(g.code) + 2
	g.emitBytes(amd64.JzRel32(0))
	g.emitBytes(amd64.ModularShift(dataPtr, scratch, int32(step), core.TapeSize))
	rel32 := int32(loopHead - (len(g.code) + 5))
	g.emitBytes(amd64.JmpRel32(rel32))
	patchRel32(g.code, jzOffset, len(g.code))
}

// patchRel32 fixes up the rel32 immediate at fieldOffset so the branch
// lands at targetOffset, for the self-contained forward jump emitMoveUntil
// emits (no entry in the fixups list, since the target is resolved in the
// same call).
func patchRel32(code []byte, fieldOffset, targetOffset int) {
	instrEnd := fieldOffset + 4
	rel32 := int32(targetOffset - instrEnd)
	binary.LittleEndian.PutUint32(code[fieldOffset:], uint32(rel32))
}

// resolveFixups patches all jump and call targets.
func (g *X86_64Generator) resolveFixups() {
	for _, fixup := range g.fixups {
		var targetAddr int
		switch fixup.targetIdx {
		case -1: // read helper
			targetAddr = helperReadOffset
		case -2: // write helper
			targetAddr = helperWriteOffset
		default:
			targetAddr = g.labelAddr[fixup.targetIdx]
		}

		// Calculate relative offset from end of instruction
		// For jz/jnz: instruction ends 4 bytes after rel32 start
		// For call: instruction ends 4 bytes after rel32 start
		instrEnd := fixup.offset + 4
		rel32 := int32(targetAddr - instrEnd)

		// Patch the rel32 in place
		binary.LittleEndian.PutUint32(g.code[fixup.offset:], uint32(rel32))
	}
}
