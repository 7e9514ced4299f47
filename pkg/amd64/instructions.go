package amd64

// This file contains x86_64 instruction encoders used by the codegen
// back-ends. Unlike a hardcoded-register encoder, every memory-operand
// helper here takes its base/index registers as parameters so the same
// encoder serves both the static-executable back-end (tape base mmap'd at
// process start, pointer in a single callee-saved register) and the JIT/object
// back-ends (tape base passed in as the function's first argument, per the
// SystemV convention).
//
// For details on x86-64 instruction encoding (REX prefixes, ModRM, SIB
// bytes), see: https://wiki.osdev.org/X86-64_Instruction_Encoding
//
// It was late and the level of headaches were growing, so I had most of
// this generated based on that reference and the gas instructions needed.

// sib encodes a scale-1 SIB byte for [base+index].
func sib(index, base Reg) byte {
	return index.low3()<<3 | base.low3()
}

// modrmSIBDisp8 encodes a ModRM byte selecting "SIB follows" addressing
// with an 8-bit displacement (mod=01) and the given reg field.
func modrmSIBDisp8(reg byte) byte {
	return 0x40 | (reg&7)<<3 | 0x4
}

// modrmSIBDisp32 is the disp32 variant (mod=10), used for LEA with an
// arbitrary signed offset.
func modrmSIBDisp32(reg byte) byte {
	return 0x80 | (reg&7)<<3 | 0x4
}

// MovabsReg64 encodes: movabs $imm64, %dst
func MovabsReg64(dst Reg, imm64 uint64) []byte {
	buf := make([]byte, 10)
	buf[0] = rex(1, 0, 0, dst.ext())
	buf[1] = 0xB8 + dst.low3()
	writeLE64(buf[2:], imm64)
	return buf
}

// XorReg64Reg64 encodes: xorq %src, %dst (the zeroing idiom when src==dst)
func XorReg64Reg64(dst, src Reg) []byte {
	return []byte{
		rex(1, src.ext(), 0, dst.ext()),
		0x31,
		0xC0 | src.low3()<<3 | dst.low3(),
	}
}

// AddqImm32Reg64 encodes: addq $imm32, %dst
func AddqImm32Reg64(dst Reg, imm32 int32) []byte {
	buf := make([]byte, 7)
	buf[0] = rex(1, 0, 0, dst.ext())
	buf[1] = 0x81
	buf[2] = 0xC0 | dst.low3() // /0 = add
	writeLE32(buf[3:], uint32(imm32))
	return buf
}

// SubqImm32Reg64 encodes: subq $imm32, %dst
func SubqImm32Reg64(dst Reg, imm32 int32) []byte {
	buf := make([]byte, 7)
	buf[0] = rex(1, 0, 0, dst.ext())
	buf[1] = 0x81
	buf[2] = 0xE8 | dst.low3() // /5 = sub
	writeLE32(buf[3:], uint32(imm32))
	return buf
}

// AddbImm8Mem encodes: addb $imm8, (base,index) with disp8=0.
func AddbImm8Mem(base, index Reg, imm8 uint8) []byte {
	return []byte{
		rex(0, 0, index.ext(), base.ext()),
		0x80,
		modrmSIBDisp8(0), // /0 = add
		sib(index, base),
		0x00,
		imm8,
	}
}

// SubbImm8Mem encodes: subb $imm8, (base,index) with disp8=0.
func SubbImm8Mem(base, index Reg, imm8 uint8) []byte {
	return []byte{
		rex(0, 0, index.ext(), base.ext()),
		0x80,
		modrmSIBDisp8(5), // /5 = sub
		sib(index, base),
		0x00,
		imm8,
	}
}

// MovbZeroMem encodes: movb $0, (base,index) with disp8=0.
func MovbZeroMem(base, index Reg) []byte {
	return []byte{
		rex(0, 0, index.ext(), base.ext()),
		0xC6,
		modrmSIBDisp8(0), // /0 = mov
		sib(index, base),
		0x00,
		0x00,
	}
}

// MovMemToReg8 encodes: movb (base,index), %dst8 (disp8=0).
func MovMemToReg8(dst, base, index Reg) []byte {
	return []byte{
		rex(0, dst.ext(), index.ext(), base.ext()),
		0x8A,
		modrmSIBDisp8(dst.low3()),
		sib(index, base),
		0x00,
	}
}

// AddReg8Mem encodes: addb %src8, (base,index) with disp8=0 — used by the
// AddTo peephole to fold the current cell's value into another cell.
func AddReg8Mem(base, index, src Reg) []byte {
	return []byte{
		rex(0, src.ext(), index.ext(), base.ext()),
		0x00,
		modrmSIBDisp8(src.low3()),
		sib(index, base),
		0x00,
	}
}

// TestbMem encodes: testb $0xff, (base,index) with disp8=0.
func TestbMem(base, index Reg) []byte {
	return []byte{
		rex(0, 0, index.ext(), base.ext()),
		0xF6,
		modrmSIBDisp8(0), // /0 = test
		sib(index, base),
		0x00,
		0xFF,
	}
}

// LeaMemToReg64 encodes: lea (base,index), %dst (disp8=0) — used to compute
// the address of the current cell for I/O syscalls.
func LeaMemToReg64(dst, base, index Reg) []byte {
	return []byte{
		rex(1, dst.ext(), index.ext(), base.ext()),
		0x8D,
		modrmSIBDisp8(dst.low3()),
		sib(index, base),
		0x00,
	}
}

// LeaBaseDisp32ToReg32 encodes: lea disp32(base), %dst32 — no index
// register. Used by the branchless modular pointer update: the base
// register is the pointer register itself, and this computes base+disp32
// into a (possibly different) 32-bit register, zero-extending it into the
// full 64-bit register as a side effect of the 32-bit operand size.
func LeaBaseDisp32ToReg32(dst, base Reg, disp32 int32) []byte {
	buf := make([]byte, 8)
	buf[0] = rex(0, dst.ext(), 0, base.ext())
	buf[1] = 0x8D
	buf[2] = modrmSIBDisp32(dst.low3())
	buf[3] = sib(4 /* SIB.index=100 => no index */, base)
	writeLE32(buf[4:], uint32(disp32))
	return buf
}

// MovReg32Reg32 encodes: mov %src32, %dst32 (zero-extends dst's upper bits).
func MovReg32Reg32(dst, src Reg) []byte {
	return []byte{
		rex(0, src.ext(), 0, dst.ext()),
		0x89,
		0xC0 | src.low3()<<3 | dst.low3(),
	}
}

// CmpReg32Imm32 encodes: cmp $imm32, %reg32.
func CmpReg32Imm32(reg Reg, imm32 int32) []byte {
	buf := make([]byte, 2, 7)
	buf[0] = 0x81
	buf[1] = 0xF8 | reg.low3() // /7 = cmp
	if reg.ext() == 1 {
		buf = append([]byte{rex(0, 0, 0, 1)}, buf...)
	}
	buf = writeLE32Appending(buf, uint32(imm32))
	return buf
}

func writeLE32Appending(buf []byte, v uint32) []byte {
	var tmp [4]byte
	writeLE32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// TestReg32Reg32 encodes: test %reg, %reg (sets SF/ZF from reg's value).
func TestReg32Reg32(reg Reg) []byte {
	return []byte{
		rex(0, reg.ext(), 0, reg.ext()),
		0x85,
		0xC0 | reg.low3()<<3 | reg.low3(),
	}
}

// TestReg64Reg64 encodes: test %reg, %reg (64-bit) — used to check a
// returned pointer for nullness rather than a syscall's negated errno.
func TestReg64Reg64(reg Reg) []byte {
	return []byte{
		rex(1, reg.ext(), 0, reg.ext()),
		0x85,
		0xC0 | reg.low3()<<3 | reg.low3(),
	}
}

// Condition codes used by the branchless modular pointer update:
// "less than" (SF != OF) and "not sign" (SF == 0).
const (
	condL  = 0xC
	condNS = 0x9
)

func cmovReg32Reg32(cc byte, dst, src Reg) []byte {
	return []byte{
		rex(0, dst.ext(), 0, src.ext()),
		0x0F,
		0x40 + cc,
		0xC0 | dst.low3()<<3 | src.low3(),
	}
}

// CmovlReg32Reg32 encodes: cmovl %src, %dst.
func CmovlReg32Reg32(dst, src Reg) []byte { return cmovReg32Reg32(condL, dst, src) }

// CmovnsReg32Reg32 encodes: cmovns %src, %dst.
func CmovnsReg32Reg32(dst, src Reg) []byte { return cmovReg32Reg32(condNS, dst, src) }

// CmpReg64Imm8 encodes: cmp $imm8, %reg64 (sign-extended 8-bit immediate).
func CmpReg64Imm8(reg Reg, imm8 int8) []byte {
	return []byte{
		rex(1, 0, 0, reg.ext()),
		0x83,
		0xF8 | reg.low3(), // /7 = cmp
		byte(imm8),
	}
}

// JlRel32 encodes: jl rel32 (0F 8C <rel32>), a signed less-than branch —
// used to detect a raw syscall's negated-errno return value.
func JlRel32(rel32 int32) []byte {
	buf := make([]byte, 6)
	buf[0] = 0x0F
	buf[1] = 0x8C
	writeLE32(buf[2:], uint32(rel32))
	return buf
}

// JzRel32 encodes: jz rel32 (0F 84 <rel32>)
func JzRel32(rel32 int32) []byte {
	buf := make([]byte, 6)
	buf[0] = 0x0F
	buf[1] = 0x84
	writeLE32(buf[2:], uint32(rel32))
	return buf
}

// JnzRel32 encodes: jnz rel32 (0F 85 <rel32>)
func JnzRel32(rel32 int32) []byte {
	buf := make([]byte, 6)
	buf[0] = 0x0F
	buf[1] = 0x85
	writeLE32(buf[2:], uint32(rel32))
	return buf
}

// JmpRel32 encodes: jmp rel32 (E9 <rel32>)
func JmpRel32(rel32 int32) []byte {
	buf := make([]byte, 5)
	buf[0] = 0xE9
	writeLE32(buf[1:], uint32(rel32))
	return buf
}

// CallRel32 encodes: call rel32 (E8 <rel32>)
func CallRel32(rel32 int32) []byte {
	buf := make([]byte, 5)
	buf[0] = 0xE8
	writeLE32(buf[1:], uint32(rel32))
	return buf
}

// PushReg64 encodes: push %reg
func PushReg64(reg Reg) []byte {
	if reg.ext() == 1 {
		return []byte{rex(0, 0, 0, 1), 0x50 + reg.low3()}
	}
	return []byte{0x50 + reg.low3()}
}

// PopReg64 encodes: pop %reg
func PopReg64(reg Reg) []byte {
	if reg.ext() == 1 {
		return []byte{rex(0, 0, 0, 1), 0x58 + reg.low3()}
	}
	return []byte{0x58 + reg.low3()}
}

// MovReg64Reg64 encodes: mov %src, %dst (64-bit)
func MovReg64Reg64(dst, src Reg) []byte {
	return []byte{
		rex(1, src.ext(), 0, dst.ext()),
		0x89,
		0xC0 | src.low3()<<3 | dst.low3(),
	}
}

// Ret encodes: ret (C3)
func Ret() []byte { return []byte{0xC3} }

// Syscall encodes: syscall (0F 05)
func Syscall() []byte { return []byte{0x0F, 0x05} }

// MovqImm32Reg64 encodes: movq $imm32, %dst (sign-extended 32-bit immediate).
func MovqImm32Reg64(dst Reg, imm32 int32) []byte {
	buf := make([]byte, 7)
	buf[0] = rex(1, 0, 0, dst.ext())
	buf[1] = 0xC7
	buf[2] = 0xC0 | dst.low3()
	writeLE32(buf[3:], uint32(imm32))
	return buf
}
