package amd64

// ModularShift emits the branchless update ptr = (ptr + n) mod tapeSize,
// operating on ptr's 32-bit sub-register and a scratch register. It
// implements the two cases spec'd for the tape pointer: moving right wraps
// down from tapeSize, moving left wraps up from zero, and both cases are
// computed as a default (wrapped) value overwritten by a conditional move
// when the unwrapped value was already in range.
//
// n must be non-zero; tapeSize must fit in a signed 32-bit immediate.
func ModularShift(ptr, scratch Reg, n, tapeSize int32) []byte {
	var out []byte
	if n > 0 {
		// tmp = ptr + n ; ptr = ptr + n - tapeSize ; if tmp < tapeSize: ptr = tmp
		out = append(out, LeaBaseDisp32ToReg32(scratch, ptr, n)...)
		out = append(out, LeaBaseDisp32ToReg32(ptr, ptr, n-tapeSize)...)
		out = append(out, CmpReg32Imm32(scratch, tapeSize)...)
		out = append(out, CmovlReg32Reg32(ptr, scratch)...)
		return out
	}
	// n < 0: tmp = ptr + n ; ptr = ptr + n + tapeSize ; if tmp >= 0: ptr = tmp
	out = append(out, LeaBaseDisp32ToReg32(scratch, ptr, n)...)
	out = append(out, LeaBaseDisp32ToReg32(ptr, ptr, n+tapeSize)...)
	out = append(out, TestReg32Reg32(scratch)...)
	out = append(out, CmovnsReg32Reg32(ptr, scratch)...)
	return out
}
