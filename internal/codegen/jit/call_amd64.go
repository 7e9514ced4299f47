//go:build linux && amd64

package jit

// callSystemV invokes the function at address fn with tape as its single
// SystemV-ABI argument (passed in rdi) and returns its raw int64 result
// (rax). The implementation lives in call_amd64.s: Go's own calling
// convention is not SystemV, so crossing into machine code produced by
// this package's Generator needs the small hand-written bridge there,
// the same role a cgo call stub or runtime.asmcgocall plays for calls
// into C — there is no third-party package in this corpus for bridging
// a bare function pointer into an arbitrary non-Go ABI, so this one
// function is hand-rolled out of necessity rather than convenience.
func callSystemV(fn uintptr, tape *byte) int64
