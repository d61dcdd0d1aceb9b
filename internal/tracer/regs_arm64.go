//go:build arm64

package tracer

import "golang.org/x/sys/unix"

// On AArch64 the syscall number lives in w8 (Regs[8]), arguments in
// x0-x5 (Regs[0..5]), and the return value overwrites x0 on exit; there
// is no separate "orig" register the way x86-64 has Orig_rax, so the
// syscall number must be captured before the kernel's own dispatch
// clobbers nothing (w8 is preserved across entry, unlike Rax on x86).

func sysNum(r *unix.PtraceRegs) int64       { return int64(r.Regs[8]) }
func setSysNum(r *unix.PtraceRegs, n int64) { r.Regs[8] = uint64(n) }

func sysArg(r *unix.PtraceRegs, i int) uint64 {
	if i < 0 || i > 5 {
		return 0
	}
	return r.Regs[i]
}

func setSysArg(r *unix.PtraceRegs, i int, v uint64) {
	if i < 0 || i > 5 {
		return
	}
	r.Regs[i] = v
}

func sysRet(r *unix.PtraceRegs) int64       { return int64(r.Regs[0]) }
func setSysRet(r *unix.PtraceRegs, v int64) { r.Regs[0] = uint64(v) }

func pc(r *unix.PtraceRegs) uint64       { return r.Pc }
func setPC(r *unix.PtraceRegs, v uint64) { r.Pc = v }

func sp(r *unix.PtraceRegs) uint64 { return r.Sp }

// syscallInsn is the 4-byte, little-endian encoding of "svc #0".
func syscallInsn() []byte { return []byte{0x01, 0x00, 0x00, 0xd4} }
