//go:build amd64

package tracer

import "golang.org/x/sys/unix"

// On x86-64, Orig_rax carries the syscall number as the kernel saw it
// at entry (Rax is clobbered with the return value by the time a
// syscall-exit stop is observed), arguments follow the standard SysV
// syscall ABI (rdi, rsi, rdx, r10, r8, r9), and the instruction pointer
// and stack pointer are Rip/Rsp.

func sysNum(r *unix.PtraceRegs) int64 { return int64(r.Orig_rax) }

// setSysNum sets Orig_rax, which the kernel reads at a syscall-entry
// stop, and Rax, which a SYSCALL instruction the tracee has yet to
// execute reads (as during injectSyscall).
func setSysNum(r *unix.PtraceRegs, n int64) {
	r.Orig_rax = uint64(n)
	r.Rax = uint64(n)
}

func sysArg(r *unix.PtraceRegs, i int) uint64 {
	switch i {
	case 0:
		return r.Rdi
	case 1:
		return r.Rsi
	case 2:
		return r.Rdx
	case 3:
		return r.R10
	case 4:
		return r.R8
	case 5:
		return r.R9
	default:
		return 0
	}
}

func setSysArg(r *unix.PtraceRegs, i int, v uint64) {
	switch i {
	case 0:
		r.Rdi = v
	case 1:
		r.Rsi = v
	case 2:
		r.Rdx = v
	case 3:
		r.R10 = v
	case 4:
		r.R8 = v
	case 5:
		r.R9 = v
	}
}

func sysRet(r *unix.PtraceRegs) int64       { return int64(r.Rax) }
func setSysRet(r *unix.PtraceRegs, v int64) { r.Rax = uint64(v) }

func pc(r *unix.PtraceRegs) uint64       { return r.Rip }
func setPC(r *unix.PtraceRegs, v uint64) { r.Rip = v }

func sp(r *unix.PtraceRegs) uint64 { return r.Rsp }

// syscallInsn is the two-byte x86-64 SYSCALL instruction, written into
// tracee memory for syscall injection.
func syscallInsn() []byte { return []byte{0x0f, 0x05} }
