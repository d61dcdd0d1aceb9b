package tracer

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// injectSyscall makes the stopped tracee execute one syscall on the
// tracer's behalf: save its registers and the instruction word at its
// current PC, overwrite that word with a bare syscall instruction and
// the registers with the requested call, single-step across it, read
// the return value, then restore everything exactly as it was. Used to
// install the seccomp filter into the child before any of its own code
// runs (see installSeccompFilter) — a ptrace technique, not a generic
// facility the sandboxed program may invoke itself.
func injectSyscall(pid int, nr int64, args ...uint64) (int64, error) {
	var saved unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &saved); err != nil {
		return 0, fmt.Errorf("save registers: %w", err)
	}

	insn := syscallInsn()
	savedCode := make([]byte, len(insn))
	if _, err := unix.PtracePeekData(pid, uintptr(pc(&saved)), savedCode); err != nil {
		return 0, fmt.Errorf("peek instruction word: %w", err)
	}
	if _, err := unix.PtracePokeData(pid, uintptr(pc(&saved)), insn); err != nil {
		return 0, fmt.Errorf("poke syscall instruction: %w", err)
	}
	restore := func() error {
		if _, err := unix.PtracePokeData(pid, uintptr(pc(&saved)), savedCode); err != nil {
			return fmt.Errorf("restore instruction word: %w", err)
		}
		if err := unix.PtraceSetRegs(pid, &saved); err != nil {
			return fmt.Errorf("restore registers: %w", err)
		}
		return nil
	}

	call := saved
	setSysNum(&call, nr)
	for i, a := range args {
		setSysArg(&call, i, a)
	}
	if err := unix.PtraceSetRegs(pid, &call); err != nil {
		restore()
		return 0, fmt.Errorf("set call registers: %w", err)
	}

	if err := unix.PtraceSingleStep(pid); err != nil {
		restore()
		return 0, fmt.Errorf("single-step syscall: %w", err)
	}
	var status unix.WaitStatus
	if _, err := unix.Wait4(pid, &status, 0, nil); err != nil {
		restore()
		return 0, fmt.Errorf("wait for single-step: %w", err)
	}

	var after unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &after); err != nil {
		restore()
		return 0, fmt.Errorf("read return registers: %w", err)
	}
	ret := sysRet(&after)

	if err := restore(); err != nil {
		return ret, err
	}
	return ret, nil
}

// sockFprog mirrors struct sock_fprog from linux/filter.h: a length-
// prefixed pointer to a BPF instruction array, the wire format
// ExportBPF produces and SECCOMP_SET_MODE_FILTER expects.
type sockFprog struct {
	Len    uint16
	_      [6]byte // padding to the pointer's natural alignment
	Filter uint64  // tracee-side address of the instruction array
}

const (
	seccompSetModeFilter     = 1 // SECCOMP_SET_MODE_FILTER
	seccompFilterFlagTsync   = 1 // SECCOMP_FILTER_FLAG_TSYNC
	prSetNoNewPrivs          = 38
	sockFilterInstructionLen = 8 // sizeof(struct sock_filter)
)

// installSeccompFilter writes bpf (the raw sock_fprog-format bytes
// ExportBPF produced) into scratch space below the tracee's current
// stack pointer, then injects prctl(PR_SET_NO_NEW_PRIVS) and
// seccomp(SECCOMP_SET_MODE_FILTER) calls so the tracee installs the
// filter on itself, exactly as if its own pre-main startup code had
// called seccomp(2) — before any of its instructions have executed.
func installSeccompFilter(pid int, bpf []byte) error {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return fmt.Errorf("read registers: %w", err)
	}

	// A generous red zone below the current SP, page-aligned down, well
	// clear of anything the loader has set up there.
	scratch := (sp(&regs) - 1<<16) &^ 0xfff
	instrAddr := scratch + 64

	prog := sockFprog{Len: uint16(len(bpf) / sockFilterInstructionLen), Filter: instrAddr}
	progBytes := make([]byte, 16)
	binary.LittleEndian.PutUint16(progBytes[0:2], prog.Len)
	binary.LittleEndian.PutUint64(progBytes[8:16], prog.Filter)

	if _, err := unix.PtracePokeData(pid, uintptr(scratch), progBytes); err != nil {
		return fmt.Errorf("write sock_fprog header: %w", err)
	}
	if _, err := unix.PtracePokeData(pid, uintptr(instrAddr), bpf); err != nil {
		return fmt.Errorf("write bpf instructions: %w", err)
	}

	if ret, err := injectSyscall(pid, unix.SYS_PRCTL, prSetNoNewPrivs, 1, 0, 0, 0); err != nil || ret != 0 {
		return fmt.Errorf("inject prctl(PR_SET_NO_NEW_PRIVS): ret=%d err=%v", ret, err)
	}
	if ret, err := injectSyscall(pid, unix.SYS_SECCOMP, seccompSetModeFilter, seccompFilterFlagTsync, uint64(scratch)); err != nil || ret != 0 {
		return fmt.Errorf("inject seccomp(SECCOMP_SET_MODE_FILTER): ret=%d err=%v", ret, err)
	}
	return nil
}
