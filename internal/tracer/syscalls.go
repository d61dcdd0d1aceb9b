package tracer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mmapArgs holds the decoded arguments of a trapped mmap call.
type mmapArgs struct {
	addr, length uint64
	prot, flags  int
}

func decodeMmapArgs(r *unix.PtraceRegs) mmapArgs {
	return mmapArgs{
		addr:   sysArg(r, 0),
		length: sysArg(r, 1),
		prot:   int(sysArg(r, 2)),
		flags:  int(sysArg(r, 3)),
	}
}

type mremapArgs struct {
	oldAddr, oldLen, newLen uint64
	flags                   int
	newAddr                 uint64
}

func decodeMremapArgs(r *unix.PtraceRegs) mremapArgs {
	return mremapArgs{
		oldAddr: sysArg(r, 0),
		oldLen:  sysArg(r, 1),
		newLen:  sysArg(r, 2),
		flags:   int(sysArg(r, 3)),
		newAddr: sysArg(r, 4),
	}
}

type mprotectArgs struct {
	addr, length uint64
	prot         int
}

func decodeMprotectArgs(r *unix.PtraceRegs) mprotectArgs {
	return mprotectArgs{addr: sysArg(r, 0), length: sysArg(r, 1), prot: int(sysArg(r, 2))}
}

type pkeyMprotectArgs struct {
	addr, length uint64
	prot, pkey   int
}

func decodePkeyMprotectArgs(r *unix.PtraceRegs) pkeyMprotectArgs {
	return pkeyMprotectArgs{
		addr:   sysArg(r, 0),
		length: sysArg(r, 1),
		prot:   int(sysArg(r, 2)),
		pkey:   int(sysArg(r, 3)),
	}
}

type rangeArgs struct {
	addr, length uint64
}

func decodeRangeArgs(r *unix.PtraceRegs) rangeArgs {
	return rangeArgs{addr: sysArg(r, 0), length: sysArg(r, 1)}
}

// syscallName returns a human-readable name for the small set of
// syscalls the filter ever traces; anything else is unexpected (the
// filter only traces these six) and is reported numerically.
func syscallName(nr int64) string {
	switch nr {
	case unix.SYS_MMAP:
		return "mmap"
	case unix.SYS_MPROTECT:
		return "mprotect"
	case unix.SYS_MREMAP:
		return "mremap"
	case unix.SYS_MUNMAP:
		return "munmap"
	case unix.SYS_MADVISE:
		return "madvise"
	case unix.SYS_PKEY_MPROTECT:
		return "pkey_mprotect"
	default:
		return fmt.Sprintf("syscall_%d", nr)
	}
}

// tracedSyscallNum reports whether nr is one of the memory-management
// syscalls the seccomp filter routes to PTRACE_EVENT_SECCOMP, keyed per
// host architecture (the syscall numbers themselves, unlike the
// register layout, are already supplied correctly per-GOARCH by
// x/sys/unix's generated tables).
func tracedSyscallNum(nr int64) bool {
	switch nr {
	case unix.SYS_MMAP, unix.SYS_MPROTECT, unix.SYS_MREMAP, unix.SYS_MUNMAP,
		unix.SYS_MADVISE, unix.SYS_PKEY_MPROTECT:
		return true
	}
	return false
}
