package tracer

import (
	"fmt"
	"io"
	"os"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"

	"ia2/internal/abi"
)

// tracedSyscalls are the memory-management syscalls the filter routes
// to the tracer via SECCOMP_RET_TRACE.
var tracedSyscalls = []string{"mmap", "mprotect", "mremap", "munmap", "madvise", "pkey_mprotect"}

// allowedSyscalls is the benign whitelist: ordinary operation needs no
// compartment-boundary decision.
var allowedSyscalls = []string{
	"read", "write", "readv", "writev", "pread64", "pwrite64",
	"open", "openat", "close", "fstat", "stat", "lstat", "lseek",
	"brk", "rt_sigaction", "rt_sigprocmask", "rt_sigreturn",
	"futex", "exit", "exit_group", "clone", "fork", "vfork", "execve",
	"wait4", "getpid", "gettid", "sched_yield", "nanosleep",
	"clock_gettime", "clock_nanosleep", "sched_getaffinity",
	"socket", "connect", "accept4", "sendto", "recvfrom", "poll",
	"epoll_wait", "epoll_ctl", "ioctl", "fcntl", "pipe2", "dup", "dup3",
	"set_robust_list", "prlimit64", "arch_prctl", "set_tid_address",
	"rseq", "getrandom", "uname",
}

// buildFilterBytes compiles the seccomp-bpf program described above into
// the raw sock_fprog wire format, for installing into the traced child
// via ptrace syscall injection. filter.Load would install into the
// calling process, not the tracee, so the filter is exported instead of
// loaded directly.
func buildFilterBytes(arch abi.Arch) ([]byte, error) {
	filter, err := seccomp.NewFilter(seccomp.ActKillProcess)
	if err != nil {
		return nil, err
	}
	defer filter.Release()

	scmpArch := seccomp.ArchAMD64
	if arch == abi.ArchAArch64 {
		scmpArch = seccomp.ArchARM64
	}
	if err := filter.AddArch(scmpArch); err != nil {
		return nil, err
	}
	if err := filter.SetTsync(true); err != nil {
		return nil, fmt.Errorf("enable TSYNC (all threads must share this filter): %w", err)
	}

	for _, name := range allowedSyscalls {
		call, err := seccomp.GetSyscallFromNameByArch(name, scmpArch)
		if err != nil {
			continue // not defined on this arch
		}
		if err := filter.AddRule(call, seccomp.ActAllow); err != nil {
			return nil, err
		}
	}
	for _, name := range tracedSyscalls {
		call, err := seccomp.GetSyscallFromNameByArch(name, scmpArch)
		if err != nil {
			continue
		}
		if err := filter.AddRule(call, seccomp.ActTrace.SetReturnCode(0)); err != nil {
			return nil, err
		}
	}
	// Self-forbid further seccomp(2) calls: once installed the tracee
	// may not tighten or replace its own filter.
	if call, err := seccomp.GetSyscallFromNameByArch("seccomp", scmpArch); err == nil {
		if err := filter.AddRule(call, seccomp.ActErrno.SetReturnCode(uint16(unix.EACCES))); err != nil {
			return nil, err
		}
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	errc := make(chan error, 1)
	go func() { errc <- filter.ExportBPF(w) }()
	data, readErr := io.ReadAll(r)
	w.Close()
	if exportErr := <-errc; exportErr != nil {
		return nil, exportErr
	}
	if readErr != nil {
		return nil, readErr
	}
	return data, nil
}
