// Package tracer implements the out-of-process supervisor: it execs the
// guarded program under ptrace and seccomp, decides permit/deny for
// every trapped memory-management syscall by consulting an
// internal/memmap.Map per traced thread group, and rewrites denied
// syscalls to fail rather than letting the kernel kill the child.
//
// Grounded on the ptrace main-loop shape of gvisor's systrap subprocess
// (wait, fetch registers, decode, act, resume) and on the confinement
// filter-construction style of snapd's seccomp sandbox.
package tracer

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"

	"ia2/internal/abi"
	"ia2/internal/memmap"
)

// Options configures a Supervisor beyond the spec-mandated default
// behavior.
type Options struct {
	// StrictPKRU makes any WRPKRU value outside the canonical
	// per-pkey mask set (or the glibc default values) a fatal tracer
	// error instead of silently mapping it to pkey 0.
	StrictPKRU bool
	// ProfilePath, if non-empty, names a pprof profile file recording
	// one sample per trapped syscall.
	ProfilePath string
}

// procState is the supervisor's bookkeeping for one traced thread
// group: its memory map and the set of tids currently belonging to it.
type procState struct {
	tids map[int]bool
	m    *memmap.Map
}

// Supervisor runs the ptrace+seccomp main loop over one guarded child
// process tree.
type Supervisor struct {
	arch    abi.Arch
	opts    Options
	cmd     *exec.Cmd
	procs   map[int]*procState // tgid -> state
	tidToTg map[int]int        // tid -> owning tgid
	prof    *profiler
}

// Launch execs name with args under ptrace, installs the seccomp filter
// into the child by syscall injection at its first post-exec stop (the
// child image is loaded but has not run a single instruction of its
// own yet), then lets it continue into its own startup. It blocks until
// that handshake completes.
func Launch(name string, args []string, arch abi.Arch, opts Options) (*Supervisor, error) {
	// Every PTRACE_* call for a given tracee must come from the same OS
	// thread that attached to it; pin this goroutine for the lifetime
	// of the supervisor rather than let the Go scheduler migrate it
	// mid-trace.
	runtime.LockOSThread()

	s := &Supervisor{
		arch:    arch,
		opts:    opts,
		procs:   make(map[int]*procState),
		tidToTg: make(map[int]int),
	}
	if opts.ProfilePath != "" {
		p, err := newProfiler(opts.ProfilePath)
		if err != nil {
			return nil, fmt.Errorf("tracer: open profile: %w", err)
		}
		s.prof = p
	}

	cmd := exec.Command(name, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("tracer: start %s: %w", name, err)
	}
	s.cmd = cmd
	pid := cmd.Process.Pid

	var status unix.WaitStatus
	if _, err := unix.Wait4(pid, &status, 0, nil); err != nil {
		return nil, fmt.Errorf("tracer: initial wait: %w", err)
	}
	if !status.Stopped() {
		return nil, fmt.Errorf("tracer: child %d did not stop at exec (status %v)", pid, status)
	}

	filterBytes, err := buildFilterBytes(arch)
	if err != nil {
		return nil, fmt.Errorf("tracer: build seccomp filter: %w", err)
	}
	if err := installSeccompFilter(pid, filterBytes); err != nil {
		return nil, fmt.Errorf("tracer: install seccomp filter: %w", err)
	}

	const traceOpts = unix.PTRACE_O_EXITKILL |
		unix.PTRACE_O_TRACESECCOMP |
		unix.PTRACE_O_TRACECLONE |
		unix.PTRACE_O_TRACEVFORK |
		unix.PTRACE_O_TRACEFORK |
		unix.PTRACE_O_TRACEEXEC |
		unix.PTRACE_O_TRACESYSGOOD
	if err := unix.PtraceSetOptions(pid, traceOpts); err != nil {
		return nil, fmt.Errorf("tracer: PTRACE_SETOPTIONS: %w", err)
	}

	s.newProc(pid, pid)
	if err := unix.PtraceCont(pid, 0); err != nil {
		return nil, fmt.Errorf("tracer: initial PTRACE_CONT: %w", err)
	}
	return s, nil
}

func (s *Supervisor) newProc(tgid, tid int) *procState {
	p, ok := s.procs[tgid]
	if !ok {
		p = &procState{tids: map[int]bool{}, m: memmap.New()}
		s.procs[tgid] = p
	}
	p.tids[tid] = true
	s.tidToTg[tid] = tgid
	return p
}

// Run drives the main loop until every traced process has exited. It
// returns the first unrecoverable error encountered; denied syscalls
// and ordinary child exits are not errors.
func (s *Supervisor) Run() error {
	defer func() {
		if s.prof != nil {
			s.prof.close()
		}
	}()

	for len(s.procs) > 0 {
		var status unix.WaitStatus
		tid, err := unix.Wait4(-1, &status, 0, nil)
		if err != nil {
			if err == unix.ECHILD {
				return nil
			}
			return fmt.Errorf("tracer: wait4: %w", err)
		}

		if status.Exited() || status.Signaled() {
			s.removeTid(tid)
			continue
		}
		if !status.Stopped() {
			continue
		}

		switch sig := status.StopSignal(); {
		case status.TrapCause() == unix.PTRACE_EVENT_CLONE:
			s.handleClone(tid)
			s.resume(tid)
		case status.TrapCause() == unix.PTRACE_EVENT_FORK, status.TrapCause() == unix.PTRACE_EVENT_VFORK:
			s.handleFork(tid)
			s.resume(tid)
		case status.TrapCause() == unix.PTRACE_EVENT_EXEC:
			s.handleExec(tid)
			s.resume(tid)
		case status.TrapCause() == unix.PTRACE_EVENT_SECCOMP:
			if err := s.handleSeccompTrap(tid); err != nil {
				return fmt.Errorf("tracer: %w", err)
			}
		case sig == unix.SIGTRAP|0x80:
			// A generic PTRACE_O_TRACESYSGOOD syscall-stop outside a
			// seccomp trap; nothing this supervisor needs to act on.
			s.resume(tid)
		case sig == unix.SIGSTOP:
			// The initial stop of a thread/process newly auto-attached
			// via PTRACE_O_TRACECLONE/FORK/VFORK; it can be observed
			// here before the originating PTRACE_EVENT_* stop on its
			// parent is processed, so tid may not be registered yet.
			// Swallow it rather than re-delivering SIGSTOP, which would
			// just re-stop the tracee.
			if err := unix.PtraceCont(tid, 0); err != nil && err != unix.ESRCH {
				log.Printf("tracer: pid %d: resume past attach stop: %v", tid, err)
			}
		default:
			if err := unix.PtraceCont(tid, int(sig)); err != nil && err != unix.ESRCH {
				log.Printf("tracer: pid %d: resume with signal %d: %v", tid, sig, err)
			}
		}
	}
	return nil
}

func (s *Supervisor) resume(tid int) {
	if err := unix.PtraceCont(tid, 0); err != nil && err != unix.ESRCH {
		log.Printf("tracer: pid %d: PTRACE_CONT: %v", tid, err)
	}
}

func (s *Supervisor) removeTid(tid int) {
	tgid, ok := s.tidToTg[tid]
	if !ok {
		return
	}
	delete(s.tidToTg, tid)
	p, ok := s.procs[tgid]
	if !ok {
		return
	}
	delete(p.tids, tid)
	if len(p.tids) == 0 {
		delete(s.procs, tgid)
	}
}

func (s *Supervisor) handleClone(tid int) {
	newTid, err := unix.PtraceGetEventMsg(tid)
	if err != nil {
		log.Printf("tracer: pid %d: PTRACE_GETEVENTMSG (clone): %v", tid, err)
		return
	}
	tgid := s.tidToTg[tid]
	s.newProc(tgid, int(newTid))
}

func (s *Supervisor) handleFork(tid int) {
	newPid, err := unix.PtraceGetEventMsg(tid)
	if err != nil {
		log.Printf("tracer: pid %d: PTRACE_GETEVENTMSG (fork): %v", tid, err)
		return
	}
	parentTgid := s.tidToTg[tid]
	parent := s.procs[parentTgid]
	child := &procState{tids: map[int]bool{int(newPid): true}, m: parent.m.Snapshot()}
	s.procs[int(newPid)] = child
	s.tidToTg[int(newPid)] = int(newPid)
}

func (s *Supervisor) handleExec(tid int) {
	tgid := s.tidToTg[tid]
	if p, ok := s.procs[tgid]; ok {
		p.m.Execve()
	}
}

// handleSeccompTrap runs at a PTRACE_EVENT_SECCOMP stop, i.e. before
// the kernel has executed one of the six memory-management syscalls
// the filter routes here. It decodes the syscall, derives the
// caller's pkey from its hardware register state, and consults that
// thread group's memmap.Map for a verdict. A denied syscall has its
// number rewritten to -1 (an invalid syscall the kernel resolves to
// -ENOSYS with no side effect) and its return value fixed up to
// -EPERM at the following syscall-exit stop; a permitted one runs for
// real. mmap and non-MREMAP_FIXED mremap calls don't know their
// resulting address until the kernel hands one back, so their map
// bookkeeping is deferred to that same syscall-exit stop.
func (s *Supervisor) handleSeccompTrap(tid int) error {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(tid, &regs); err != nil {
		return fmt.Errorf("pid %d: PTRACE_GETREGS: %w", tid, err)
	}
	nr := sysNum(&regs)

	tgid := s.tidToTg[tid]
	p := s.procs[tgid]
	if p == nil {
		return s.stepToExit(tid, nil)
	}

	currentPkey, err := callerPkey(tid, s.opts.StrictPKRU)
	if err != nil {
		return fmt.Errorf("pid %d: derive caller pkey: %w", tid, err)
	}

	var decision memmap.Decision
	var fixup func(ret int64)

	switch nr {
	case unix.SYS_MMAP:
		a := decodeMmapArgs(&regs)
		switch {
		case memmap.IsSignpost(a.addr, a.flags):
			p.m.MarkInitFinished()
			decision = memmap.Permit
		case a.flags&unix.MAP_FIXED != 0:
			decision, err = p.m.MmapFixed(a.addr, a.length, a.prot, currentPkey)
		default:
			decision = memmap.Permit
			length, prot := a.length, a.prot
			fixup = func(ret int64) {
				if ret >= 0 {
					p.m.Mmap(uint64(ret), length, prot, currentPkey)
				}
			}
		}
	case unix.SYS_MPROTECT:
		a := decodeMprotectArgs(&regs)
		decision, err = p.m.Mprotect(a.addr, a.length, a.prot)
	case unix.SYS_PKEY_MPROTECT:
		a := decodePkeyMprotectArgs(&regs)
		decision, err = p.m.PkeyMprotect(a.addr, a.length, a.prot, a.pkey, currentPkey)
	case unix.SYS_MUNMAP:
		a := decodeRangeArgs(&regs)
		decision, err = p.m.Munmap(a.addr, a.length, currentPkey)
	case unix.SYS_MADVISE:
		a := decodeRangeArgs(&regs)
		decision, err = p.m.Madvise(a.addr, a.length, currentPkey)
	case unix.SYS_MREMAP:
		a := decodeMremapArgs(&regs)
		provisional := a.oldAddr
		if a.flags&unix.MREMAP_FIXED != 0 {
			provisional = a.newAddr
		}
		decision, err = p.m.Mremap(a.oldAddr, a.oldLen, provisional, a.newLen, a.flags, currentPkey)
		if decision == memmap.Permit && a.flags&unix.MREMAP_FIXED == 0 {
			newLen := a.newLen
			fixup = func(ret int64) {
				if ret >= 0 && uint64(ret) != provisional {
					// The kernel moved the mapping to an address we
					// couldn't predict; the provisional region Mremap
					// recorded was a placeholder, so swap it for the
					// real one now that we know it.
					p.m.Munmap(provisional, newLen, currentPkey)
					p.m.Mmap(uint64(ret), newLen, memmap.ProtIndeterminate, currentPkey)
				}
			}
		}
	default:
		decision = memmap.Permit
	}
	if err != nil {
		return fmt.Errorf("pid %d: %w", tid, err)
	}

	if s.prof != nil {
		s.prof.sample(nr, currentPkey, decision)
	}

	if decision == memmap.Deny {
		setSysNum(&regs, -1)
		if err := unix.PtraceSetRegs(tid, &regs); err != nil {
			return fmt.Errorf("pid %d: PTRACE_SETREGS (deny): %w", tid, err)
		}
		return s.stepToExit(tid, func(exitRegs *unix.PtraceRegs) {
			setSysRet(exitRegs, -int64(unix.EPERM))
		})
	}
	return s.stepToExit(tid, func(exitRegs *unix.PtraceRegs) {
		if fixup != nil {
			fixup(sysRet(exitRegs))
		}
	})
}

// stepToExit resumes a stopped tracee with PTRACE_SYSCALL so its next
// stop is the matching syscall-exit, applies onExit to that stop's
// registers (writing them back if it mutated anything), then resumes
// the tracee normally. A tracee that exits or is killed by the
// syscall itself (should not happen for this syscall set, but checked
// for safety) is reaped instead.
func (s *Supervisor) stepToExit(tid int, onExit func(r *unix.PtraceRegs)) error {
	if err := unix.PtraceSyscall(tid, 0); err != nil {
		return fmt.Errorf("pid %d: PTRACE_SYSCALL: %w", tid, err)
	}
	var status unix.WaitStatus
	wtid, err := unix.Wait4(tid, &status, 0, nil)
	if err != nil {
		return fmt.Errorf("pid %d: wait4 (syscall-exit): %w", tid, err)
	}
	if status.Exited() || status.Signaled() {
		s.removeTid(wtid)
		return nil
	}
	if onExit != nil {
		var regs unix.PtraceRegs
		if err := unix.PtraceGetRegs(tid, &regs); err != nil {
			return fmt.Errorf("pid %d: PTRACE_GETREGS (syscall-exit): %w", tid, err)
		}
		onExit(&regs)
		if err := unix.PtraceSetRegs(tid, &regs); err != nil {
			return fmt.Errorf("pid %d: PTRACE_SETREGS (syscall-exit): %w", tid, err)
		}
	}
	s.resume(tid)
	return nil
}
