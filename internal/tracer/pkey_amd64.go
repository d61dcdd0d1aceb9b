//go:build amd64

package tracer

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ntX86Xstate is NT_X86_XSTATE from linux/elf.h: the note type
// identifying the extended (XSAVE) register-state regset fetched via
// PTRACE_GETREGSET.
const ntX86Xstate = 0x202

// xstateBufSize is generous enough to hold the legacy FXSAVE area, the
// XSAVE header, and every extended-state component up to and including
// AVX-512, on any CPU generation currently in production.
const xstateBufSize = 3072

var (
	pkruOffsetOnce sync.Once
	pkruOffset     uint32
	pkruOffsetErr  error
)

// pkruComponentOffset queries CPUID leaf 0xD, sub-leaf 9 (the PKRU
// state component) for its byte offset within the XSAVE area. This is a
// host CPU/kernel ABI property, identical for every traced process, so
// it is computed once and cached.
func pkruComponentOffset() (uint32, error) {
	pkruOffsetOnce.Do(func() {
		// Leaf 0xd, sub-leaf 0's EAX gives the low 32 bits of the set of
		// XCR0 components the CPU supports saving; bit 9 is PKRU.
		xcr0Low, _, _, _ := cpuid(0xd, 0)
		if xcr0Low&(1<<9) == 0 {
			pkruOffsetErr = fmt.Errorf("tracer: CPU does not support the PKU XSAVE component")
			return
		}
		// Sub-leaf 9 (the component index, matching XCR0 bit 9) then
		// reports that component's own offset in EBX and size in EAX.
		_, offset, _, _ := cpuid(0xd, 9)
		if offset == 0 {
			pkruOffsetErr = fmt.Errorf("tracer: CPU reports PKU support but no XSAVE offset for it")
			return
		}
		pkruOffset = offset
	})
	return pkruOffset, pkruOffsetErr
}

// callerPkey derives the caller's pkey on x86-64 by reading the child's
// PKRU out of its XSAVE extended-state area (PTRACE_GETREGSET,
// NT_X86_XSTATE) and mapping it back to a single pkey.
func callerPkey(pid int, strict bool) (int, error) {
	offset, err := pkruComponentOffset()
	if err != nil {
		return 0, err
	}

	buf := make([]byte, xstateBufSize)
	iov := unix.Iovec{Base: &buf[0], Len: uint64(len(buf))}
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_GETREGSET, uintptr(pid), uintptr(ntX86Xstate), uintptr(unsafe.Pointer(&iov)), 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("PTRACE_GETREGSET(NT_X86_XSTATE): %w", errno)
	}
	if uint64(offset)+4 > iov.Len {
		return 0, fmt.Errorf("tracer: XSAVE area returned (%d bytes) too small for PKRU at offset %d", iov.Len, offset)
	}

	pkru := binary.LittleEndian.Uint32(buf[offset : offset+4])
	pkey, err := pkeyFromPKRU(pkru)
	if err != nil {
		if strict {
			return 0, fmt.Errorf("tracer: strict PKRU check: %w", err)
		}
		return 0, nil
	}
	return pkey, nil
}
