package tracer

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestDecodeMmapArgs(t *testing.T) {
	var regs unix.PtraceRegs
	setSysArg(&regs, 0, 0x1000)
	setSysArg(&regs, 1, 0x2000)
	setSysArg(&regs, 2, unix.PROT_READ|unix.PROT_WRITE)
	setSysArg(&regs, 3, unix.MAP_FIXED|unix.MAP_PRIVATE)

	got := decodeMmapArgs(&regs)
	want := mmapArgs{addr: 0x1000, length: 0x2000, prot: unix.PROT_READ | unix.PROT_WRITE, flags: unix.MAP_FIXED | unix.MAP_PRIVATE}
	if got != want {
		t.Errorf("decodeMmapArgs = %+v, want %+v", got, want)
	}
}

func TestDecodeMprotectArgs(t *testing.T) {
	var regs unix.PtraceRegs
	setSysArg(&regs, 0, 0x4000)
	setSysArg(&regs, 1, 0x1000)
	setSysArg(&regs, 2, unix.PROT_READ)

	got := decodeMprotectArgs(&regs)
	want := mprotectArgs{addr: 0x4000, length: 0x1000, prot: unix.PROT_READ}
	if got != want {
		t.Errorf("decodeMprotectArgs = %+v, want %+v", got, want)
	}
}

func TestDecodeMremapArgs(t *testing.T) {
	var regs unix.PtraceRegs
	setSysArg(&regs, 0, 0x1000)
	setSysArg(&regs, 1, 0x2000)
	setSysArg(&regs, 2, 0x4000)
	setSysArg(&regs, 3, unix.MREMAP_MAYMOVE)
	setSysArg(&regs, 4, 0)

	got := decodeMremapArgs(&regs)
	want := mremapArgs{oldAddr: 0x1000, oldLen: 0x2000, newLen: 0x4000, flags: unix.MREMAP_MAYMOVE, newAddr: 0}
	if got != want {
		t.Errorf("decodeMremapArgs = %+v, want %+v", got, want)
	}
}

func TestSyscallName(t *testing.T) {
	cases := map[int64]string{
		unix.SYS_MMAP:          "mmap",
		unix.SYS_MPROTECT:      "mprotect",
		unix.SYS_PKEY_MPROTECT: "pkey_mprotect",
	}
	for nr, want := range cases {
		if got := syscallName(nr); got != want {
			t.Errorf("syscallName(%d) = %q, want %q", nr, got, want)
		}
	}
	if got := syscallName(999999); got != "syscall_999999" {
		t.Errorf("syscallName(999999) = %q, want syscall_999999", got)
	}
}
