//go:build arm64

package tracer

import "golang.org/x/sys/unix"

// callerPkey derives the caller's pkey on AArch64 by reading the top
// byte of x18, where the wrapper sequence stores the pkey directly
// (`bfi x18, #N, #56, #8`) rather than a bitmask like x86's PKRU.
func callerPkey(pid int, strict bool) (int, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return 0, err
	}
	tag := byte(regs.Regs[18] >> 56)
	return int(tag), nil
}
