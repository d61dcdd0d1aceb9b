//go:build amd64

package tracer

// cpuid is implemented in cpuid_amd64.s; it runs the CPUID instruction
// in-process (the PKRU component's offset within the XSAVE area is a
// host CPU/kernel property shared by every traced process, so it only
// needs to be queried once, against the tracer's own CPU, not against
// the tracee).
func cpuid(eaxArg, ecxArg uint32) (eax, ebx, ecx, edx uint32)
