// Command ia2trace runs a compartmentalized program under an
// out-of-process ptrace+seccomp supervisor: every mmap, mprotect,
// mremap, munmap, madvise, and pkey_mprotect call is trapped and
// checked against a per-process memory map before the kernel is
// allowed to act on it, so a compromised compartment cannot
// mprotect/pkey_mprotect its way into another compartment's memory.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"ia2/internal/abi"
	"ia2/internal/diag"
	"ia2/internal/tracer"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: ia2trace [flags] <program> [args ...]\n")
	flag.PrintDefaults()
	os.Exit(2)
}

var (
	archFlag    = flag.String("arch", runtime.GOARCH, "target architecture: x86_64/amd64 or aarch64/arm64")
	strictPKRU  = flag.Bool("strict-pkru", false, "treat any PKRU/x18 value outside the canonical per-pkey patterns as a fatal error instead of attributing it to pkey 0")
	profilePath = flag.String("profile", "", "write a pprof profile of trapped syscalls to this path")
)

func main() {
	log.SetPrefix("ia2trace: ")
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
	}

	arch, err := parseArch(*archFlag)
	if err != nil {
		diag.Fatalf("%v", err)
	}

	sup, err := tracer.Launch(flag.Arg(0), flag.Args()[1:], arch, tracer.Options{
		StrictPKRU:  *strictPKRU,
		ProfilePath: *profilePath,
	})
	if err != nil {
		diag.Fatalf("%v", err)
	}

	if err := sup.Run(); err != nil {
		diag.Fatalf("%v", err)
	}

	diag.ExitIfErrors()
}

func parseArch(name string) (abi.Arch, error) {
	switch name {
	case "x86_64", "x86-64", "amd64":
		return abi.ArchX86, nil
	case "aarch64", "arm64":
		return abi.ArchAArch64, nil
	default:
		return 0, fmt.Errorf("unrecognized architecture %q", name)
	}
}
