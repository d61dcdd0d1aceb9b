// Package wrapper emits the assembly call gates: given an ABI signature
// and the caller/target compartments, it produces the text of a
// trampoline that switches stacks, flips the architecture's
// memory-protection state, calls the target, and reverses all of that
// on return.
//
// The emitter is organized the way cmd/link dispatches per-architecture
// work (one small file per GOARCH behind a common entry point); here
// the two architectures are internal/wrapper's own wrapper_x86.go and
// wrapper_arm64.go, selected by Emit.
package wrapper

import (
	"fmt"
	"strings"

	"ia2/internal/abi"
)

// WrapperKind selects which of the four call-gate shapes to emit.
type WrapperKind int

const (
	// Direct wraps a symbol known at link time; the linker's
	// --wrap=<sym> directive redirects calls to __wrap_<sym>.
	Direct WrapperKind = iota
	// Pointer wraps a function whose address is taken and stored in an
	// opaque function-pointer struct.
	Pointer
	// PointerToStatic is emitted as a macro in the translation unit
	// that defines the static function, since only that unit can name
	// the static symbol.
	PointerToStatic
	// IndirectCallsite is the gate reached through IA2_CALL at an
	// indirect call site; it loads its target from the process-global
	// ia2_fn_ptr scratch slot.
	IndirectCallsite
)

func (k WrapperKind) String() string {
	switch k {
	case Direct:
		return "Direct"
	case Pointer:
		return "Pointer"
	case PointerToStatic:
		return "PointerToStatic"
	case IndirectCallsite:
		return "IndirectCallsite"
	default:
		return fmt.Sprintf("WrapperKind(%d)", int(k))
	}
}

// Gate is everything Emit needs to know about one call gate.
type Gate struct {
	Name        string // the wrapper's own symbol, e.g. __wrap_add
	Target      string // the symbol to call; empty for IndirectCallsite
	Kind        WrapperKind
	Signature   abi.Signature
	CallerPkey  int
	TargetPkey  int
	Arch        abi.Arch
	// DebugAsserts emits the debug-build PKRU precondition check.
	DebugAsserts bool
}

// layout is the stack-frame plan, computed once per gate and then used
// by both the prologue and epilogue emission.
type layout struct {
	memReturn      bool
	memReturnBytes int
	memArgEightbytes int
	needsArgPad    bool // 8-byte pad so the arg-copy area is 16-aligned
}

func computeLayout(sig abi.Signature) layout {
	var l layout
	for _, k := range sig.Return {
		if k == abi.Memory {
			l.memReturn = true
		}
	}
	if l.memReturn {
		l.memReturnBytes = len(sig.Return) * 8
	}
	for _, k := range sig.Args {
		if k == abi.Memory {
			l.memArgEightbytes++
		}
	}
	// Frame so far: saved rbp+5 callee-saved regs (48B, 16-aligned) +
	// optional mem-return area (padded to 16) + saved ret-ptr (8B) +
	// stack args (8B each). Needs an extra 8-byte pad when the running
	// total isn't 16-aligned before the `call`.
	total := 0
	if l.memReturn {
		total += align16(l.memReturnBytes) + 8
	}
	total += l.memArgEightbytes * 8
	l.needsArgPad = total%16 != 0
	return l
}

func align16(n int) int {
	if n%16 == 0 {
		return n
	}
	return n + (16 - n%16)
}

// Emit produces the assembly text defining g.Name for g.Arch. The
// caller-pkey-0 shortcut is the caller's responsibility: when
// CallerPkey == 0, IA2_CALL degrades to a plain cast-and-call and Emit
// is never invoked for that call site, so Emit itself assumes
// CallerPkey != 0 unless the kind is IndirectCallsite (whose caller may
// be any pkey, since the indirect gate always routes through pkey 0
// first).
func Emit(g Gate) (string, error) {
	if g.Name == "" {
		return "", fmt.Errorf("wrapper: gate has no name")
	}
	switch g.Arch {
	case abi.ArchX86:
		return emitX86(g)
	case abi.ArchAArch64:
		return emitAArch64(g)
	default:
		return "", fmt.Errorf("wrapper: unknown architecture %v", g.Arch)
	}
}

// stackptrSymbol is the TLS symbol name holding a compartment's
// per-thread stack pointer.
func stackptrSymbol(pkey int) string {
	return fmt.Sprintf("ia2_stackptr_%d", pkey)
}

func wrapperHeader(b *strings.Builder, name string, kind WrapperKind) {
	if kind == PointerToStatic {
		fmt.Fprintf(b, "#define IA2_DEFINE_WRAPPER_%s \\\n", name)
		return
	}
	fmt.Fprintf(b, "\t.text\n")
	fmt.Fprintf(b, "\t.globl %s\n", name)
	fmt.Fprintf(b, "\t.type %s, @function\n", name)
	fmt.Fprintf(b, "%s:\n", name)
}
