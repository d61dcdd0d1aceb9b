package wrapper

import (
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"

	"ia2/internal/abi"
)

func reg(r arm64asm.Reg) string {
	return strings.ToLower(r.String())
}

var arm64IntArgRegs = []arm64asm.Reg{
	arm64asm.X0, arm64asm.X1, arm64asm.X2, arm64asm.X3,
	arm64asm.X4, arm64asm.X5, arm64asm.X6, arm64asm.X7,
}
var arm64CalleeSaved = []arm64asm.Reg{
	arm64asm.X19, arm64asm.X20, arm64asm.X21, arm64asm.X22, arm64asm.X23,
}

// emitAArch64 mirrors emitX86 structurally: the AArch64 path is
// completed symmetrically rather than left partial. PKRU operations
// become store/load of an 8-bit tag in the top byte of x18; MTE
// replaces MPK for the underlying page tagging the compartment
// initializer applies.
func emitAArch64(g Gate) (string, error) {
	var b strings.Builder
	wrapperHeader(&b, g.Name, g.Kind)
	l := computeLayout(g.Signature)

	emit := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, "\t"+format+"\n", args...)
	}

	emit("stp x29, x30, [sp, #-16]!")
	emit("mov x29, sp")
	for i := 0; i+1 < len(arm64CalleeSaved); i += 2 {
		emit("stp %s, %s, [sp, #-16]!", reg(arm64CalleeSaved[i]), reg(arm64CalleeSaved[i+1]))
	}
	if len(arm64CalleeSaved)%2 == 1 {
		emit("str %s, [sp, #-16]!", reg(arm64CalleeSaved[len(arm64CalleeSaved)-1]))
	}

	if g.DebugAsserts {
		emit("# assert x18 tag == tag(%d)", g.CallerPkey)
		emit("ubfx x9, x18, #56, #8")
		emit("cmp x9, #%d", g.CallerPkey)
		emit("b.eq 1f")
		emit("bl __libia2_abort")
		emit("1:")
	}

	// Intermediate tag allowing both caller and target compartments.
	emit("bfi x18, %s, #56, #8", fmt.Sprintf("#%d", intermediateTag(g.CallerPkey, g.TargetPkey)))

	// Stack switch, caller -> target, via the compartment's TLS slot.
	emit("adrp x9, %s", stackptrSymbol(g.CallerPkey))
	emit("str sp, [x9, #:tprel_lo12_nc:%s]", stackptrSymbol(g.CallerPkey))
	emit("adrp x9, %s", stackptrSymbol(g.TargetPkey))
	emit("ldr sp, [x9, #:tprel_lo12_nc:%s]", stackptrSymbol(g.TargetPkey))

	if l.memReturn {
		emit("sub sp, sp, #%d", align16(l.memReturnBytes))
		emit("str x8, [sp, #-16]!")
		emit("add x8, sp, #16")
	}

	if l.needsArgPad {
		emit("sub sp, sp, #8")
	}

	for i := l.memArgEightbytes - 1; i >= 0; i-- {
		emit("ldr x9, [x29, #%d]", 16+i*8)
		emit("str x9, [sp, #-8]!")
	}

	nArgRegs := countIntegerRegArgsARM(g.Signature)
	for i := 0; i < nArgRegs; i++ {
		emit("str %s, [sp, #-16]!", reg(arm64IntArgRegs[i]))
	}
	emit("bl __libia2_scrub_registers")
	for i := nArgRegs - 1; i >= 0; i-- {
		emit("ldr %s, [sp], #16", reg(arm64IntArgRegs[i]))
	}

	if g.Kind == IndirectCallsite {
		emit("adrp x9, ia2_fn_ptr")
		emit("ldr x9, [x9, #:lo12:ia2_fn_ptr]")
		emit("ldr x10, [x9]")
	}

	emit("bfi x18, #%d, #56, #8", g.TargetPkey)
	if g.Kind == IndirectCallsite {
		emit("blr x10")
	} else {
		emit("bl %s", g.Target)
	}

	emit("bfi x18, %s, #56, #8", fmt.Sprintf("#%d", intermediateTag(g.CallerPkey, g.TargetPkey)))
	if l.memArgEightbytes > 0 {
		emit("add sp, sp, #%d", l.memArgEightbytes*8)
	}
	if l.needsArgPad {
		emit("add sp, sp, #8")
	}
	if l.memReturn {
		// [sp] holds the saved x8 (the caller's original return buffer
		// pointer, reloaded into x0 per AAPCS64's indirect-result
		// convention); the scratch buffer the callee actually wrote
		// through x8 sits 16 bytes above it (the str above reserved a
		// full 16-byte slot for a single 8-byte register).
		emit("ldr x0, [sp]")
		for i := 0; i*8 < l.memReturnBytes; i++ {
			emit("ldr x9, [sp, #%d]", 16+i*8)
			emit("str x9, [x0, #%d]", i*8)
		}
		emit("add sp, sp, #%d", align16(l.memReturnBytes)+16)
	}

	emit("adrp x9, %s", stackptrSymbol(g.TargetPkey))
	emit("str sp, [x9, #:tprel_lo12_nc:%s]", stackptrSymbol(g.TargetPkey))
	emit("adrp x9, %s", stackptrSymbol(g.CallerPkey))
	emit("ldr sp, [x9, #:tprel_lo12_nc:%s]", stackptrSymbol(g.CallerPkey))

	emit("bl __libia2_scrub_registers_preserve_return")

	emit("bfi x18, #%d, #56, #8", g.CallerPkey)
	if len(arm64CalleeSaved)%2 == 1 {
		emit("ldr %s, [sp], #16", reg(arm64CalleeSaved[len(arm64CalleeSaved)-1]))
	}
	for i := len(arm64CalleeSaved) - 2; i >= 0; i -= 2 {
		emit("ldp %s, %s, [sp], #16", reg(arm64CalleeSaved[i]), reg(arm64CalleeSaved[i+1]))
	}
	emit("ldp x29, x30, [sp], #16")
	emit("ret")

	return b.String(), nil
}

// intermediateTag picks a tag value that both the caller and target
// compartments are permitted to dereference through while the wrapper
// touches both stacks, the AArch64 analogue of the intermediate PKRU
// value the x86-64 gate holds during the stack switch.
func intermediateTag(caller, target int) int {
	return 0x80 | (caller&0xf)<<4 | (target & 0xf)
}

func countIntegerRegArgsARM(sig abi.Signature) int {
	n := 0
	for _, k := range sig.Args {
		if k != abi.Memory {
			n++
		}
	}
	if n > len(arm64IntArgRegs) {
		n = len(arm64IntArgRegs)
	}
	return n
}
