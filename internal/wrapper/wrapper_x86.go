package wrapper

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"ia2/internal/abi"
)

// reg64 renders an x86asm register constant as an AT&T-syntax operand,
// so the emitter's register spelling and the classifier's slot-to-
// register mapping are always derived from the same table instead of
// two hand-copied literal lists.
func reg64(r x86asm.Reg) string {
	return "%" + strings.ToLower(r.String())
}

var x86IntArgRegs = []x86asm.Reg{x86asm.RDI, x86asm.RSI, x86asm.RDX, x86asm.RCX, x86asm.R8, x86asm.R9}
var x86CalleeSaved = []x86asm.Reg{x86asm.RBX, x86asm.R12, x86asm.R13, x86asm.R14, x86asm.R15}

// emitX86 implements the x86-64 wrapper body.
func emitX86(g Gate) (string, error) {
	var b strings.Builder
	wrapperHeader(&b, g.Name, g.Kind)
	l := computeLayout(g.Signature)

	emit := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, "\t"+format+"\n", args...)
	}

	// Step 1-2: standard frame pointer + callee-saved push.
	emit("pushq %s", reg64(x86asm.RBP))
	emit("movq %s, %s", reg64(x86asm.RSP), reg64(x86asm.RBP))
	for _, r := range x86CalleeSaved {
		emit("pushq %s", reg64(r))
	}

	if g.DebugAsserts {
		emit("# assert PKRU == pkru_mask(%d)", g.CallerPkey)
		emit("rdpkru")
		emit("cmpl $pkru_mask_%d, %%eax", g.CallerPkey)
		emit("je 1f")
		emit("call __libia2_abort")
		emit("1:")
	}

	// Step 4: set the intermediate PKRU allowing both caller and
	// target pkeys, preserving the argument-carrying rcx/rdx via
	// r10/r11 around wrpkru.
	emit("movq %s, %s", reg64(x86asm.RCX), reg64(x86asm.R10))
	emit("movq %s, %s", reg64(x86asm.RDX), reg64(x86asm.R11))
	emit("movl $pkru_intermediate_%d_%d, %%eax", g.CallerPkey, g.TargetPkey)
	emit("xorl %%ecx, %%ecx")
	emit("xorl %%edx, %%edx")
	emit("wrpkru")
	emit("movq %s, %s", reg64(x86asm.R10), reg64(x86asm.RCX))
	emit("movq %s, %s", reg64(x86asm.R11), reg64(x86asm.RDX))

	// Step 5: switch stacks, caller -> target.
	emit("movq %s@GOTTPOFF(%%rip), %%r11", stackptrSymbol(g.CallerPkey))
	emit("movq %s, %%fs:(%%r11)", reg64(x86asm.RSP))
	emit("movq %s@GOTTPOFF(%%rip), %%r11", stackptrSymbol(g.TargetPkey))
	emit("movq %%fs:(%%r11), %s", reg64(x86asm.RSP))

	// Step 6: memory-return buffer allocation + saved rdi.
	if l.memReturn {
		emit("subq $%d, %s", align16(l.memReturnBytes), reg64(x86asm.RSP))
		emit("pushq %s", reg64(x86asm.RDI))
		emit("leaq (%s), %s", reg64(x86asm.RSP), reg64(x86asm.RDI))
		emit("addq $8, %s", reg64(x86asm.RDI))
	}

	// Step 7: alignment pad for stack args.
	if l.needsArgPad {
		emit("subq $8, %s", reg64(x86asm.RSP))
	}

	// Step 8: copy memory arguments from caller stack to target stack,
	// top-down since push grows downward. They start at 16(%rbp), above
	// the saved %rbp and the return address.
	for i := l.memArgEightbytes - 1; i >= 0; i-- {
		emit("movq %d(%s), %%r11", 16+i*8, reg64(x86asm.RBP))
		emit("pushq %%r11")
	}

	// Step 9: register scrub preserving in-use integer arg registers.
	nArgRegs := countIntegerRegArgs(g.Signature)
	for i := 0; i < nArgRegs && i < len(x86IntArgRegs); i++ {
		emit("pushq %s", reg64(x86IntArgRegs[i]))
	}
	emit("call __libia2_scrub_registers")
	for i := nArgRegs - 1; i >= 0 && i < len(x86IntArgRegs); i-- {
		emit("popq %s", reg64(x86IntArgRegs[i]))
	}

	// Step 10: indirect callsite loads its target from the global
	// scratch slot.
	if g.Kind == IndirectCallsite {
		emit("movq ia2_fn_ptr@GOTPCREL(%%rip), %%r11")
		emit("movq (%%r11), %s", reg64(x86asm.R12))
	}

	// Step 11-12: set target PKRU, make the call.
	emit("movl $pkru_mask_%d, %%eax", g.TargetPkey)
	emit("xorl %%ecx, %%ecx")
	emit("xorl %%edx, %%edx")
	emit("wrpkru")
	if g.Kind == IndirectCallsite {
		emit("call *%s", reg64(x86asm.R12))
	} else {
		emit("call %s", g.Target)
	}

	// Step 13: reverse stack setup, restore intermediate PKRU, copy
	// memory return values back, pop saved rdi into rax.
	emit("movl $pkru_intermediate_%d_%d, %%eax", g.CallerPkey, g.TargetPkey)
	emit("xorl %%ecx, %%ecx")
	emit("xorl %%edx, %%edx")
	emit("wrpkru")
	if l.memArgEightbytes > 0 {
		emit("addq $%d, %s", l.memArgEightbytes*8, reg64(x86asm.RSP))
	}
	if l.needsArgPad {
		emit("addq $8, %s", reg64(x86asm.RSP))
	}
	if l.memReturn {
		emit("popq %%rax")
		for i := 0; i*8 < l.memReturnBytes; i++ {
			emit("movq %d(%s), %%r11", i*8, reg64(x86asm.RSP))
			emit("movq %%r11, %d(%%rax)", i*8)
		}
		emit("addq $%d, %s", align16(l.memReturnBytes), reg64(x86asm.RSP))
	}

	// Step 14: switch stacks back, target -> caller.
	emit("movq %s@GOTTPOFF(%%rip), %%r11", stackptrSymbol(g.TargetPkey))
	emit("movq %s, %%fs:(%%r11)", reg64(x86asm.RSP))
	emit("movq %s@GOTTPOFF(%%rip), %%r11", stackptrSymbol(g.CallerPkey))
	emit("movq %%fs:(%%r11), %s", reg64(x86asm.RSP))

	// Step 15: scrub again, preserving return registers.
	emit("call __libia2_scrub_registers_preserve_return")

	// Step 16: restore caller PKRU, tear down frame.
	emit("movl $pkru_mask_%d, %%eax", g.CallerPkey)
	emit("xorl %%ecx, %%ecx")
	emit("xorl %%edx, %%edx")
	emit("wrpkru")
	for i := len(x86CalleeSaved) - 1; i >= 0; i-- {
		emit("popq %s", reg64(x86CalleeSaved[i]))
	}
	emit("popq %s", reg64(x86asm.RBP))
	emit("ret")

	fmt.Fprintf(&b, "\t.size %s, . - %s\n", g.Name, g.Name)
	return b.String(), nil
}

func countIntegerRegArgs(sig abi.Signature) int {
	n := 0
	for _, k := range sig.Args {
		if k != abi.Memory {
			n++
		}
	}
	if n > len(x86IntArgRegs) {
		n = len(x86IntArgRegs)
	}
	return n
}
