package compartment

import (
	"fmt"
	"strings"
)

// GenerateInit renders ia2_compartment_init.inc for one compartment: a
// constructor that calls dl_iterate_phdr with protect_pages, carrying
// the pkey and the compartment's extra_libraries list.
func GenerateInit(c Compartment) (string, error) {
	if c.Pkey == 0 {
		return "", fmt.Errorf("compartment: pkey 0 has no generated constructor, it is the untrusted default")
	}
	if len(c.ExtraLibraries) == 0 {
		return "", fmt.Errorf("compartment: pkey %d has no extra_libraries", c.Pkey)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "/* generated by ia2compartment; do not edit by hand */\n")
	fmt.Fprintf(&b, "#ifndef IA2_COMPARTMENT\n#error \"IA2_COMPARTMENT must be defined before including this file\"\n#endif\n\n")
	fmt.Fprintf(&b, "static const char ia2_extra_libraries_%d[] = \"%s\";\n\n", c.Pkey, ExtraLibrariesFor(c))
	fmt.Fprintf(&b, "__attribute__((constructor)) static void ia2_protect_compartment_%d(void) {\n", c.Pkey)
	fmt.Fprintf(&b, "\tstruct PhdrSearchArgs args = {\n")
	fmt.Fprintf(&b, "\t\t.pkey = %d,\n", c.Pkey)
	fmt.Fprintf(&b, "\t\t.extra_libraries = ia2_extra_libraries_%d,\n", c.Pkey)
	fmt.Fprintf(&b, "\t};\n")
	fmt.Fprintf(&b, "\tdl_iterate_phdr(protect_pages, &args);\n")
	fmt.Fprintf(&b, "\tprotect_tls_pages(%d);\n", c.Pkey)
	fmt.Fprintf(&b, "}\n")
	return b.String(), nil
}

// GenerateInitRuntime renders the body of the INIT_RUNTIME(N) macro
// expansion: one constructor that allocates a StackSize stack per
// compartment for the main thread, pkey_mprotects each to its owning
// pkey, and seeds the TLS stack-pointer slots.
func GenerateInitRuntime(m Manifest) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	slots := Layout(m)

	var b strings.Builder
	fmt.Fprintf(&b, "/* generated by ia2compartment; do not edit by hand */\n")
	fmt.Fprintf(&b, "__attribute__((constructor)) static void ia2_init_runtime(void) {\n")
	for _, s := range slots {
		if s.Pkey == 0 {
			continue
		}
		fmt.Fprintf(&b, "\t{\n")
		fmt.Fprintf(&b, "\t\tvoid *stack = mmap(NULL, %d, PROT_READ | PROT_WRITE,\n", StackSize)
		fmt.Fprintf(&b, "\t\t                    MAP_ANONYMOUS | MAP_PRIVATE, -1, 0);\n")
		fmt.Fprintf(&b, "\t\tpkey_mprotect(stack, %d, PROT_READ | PROT_WRITE, %d);\n", StackSize, s.Pkey)
		fmt.Fprintf(&b, "\t\t%s = (char *)stack + %d;\n", s.SymbolName(), StackSize)
		fmt.Fprintf(&b, "\t}\n")
	}
	fmt.Fprintf(&b, "}\n")
	return b.String(), nil
}

// GenerateThreadBegin renders ia2_thread_begin: the wrapped
// pthread_create entry point. It repeats the per-thread stack setup for
// a new thread, reads the current tag to determine which compartment
// stack the new thread actually belongs to, switches to that stack, and
// only then jumps to the user's start function.
func GenerateThreadBegin(m Manifest) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	slots := Layout(m)

	var b strings.Builder
	fmt.Fprintf(&b, "/* generated by ia2compartment; do not edit by hand */\n")
	fmt.Fprintf(&b, "void *ia2_thread_begin(struct ia2_thread_thunk *thunk) {\n")
	for _, s := range slots {
		if s.Pkey == 0 {
			continue
		}
		fmt.Fprintf(&b, "\t{\n")
		fmt.Fprintf(&b, "\t\tvoid *stack = mmap(NULL, %d, PROT_READ | PROT_WRITE,\n", StackSize)
		fmt.Fprintf(&b, "\t\t                    MAP_ANONYMOUS | MAP_PRIVATE, -1, 0);\n")
		fmt.Fprintf(&b, "\t\tpkey_mprotect(stack, %d, PROT_READ | PROT_WRITE, %d);\n", StackSize, s.Pkey)
		fmt.Fprintf(&b, "\t\t%s = (char *)stack + %d;\n", s.SymbolName(), StackSize)
		fmt.Fprintf(&b, "\t}\n")
	}
	fmt.Fprintf(&b, "\tsize_t tag = ia2_get_tag();\n")
	fmt.Fprintf(&b, "\tvoid **new_sp_addr = ia2_stackptr_for_tag(tag);\n")
	fmt.Fprintf(&b, "\treturn ia2_switch_stack_and_call(thunk->fn, thunk->data, new_sp_addr);\n")
	fmt.Fprintf(&b, "}\n")
	return b.String(), nil
}
