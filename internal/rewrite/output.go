package rewrite

import (
	"fmt"
	"sort"
	"strings"

	"ia2/internal/abi"
	"ia2/internal/cparse"
	"ia2/internal/wrapper"
)

// Outputs is the result of one rewrite run's code generation step: the
// three files the spec's tooling expects alongside the rewritten
// sources.
type Outputs struct {
	Source        string         // <prefix>.c
	Header        string         // <prefix>.h
	LinkerScripts map[int]string // pkey -> <prefix>_<pkey>.ld
}

// GenerateOutputs builds the wrapper definitions, the header declaring
// every opaque struct/wrapper extern/IA2_TYPE_ alias, and one linker
// script per caller pkey, for every cross-compartment function found
// across the run's files.
func GenerateOutputs(prog *Program, types *TypeSet, arch abi.Arch, prefix string) (Outputs, []Warning) {
	var warnings []Warning
	out := Outputs{LinkerScripts: make(map[int]string)}

	var source, header strings.Builder
	header.WriteString("#ifndef " + strings.ToUpper(prefix) + "_H\n")
	header.WriteString("#define " + strings.ToUpper(prefix) + "_H\n\n")
	header.WriteString("asm(\"__libia2_abort:\\n\\tud2\\n\");\n\n")

	for _, sig := range sortedSignatures(types) {
		ft := types.Signatures()[sig]
		header.WriteString(fmt.Sprintf("struct IA2_fnptr_%s { void *ptr; };\n", sig))
		header.WriteString(fmt.Sprintf("#define IA2_TYPE_%s %s\n", sig, ft.String()))
	}
	header.WriteString("\n")

	ldLines := make(map[int][]string)
	source.WriteString("void *ia2_fn_ptr;\n\n")

	for _, fi := range prog.WrapperTargets() {
		proto, err := BuildPrototype(fi.Decl)
		if err != nil {
			warnings = append(warnings, Warning{
				Message: fmt.Sprintf("function %q has an unresolvable signature (%v); no wrapper emitted", fi.Name, err),
			})
			continue
		}
		sig, err := abi.Classify(proto, arch)
		if err != nil {
			warnings = append(warnings, Warning{
				Message: fmt.Sprintf("function %q: %v; no wrapper emitted", fi.Name, err),
			})
			continue
		}

		wrapperName := "__wrap_" + fi.Name
		for _, callerPkey := range fi.CallerPkeys() {
			text, err := wrapper.Emit(wrapper.Gate{
				Name:       wrapperName,
				Target:     fi.Name,
				Kind:       wrapper.Direct,
				Signature:  sig,
				CallerPkey: callerPkey,
				TargetPkey: targetPkey(fi),
				Arch:       arch,
			})
			if err != nil {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("function %q: %v", fi.Name, err)})
				continue
			}
			source.WriteString(text)
			source.WriteString("\n")
			ldLines[callerPkey] = append(ldLines[callerPkey], fmt.Sprintf("--wrap=%s", fi.Name))
		}
		header.WriteString(fmt.Sprintf("extern %s;\n", wrapperExternDecl(wrapperName, fi.Decl)))
	}

	header.WriteString("\n#endif\n")
	out.Source = source.String()
	out.Header = header.String()
	for pkey, lines := range ldLines {
		sort.Strings(lines)
		out.LinkerScripts[pkey] = strings.Join(lines, "\n") + "\n"
	}
	return out, warnings
}

// targetPkey picks the single pkey that defines fi, the wrapper's
// ultimate destination. A cross-compartment function is defined in
// exactly one compartment; CollectFile only ever marks DefinedIn for
// the pkey that holds its definition.
func targetPkey(fi *FuncInfo) int {
	for pkey := range fi.DefinedIn {
		return pkey
	}
	return 0
}

// wrapperExternDecl renders the extern declaration for a cross-
// compartment function's wrapper symbol, reusing the original
// declaration's return and parameter type spellings.
func wrapperExternDecl(wrapperName string, fd *cparse.FuncDecl) string {
	var params []string
	for _, p := range fd.Params {
		params = append(params, p.Type.Spelling())
	}
	if fd.Variadic {
		params = append(params, "...")
	}
	if len(params) == 0 {
		params = []string{"void"}
	}
	return fmt.Sprintf("%s %s(%s)", fd.Return.Spelling(), wrapperName, strings.Join(params, ", "))
}

func sortedSignatures(types *TypeSet) []string {
	var sigs []string
	for sig := range types.Signatures() {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)
	return sigs
}
