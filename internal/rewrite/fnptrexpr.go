package rewrite

import (
	"strings"

	"ia2/internal/cparse"
)

// FnPtrExpr rewrites every expression that names a function -- other
// than the callee of a direct call or an operand of == / != -- to
// IA2_FN(<name>). Static functions that get at least one such rewrite
// are additionally annotated with __attribute__((used)) so they survive
// the linker even when no longer referenced by name at their
// declaration site.
func FnPtrExpr(path string, file *cparse.File, prog *Program) ([]Edit, []Warning) {
	occl := newOcclusionChecker(path, file)
	toks := file.Tokens

	declSites := make(map[int]bool)
	staticFuncs := make(map[string]*cparse.FuncDecl)
	for idx := range file.FuncDecls {
		fd := &file.FuncDecls[idx]
		declSites[fd.NameStart] = true
		if isStaticDecl(fd.Return.Base) {
			staticFuncs[fd.Name] = fd
		}
	}

	var edits []Edit
	var warnings []Warning
	rewrittenStatic := make(map[string]bool)

	for i, t := range toks {
		if t.Kind != cparse.Ident {
			continue
		}
		if _, isFunc := prog.Funcs[t.Text]; !isFunc {
			continue
		}
		if declSites[t.Start] {
			continue
		}
		if isDirectCallCallee(toks, i) {
			continue
		}
		if isEqualityOperand(toks, i) {
			continue
		}
		if w, hit := occl.occluded(t.Start, t.End, "function address-taken rewrite"); hit {
			warnings = append(warnings, w)
			continue
		}
		edits = append(edits, Edit{Start: t.Start, End: t.End, Replacement: "IA2_FN(" + t.Text + ")"})
		if _, ok := staticFuncs[t.Text]; ok {
			rewrittenStatic[t.Text] = true
		}
	}

	for name := range rewrittenStatic {
		fd := staticFuncs[name]
		edits = append(edits, Edit{Start: fd.DeclStart, End: fd.DeclStart, Replacement: "__attribute__((used)) "})
	}
	return edits, warnings
}

func isStaticDecl(returnBase string) bool {
	for _, f := range strings.Fields(returnBase) {
		if f == "static" {
			return true
		}
	}
	return false
}

func isDirectCallCallee(toks []cparse.Token, i int) bool {
	return i+1 < len(toks) && toks[i+1].Kind == cparse.Punct && toks[i+1].Text == "("
}

func isEqualityOperand(toks []cparse.Token, i int) bool {
	if i > 0 && toks[i-1].Kind == cparse.Punct && (toks[i-1].Text == "==" || toks[i-1].Text == "!=") {
		return true
	}
	if i+1 < len(toks) && toks[i+1].Kind == cparse.Punct && (toks[i+1].Text == "==" || toks[i+1].Text == "!=") {
		return true
	}
	return false
}
