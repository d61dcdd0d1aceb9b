package rewrite

import "ia2/internal/cparse"

// FnPtrEq rewrites function-pointer operands in boolean context
// (`if (p)`, `!p`, `p == q`, `p != q`) by wrapping a pointer variable in
// IA2_ADDR(...) and a function name in IA2_FN_ADDR(...), unwrapping the
// single-field opaque struct so plain integer comparison semantics are
// preserved.
func FnPtrEq(path string, file *cparse.File, syms *Symbols, prog *Program) ([]Edit, []Warning) {
	occl := newOcclusionChecker(path, file)
	toks := file.Tokens
	var edits []Edit
	var warnings []Warning

	wrap := func(t cparse.Token) {
		var repl string
		if _, isVar := syms.FuncPtrVars[t.Text]; isVar {
			repl = "IA2_ADDR(" + t.Text + ")"
		} else if _, isFunc := prog.Funcs[t.Text]; isFunc {
			repl = "IA2_FN_ADDR(" + t.Text + ")"
		} else {
			return
		}
		if w, hit := occl.occluded(t.Start, t.End, "boolean-context function-pointer rewrite"); hit {
			warnings = append(warnings, w)
			return
		}
		edits = append(edits, Edit{Start: t.Start, End: t.End, Replacement: repl})
	}

	isCandidate := func(t cparse.Token) bool {
		if t.Kind != cparse.Ident {
			return false
		}
		_, isVar := syms.FuncPtrVars[t.Text]
		_, isFunc := prog.Funcs[t.Text]
		return isVar || isFunc
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]

		// if ( IDENT )
		if t.Kind == cparse.Keyword && t.Text == "if" && i+3 < len(toks) &&
			toks[i+1].Text == "(" && isCandidate(toks[i+2]) && toks[i+3].Text == ")" {
			wrap(toks[i+2])
			continue
		}

		// ! IDENT
		if t.Kind == cparse.Punct && t.Text == "!" && i+1 < len(toks) && isCandidate(toks[i+1]) {
			wrap(toks[i+1])
			continue
		}

		// IDENT (== | !=) IDENT
		if isCandidate(t) && i+1 < len(toks) && toks[i+1].Kind == cparse.Punct &&
			(toks[i+1].Text == "==" || toks[i+1].Text == "!=") {
			wrap(t)
			if i+2 < len(toks) && isCandidate(toks[i+2]) {
				wrap(toks[i+2])
				i += 2
			}
			continue
		}
	}
	return edits, warnings
}
