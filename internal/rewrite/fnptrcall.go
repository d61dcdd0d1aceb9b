package rewrite

import "ia2/internal/cparse"

// FnPtrCall rewrites every indirect call `ptr(args...)`, where ptr is
// a known function-pointer variable or parameter, to `IA2_CALL(ptr,
// <mangled-signature>)(args...)`.
func FnPtrCall(path string, file *cparse.File, syms *Symbols) ([]Edit, []Warning) {
	occl := newOcclusionChecker(path, file)
	toks := file.Tokens
	var edits []Edit
	var warnings []Warning

	for i := 0; i+1 < len(toks); i++ {
		t := toks[i]
		if t.Kind != cparse.Ident {
			continue
		}
		ft, known := syms.FuncPtrVars[t.Text]
		if !known {
			continue
		}
		if !(toks[i+1].Kind == cparse.Punct && toks[i+1].Text == "(") {
			continue
		}
		if w, hit := occl.occluded(t.Start, t.End, "indirect call rewrite"); hit {
			warnings = append(warnings, w)
			continue
		}
		sig := Mangle(ft)
		edits = append(edits, Edit{
			Start:       t.Start,
			End:         t.End,
			Replacement: "IA2_CALL(" + t.Text + ", " + sig + ")",
		})
	}
	return edits, warnings
}
