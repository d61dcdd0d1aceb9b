package rewrite

import "ia2/internal/cparse"

// FnPtrNull rewrites every function-pointer initializer or assignment
// whose right-hand side is a null pointer constant: `{NULL}` in
// declarator initializer position, `(typeof(lhs)) {NULL}` in
// assignment position.
func FnPtrNull(path string, file *cparse.File, syms *Symbols) ([]Edit, []Warning) {
	occl := newOcclusionChecker(path, file)
	var edits []Edit
	var warnings []Warning
	handled := make(map[int]bool)

	for _, vd := range file.VarDecls {
		if !vd.Type.IsFuncPointer() || !vd.HasInitializer {
			continue
		}
		if !isNullConstant(file.Src[vd.InitStart:vd.InitEnd]) {
			continue
		}
		if w, hit := occl.occluded(vd.InitStart, vd.InitEnd, "null function-pointer initializer rewrite"); hit {
			warnings = append(warnings, w)
			continue
		}
		edits = append(edits, Edit{Start: vd.InitStart, End: vd.InitEnd, Replacement: "{NULL}"})
		handled[vd.InitStart] = true
	}

	toks := file.Tokens
	for i := 0; i+2 < len(toks); i++ {
		t := toks[i]
		if t.Kind != cparse.Ident {
			continue
		}
		if _, known := syms.FuncPtrVars[t.Text]; !known {
			continue
		}
		if !(toks[i+1].Kind == cparse.Punct && toks[i+1].Text == "=") {
			continue
		}
		rhs := toks[i+2]
		if !((rhs.Kind == cparse.Ident || rhs.Kind == cparse.Keyword) && rhs.Text == "NULL") && !(rhs.Kind == cparse.Number && rhs.Text == "0") {
			continue
		}
		if i+3 < len(toks) && !(toks[i+3].Kind == cparse.Punct && toks[i+3].Text == ";") {
			continue
		}
		if handled[rhs.Start] {
			continue
		}
		if w, hit := occl.occluded(rhs.Start, rhs.End, "null function-pointer assignment rewrite"); hit {
			warnings = append(warnings, w)
			continue
		}
		edits = append(edits, Edit{Start: rhs.Start, End: rhs.End, Replacement: "(typeof(" + t.Text + ")) {NULL}"})
	}
	return edits, warnings
}

func isNullConstant(text []byte) bool {
	s := string(text)
	return s == "NULL" || s == "0"
}
