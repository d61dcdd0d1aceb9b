package rewrite

import "ia2/internal/cparse"

// TypeSet interns one opaque IA2_fnptr struct per distinct mangled
// function-pointer signature seen across every file in a run.
type TypeSet struct {
	types map[string]*cparse.FuncType
}

func NewTypeSet() *TypeSet {
	return &TypeSet{types: make(map[string]*cparse.FuncType)}
}

func (s *TypeSet) intern(ft *cparse.FuncType) string {
	sig := Mangle(ft)
	if _, ok := s.types[sig]; !ok {
		s.types[sig] = ft
	}
	return sig
}

// Signatures returns every interned signature and its type, in
// insertion-independent but stable (string-sorted by caller) form.
func (s *TypeSet) Signatures() map[string]*cparse.FuncType {
	return s.types
}

// FnPtrTypes rewrites every function-pointer-typed parameter, field,
// typedef, and variable declarator in file to `struct
// IA2_fnptr_<mangled-signature>`, interning the opaque struct into
// types. Variadic function-pointer types are refused (left unchanged,
// with a warning) since the gate wrapper scheme has no variadic
// calling convention to generate.
func FnPtrTypes(path string, file *cparse.File, types *TypeSet) ([]Edit, []Warning) {
	occl := newOcclusionChecker(path, file)
	var edits []Edit
	var warnings []Warning

	replace := func(start, end int, ft *cparse.FuncType, name string) {
		if ft.Variadic {
			warnings = append(warnings, Warning{
				File:         path,
				SpellingLine: cparse.LineOf(file.Src, start),
				Message:      "variadic function-pointer type is not supported",
			})
			return
		}
		if w, hit := occl.occluded(start, end, "function-pointer type rewrite"); hit {
			warnings = append(warnings, w)
			return
		}
		sig := types.intern(ft)
		text := "struct IA2_fnptr_" + sig
		if name != "" {
			text += " " + name
		}
		edits = append(edits, Edit{Start: start, End: end, Replacement: text})
	}

	for _, fd := range file.FuncDecls {
		for _, p := range fd.Params {
			if p.Type.IsFuncPointer() {
				replace(p.Start, p.End, p.Type.FuncPtr, p.Name)
			}
		}
	}
	for _, vd := range file.VarDecls {
		if vd.Type.IsFuncPointer() {
			replace(vd.DeclStart, vd.DeclEnd, vd.Type.FuncPtr, vd.Name)
		}
	}
	for _, td := range file.Typedefs {
		if td.Type.IsFuncPointer() {
			replace(td.DeclStart, td.DeclEnd, td.Type.FuncPtr, td.Name)
		}
	}
	return edits, warnings
}
