package rewrite

import "ia2/internal/cparse"

// Symbols is the function-pointer-typed name table a file's
// expression-level passes (FnPtrExpr, FnPtrCall, FnPtrNull, FnPtrEq)
// consult to tell a function-pointer variable or parameter apart from
// an ordinary identifier. It covers file-scope variables and every
// function's parameters; local variables declared inside a function
// body are out of scope for the same reason cparse's declaration
// scanner does not descend into bodies (this rewriter targets
// declarations and a handful of expression shapes, not full C scoping).
type Symbols struct {
	FuncPtrVars map[string]*cparse.FuncType
}

func CollectSymbols(file *cparse.File) *Symbols {
	s := &Symbols{FuncPtrVars: make(map[string]*cparse.FuncType)}
	for _, vd := range file.VarDecls {
		if vd.Type.IsFuncPointer() {
			s.FuncPtrVars[vd.Name] = vd.Type.FuncPtr
		}
	}
	for _, fd := range file.FuncDecls {
		for _, p := range fd.Params {
			if p.Type.IsFuncPointer() && p.Name != "" {
				s.FuncPtrVars[p.Name] = p.Type.FuncPtr
			}
		}
	}
	return s
}
