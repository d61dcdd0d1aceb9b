package cparse

import "strings"

// TypeRef is a declarator's type: a base spelling (e.g. "int", "struct
// Simple", "uint32_t"), a pointer depth, and an optional function-
// pointer shape when the declarator is "(*name)(params)".
type TypeRef struct {
	Base    string
	Pointer int
	FuncPtr *FuncType
}

// FuncType is a function (pointer) type's parameter list.
type FuncType struct {
	Return   *TypeRef
	Params   []TypeRef
	Variadic bool
}

// IsFuncPointer reports whether t denotes a pointer to function.
func (t TypeRef) IsFuncPointer() bool { return t.FuncPtr != nil }

// String renders ft as a C function-pointer type spelling, e.g.
// "int (*)(char *, int)", for use in generated IA2_TYPE_<mangled>
// aliases.
func (ft FuncType) String() string {
	var params []string
	for _, p := range ft.Params {
		params = append(params, p.Spelling())
	}
	if ft.Variadic {
		params = append(params, "...")
	}
	if len(params) == 0 {
		params = []string{"void"}
	}
	return ft.Return.Spelling() + " (*)(" + strings.Join(params, ", ") + ")"
}

// Spelling renders t as a C type spelling, e.g. "int", "char *".
func (t TypeRef) Spelling() string {
	if t.IsFuncPointer() {
		return t.FuncPtr.String()
	}
	s := t.Base
	for i := 0; i < t.Pointer; i++ {
		s += " *"
	}
	return s
}

// Param is one function parameter: an optional name and its type.
// Start/End bound the parameter's whole declarator text, used by
// FnPtrTypes to replace a function-pointer-typed parameter in place.
type Param struct {
	Name       string
	Type       TypeRef
	Start, End int
}

// FuncDecl is a top-level function declaration or definition.
type FuncDecl struct {
	Name         string
	Return       TypeRef
	Params       []Param
	Variadic     bool
	IsDefinition bool
	SkipWrap     bool // annotated ia2_skip_wrap
	// DeclStart is the byte offset of the declaration's first token
	// (storage class or return type), used to insert a leading
	// attribute such as __attribute__((used)).
	DeclStart int
	// NameStart/NameEnd are the byte offsets of the function name token,
	// used by later passes to find references to this symbol.
	NameStart, NameEnd int
	// BodyStart/BodyEnd bound the '{'...'}' body for a definition, used
	// to scope the expression-level passes; both zero for a bare
	// declaration.
	BodyStart, BodyEnd int
}

// TypedefDecl is a `typedef <type> <name>;` declaration. DeclStart/
// DeclEnd bound the whole declarator text (after the `typedef`
// keyword, before the trailing `;`), used by FnPtrTypes.
type TypedefDecl struct {
	Name               string
	Type               TypeRef
	DeclStart, DeclEnd int
}

// VarDecl is a file-scope or parameter/field variable declaration,
// including its initializer expression's token span if present.
// DeclStart/DeclEnd bound the declarator text up to (not including)
// any `= init` or the trailing `;`.
type VarDecl struct {
	Name               string
	Type               TypeRef
	HasInitializer     bool
	InitStart, InitEnd int
	DeclStart, DeclEnd int
}

// File is the parsed declaration-level structure of one translation
// unit: enough to drive FnDecl and FnPtrTypes, plus the raw token
// stream for the expression-level passes to scan within function
// bodies.
type File struct {
	Tokens    []Token
	Src       []byte
	FuncDecls []FuncDecl
	Typedefs  []TypedefDecl
	VarDecls  []VarDecl
	// Macros holds the function-like macro names #defined in this file,
	// used to detect when a rewrite target's spelling location sits
	// inside a macro expansion.
	Macros map[string]bool
}
