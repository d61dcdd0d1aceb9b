package rewrite

import (
	"strconv"
	"strings"

	"ia2/internal/cparse"
)

// scalarCodes maps common C base-type spellings to their Itanium
// builtin-type letter, the same alphabet internal/abi's mangler uses,
// kept as a second small table here because this package mangles
// directly off cparse's syntactic TypeRef rather than a resolved ABI
// CType (the rewriter never classifies registers, it only needs a
// stable struct name per distinct signature).
var scalarCodes = map[string]string{
	"void": "v", "_Bool": "b", "bool": "b",
	"char": "c", "signed char": "a", "unsigned char": "h",
	"short": "s", "short int": "s", "unsigned short": "t", "unsigned short int": "t",
	"int": "i", "unsigned int": "j", "unsigned": "j",
	"long": "l", "long int": "l", "unsigned long": "m", "unsigned long int": "m",
	"long long": "x", "long long int": "x", "unsigned long long": "y",
	"float": "f", "double": "d", "long double": "e",
	"size_t": "m", "ssize_t": "l", "uintptr_t": "m", "intptr_t": "l",
	"int8_t": "a", "uint8_t": "h", "int16_t": "s", "uint16_t": "t",
	"int32_t": "i", "uint32_t": "j", "int64_t": "l", "uint64_t": "m",
}

// Mangle produces the stable signature string used to name a function
// pointer's opaque struct and IA2_TYPE_<mangled> alias: the Itanium-
// style builtin-type/pointer encoding of the function's return type and
// parameter types, in the same "P<return><args>" shape as
// internal/abi.MangleType but computed from cparse's syntactic types.
func Mangle(ft *cparse.FuncType) string {
	var b strings.Builder
	b.WriteByte('P')
	b.WriteString(mangleTypeRef(*ft.Return))
	if len(ft.Params) == 0 {
		b.WriteByte('v')
	}
	for _, p := range ft.Params {
		b.WriteString(mangleTypeRef(p))
	}
	if ft.Variadic {
		b.WriteByte('z')
	}
	return b.String()
}

func mangleTypeRef(t cparse.TypeRef) string {
	if t.IsFuncPointer() {
		return "P" + Mangle(t.FuncPtr)
	}
	var b strings.Builder
	for i := 0; i < t.Pointer; i++ {
		b.WriteByte('P')
	}
	base := normalizeBase(t.Base)
	if code, ok := scalarCodes[base]; ok {
		b.WriteString(code)
	} else if base == "" {
		b.WriteByte('v')
	} else {
		b.WriteString(strconv.Itoa(len(base)))
		b.WriteString(base)
	}
	return b.String()
}

// normalizeBase collapses qualifier/storage keywords (const, volatile,
// struct, unused leading whitespace from joinText) out of a base-type
// spelling so "const int" and "int" mangle identically, matching the
// convention that qualifiers don't affect a function pointer's calling
// signature.
func normalizeBase(base string) string {
	fields := strings.Fields(base)
	out := fields[:0]
	for _, f := range fields {
		switch f {
		case "const", "volatile", "struct", "enum", "union", "register", "static", "extern", "inline":
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}
