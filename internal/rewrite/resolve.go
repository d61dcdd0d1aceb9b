package rewrite

import (
	"ia2/internal/abi"
	"ia2/internal/cparse"
)

// primitiveTypes maps a normalized base-type spelling to its scalar
// kind and size, the same alphabet of primitive C types abi.Classify
// already expects a resolved abi.CType to carry. A base spelling not in
// this table is assumed to name a struct/union/enum the rewriter has no
// field layout for, and ResolveCType reports abi.ErrAmbiguousAggregate
// for it rather than guessing at a classification.
var primitiveTypes = map[string]struct {
	scalar abi.ScalarKind
	size   int
}{
	"void": {abi.ScalarUnsupported, 0},
	"_Bool": {abi.ScalarBool, 1}, "bool": {abi.ScalarBool, 1},
	"char": {abi.ScalarInt, 1}, "signed char": {abi.ScalarInt, 1}, "unsigned char": {abi.ScalarInt, 1},
	"int8_t": {abi.ScalarInt, 1}, "uint8_t": {abi.ScalarInt, 1},
	"short": {abi.ScalarInt, 2}, "short int": {abi.ScalarInt, 2}, "unsigned short": {abi.ScalarInt, 2}, "unsigned short int": {abi.ScalarInt, 2},
	"int16_t": {abi.ScalarInt, 2}, "uint16_t": {abi.ScalarInt, 2},
	"int": {abi.ScalarInt, 4}, "unsigned int": {abi.ScalarInt, 4}, "unsigned": {abi.ScalarInt, 4},
	"int32_t": {abi.ScalarInt, 4}, "uint32_t": {abi.ScalarInt, 4},
	"long": {abi.ScalarInt, 8}, "long int": {abi.ScalarInt, 8}, "unsigned long": {abi.ScalarInt, 8}, "unsigned long int": {abi.ScalarInt, 8},
	"long long": {abi.ScalarInt, 8}, "long long int": {abi.ScalarInt, 8}, "unsigned long long": {abi.ScalarInt, 8},
	"size_t": {abi.ScalarInt, 8}, "ssize_t": {abi.ScalarInt, 8}, "uintptr_t": {abi.ScalarInt, 8}, "intptr_t": {abi.ScalarInt, 8},
	"int64_t": {abi.ScalarInt, 8}, "uint64_t": {abi.ScalarInt, 8},
	"float": {abi.ScalarFloat, 4},
	"double": {abi.ScalarFloat, 8}, "long double": {abi.ScalarFloat, 8},
}

// ResolveCType maps a cparse.TypeRef to the canonical abi.CType
// Classify needs. Any level of pointer indirection, and every
// function-pointer declarator, resolves to an 8-byte integer-class
// pointer scalar: the pointee's own shape never affects register
// classification, only whether it is itself a pointer.
func ResolveCType(t cparse.TypeRef) (abi.CType, error) {
	if t.Pointer > 0 || t.IsFuncPointer() {
		return abi.CType{Kind: abi.KindScalar, Scalar: abi.ScalarPointer, Size: 8}, nil
	}
	base := normalizeBase(t.Base)
	if prim, ok := primitiveTypes[base]; ok {
		return abi.CType{Kind: abi.KindScalar, Scalar: prim.scalar, Size: prim.size}, nil
	}
	return abi.CType{}, abi.ErrAmbiguousAggregate
}

// BuildPrototype converts a parsed function declaration to the
// canonical abi.Prototype Classify consumes.
func BuildPrototype(fd *cparse.FuncDecl) (abi.Prototype, error) {
	p := abi.Prototype{Name: fd.Name, Variadic: fd.Variadic}

	retBase := normalizeBase(fd.Return.Base)
	if fd.Return.Pointer == 0 && !fd.Return.IsFuncPointer() && retBase == "void" {
		p.Return = abi.Void
	} else {
		ret, err := ResolveCType(fd.Return)
		if err != nil {
			return abi.Prototype{}, err
		}
		p.Return = ret
	}

	for _, param := range fd.Params {
		arg, err := ResolveCType(param.Type)
		if err != nil {
			return abi.Prototype{}, err
		}
		p.Args = append(p.Args, arg)
	}
	return p, nil
}
