package abi

import (
	"fmt"
	"strconv"
	"strings"
)

// MangleType produces the stable mangled signature string used as the
// opaque function-pointer struct's key: the Itanium mangling of the
// canonical type. Two function pointers share an opaque type iff
// MangleType returns the same string for both.
//
// The encoding follows the Itanium C++ ABI's builtin-type and pointer
// productions (<builtin-type>, "P" for pointer-to) but, matching the
// IA2_CALL(ptr, Pvi)-style macro surface this scheme feeds, omits the
// surrounding function-type "F...E" wrapper: the result names "a
// pointer to a function of these arguments returning this type"
// directly as P<return><args...>, not PF<return><args...>E.
func MangleType(p Prototype) (string, error) {
	var b strings.Builder
	b.WriteByte('P')
	if p.Return.isVoid() {
		b.WriteByte('v')
	} else if err := mangleType(&b, p.Return); err != nil {
		return "", err
	}
	if len(p.Args) == 0 {
		b.WriteByte('v')
	}
	for _, a := range p.Args {
		if err := mangleType(&b, a); err != nil {
			return "", err
		}
	}
	if p.Variadic {
		b.WriteByte('z')
	}
	return b.String(), nil
}

func mangleType(b *strings.Builder, t CType) error {
	switch t.Kind {
	case KindScalar:
		code, err := mangleScalar(t.Scalar, t.Size)
		if err != nil {
			return err
		}
		b.WriteString(code)
		return nil

	case KindArray:
		if t.Elem == nil {
			return ErrAmbiguousAggregate
		}
		b.WriteByte('A')
		b.WriteString(strconv.Itoa(t.Count))
		b.WriteByte('_')
		return mangleType(b, *t.Elem)

	case KindRecord:
		name := recordName(t)
		b.WriteString(strconv.Itoa(len(name)))
		b.WriteString(name)
		return nil

	default:
		return ErrAmbiguousAggregate
	}
}

func recordName(t CType) string {
	if len(t.Fields) == 0 {
		return fmt.Sprintf("opaque%d", t.Size)
	}
	var names []string
	for _, f := range t.Fields {
		names = append(names, f.Name)
	}
	return strings.Join(names, "_")
}

// mangleScalar encodes a scalar's Itanium builtin-type letter. Pointer
// scalars mangle as "P" followed by a void placeholder, matching the
// convention that every pointer in this project's signatures is either
// an opaque IA2_fnptr struct (mangled by its own field) or a raw data
// pointer whose pointee type does not affect the call gate's register
// discipline.
func mangleScalar(s ScalarKind, size int) (string, error) {
	switch s {
	case ScalarBool:
		return "b", nil
	case ScalarPointer:
		return "Pv", nil
	case ScalarInt:
		switch size {
		case 1:
			return "c", nil
		case 2:
			return "s", nil
		case 4:
			return "i", nil
		case 8:
			return "l", nil
		default:
			return "", ErrUnsupportedScalar
		}
	case ScalarFloat:
		switch size {
		case 4:
			return "f", nil
		case 8:
			return "d", nil
		default:
			return "", ErrUnsupportedScalar
		}
	default:
		return "", ErrUnsupportedScalar
	}
}
