package abi

// classifyX86 implements the SysV x86-64 argument and return-value
// classification algorithm.
func classifyX86(p Prototype) (Signature, error) {
	if p.Variadic {
		return Signature{}, ErrVariadicByRegister
	}

	sig := Signature{}
	for _, a := range p.Args {
		slots, err := classifyX86Value(a)
		if err != nil {
			return Signature{}, err
		}
		sig.Args = append(sig.Args, slots...)
	}

	if !p.Return.isVoid() {
		slots, err := classifyX86Value(p.Return)
		if err != nil {
			return Signature{}, err
		}
		sig.Return = demoteX86Return(slots)
	}

	return sig, nil
}

// classifyX86Value handles one argument or return value: Ignore (void)
// already filtered by the caller, Direct/Extend scalars, Direct
// flattenable aggregates ≤16 bytes, a single opaque Integer slot for an
// unflattenable Direct struct, and Indirect (Memory) for aggregates
// >16 bytes.
func classifyX86Value(t CType) ([]SlotKind, error) {
	switch t.Kind {
	case KindScalar:
		if t.Scalar == ScalarUnsupported {
			return nil, ErrUnsupportedScalar
		}
		k, err := scalarSlotKind(t.Scalar)
		if err != nil {
			return nil, err
		}
		n := eightbyteCount(t.Size)
		if n == 0 {
			n = 1
		}
		return repeatKind(k, n), nil

	case KindArray, KindRecord:
		if t.IsUnion || t.Size > 16 {
			return memorySlots(t.Size), nil
		}
		if !canFlattenRecord(t) {
			return []SlotKind{Integer}, nil
		}
		return eightbyteMerge(t, Integer)

	default:
		return nil, ErrAmbiguousAggregate
	}
}

// demoteX86Return applies the x86-64 rule that a return value using more
// than two Integer eightbytes does not fit in RAX:RDX and must be
// returned via a caller-allocated buffer instead.
func demoteX86Return(slots []SlotKind) []SlotKind {
	intCount := 0
	for _, s := range slots {
		if s == Integer {
			intCount++
		}
	}
	if intCount <= 2 {
		return slots
	}
	out := make([]SlotKind, len(slots))
	for i := range out {
		out[i] = Memory
	}
	return out
}
