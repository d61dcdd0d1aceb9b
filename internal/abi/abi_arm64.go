package abi

// classifyAArch64 implements the AAPCS64 argument and return-value
// classification algorithm.
func classifyAArch64(p Prototype) (Signature, error) {
	if p.Variadic {
		return Signature{}, ErrVariadicByRegister
	}

	sig := Signature{}
	for _, a := range p.Args {
		slots, err := classifyAArch64Value(a)
		if err != nil {
			return Signature{}, err
		}
		sig.Args = append(sig.Args, slots...)
	}

	if !p.Return.isVoid() {
		slots, err := classifyAArch64Value(p.Return)
		if err != nil {
			return Signature{}, err
		}
		sig.Return = slots
	}

	return sig, nil
}

// classifyAArch64Value handles one argument or return value: HFA
// detection first (≤4 real-floating members, regardless of overall
// size), then the ≤128-bit field walk with explicit padding-gap Memory
// slots, then ⌈size/64⌉ Memory slots for anything larger.
func classifyAArch64Value(t CType) ([]SlotKind, error) {
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
		if n, ok := isHFA(t); ok {
			return repeatKind(Float, n), nil
		}
		if t.Size <= 16 {
			return eightbyteMerge(t, Memory)
		}
		return memorySlots(t.Size), nil

	default:
		return nil, ErrAmbiguousAggregate
	}
}
