package abi

// leaf is one scalar contributor to an aggregate's eightbyte
// classification, at a known byte offset from the start of the
// aggregate being classified.
type leaf struct {
	offset int
	size   int
	kind   SlotKind
}

// flattenLeaves walks t (a scalar, array, or record) into its scalar
// leaves, each tagged with its absolute byte offset and register-class
// kind. A union's bytes are reported as a single Memory leaf spanning
// the union, since overlapping member storage makes per-field
// eightbyte merge ill-defined.
func flattenLeaves(t CType, base int) ([]leaf, error) {
	switch t.Kind {
	case KindScalar:
		if t.Scalar == ScalarUnsupported {
			return nil, ErrUnsupportedScalar
		}
		k, err := scalarSlotKind(t.Scalar)
		if err != nil {
			return nil, err
		}
		return []leaf{{offset: base, size: t.Size, kind: k}}, nil

	case KindArray:
		if t.Elem == nil {
			return nil, ErrAmbiguousAggregate
		}
		var out []leaf
		for i := 0; i < t.Count; i++ {
			sub, err := flattenLeaves(*t.Elem, base+i*t.Elem.Size)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil

	case KindRecord:
		if t.IsUnion {
			return []leaf{{offset: base, size: t.Size, kind: Memory}}, nil
		}
		var out []leaf
		for _, f := range t.Fields {
			sub, err := flattenLeaves(f.Type, base+f.Offset)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil

	default:
		return nil, ErrAmbiguousAggregate
	}
}

// scalarSlotKind maps a scalar's fundamental kind to the register class
// it occupies: pointer/bool/integral types go to Integer, floating-point
// types go to Float.
func scalarSlotKind(s ScalarKind) (SlotKind, error) {
	switch s {
	case ScalarInt, ScalarPointer, ScalarBool:
		return Integer, nil
	case ScalarFloat:
		return Float, nil
	default:
		return 0, ErrUnsupportedScalar
	}
}

// eightbyteMerge classifies an aggregate eightbyte-by-eightbyte: every
// leaf contributes its kind to every eightbyte its bytes overlap,
// merged via the Memory-dominates-then-Integer-dominates-Float rule
// (merge, in abi.go). An eightbyte touched by no leaf (a pure padding
// gap) is assigned gapDefault: x86-64 treats it as Integer, AArch64's
// ≤128-bit walk treats it as an explicit Memory slot.
func eightbyteMerge(t CType, gapDefault SlotKind) ([]SlotKind, error) {
	leaves, err := flattenLeaves(t, 0)
	if err != nil {
		return nil, err
	}
	n := eightbyteCount(t.Size)
	if n == 0 {
		n = 1
	}
	slots := make([]SlotKind, n)
	touched := make([]bool, n)
	for _, l := range leaves {
		if l.size == 0 {
			continue
		}
		startEB := l.offset / eightbyte
		endEB := (l.offset + l.size - 1) / eightbyte
		for eb := startEB; eb <= endEB && eb < n; eb++ {
			if eb < 0 {
				continue
			}
			if !touched[eb] {
				slots[eb] = l.kind
				touched[eb] = true
			} else {
				slots[eb] = merge(slots[eb], l.kind)
			}
		}
	}
	for i, ok := range touched {
		if !ok {
			slots[i] = gapDefault
		}
	}
	return slots, nil
}

// memorySlots returns size's eightbyte count worth of Memory slots, for
// aggregates passed/returned indirectly.
func memorySlots(size int) []SlotKind {
	n := eightbyteCount(size)
	if n == 0 {
		n = 1
	}
	slots := make([]SlotKind, n)
	for i := range slots {
		slots[i] = Memory
	}
	return slots
}

// isHFA reports whether t is a homogeneous floating aggregate of at
// most 4 real-floating members (AAPCS64), returning the member count
// when true.
func isHFA(t CType) (int, bool) {
	if t.Kind != KindRecord && t.Kind != KindArray {
		return 0, false
	}
	if t.Kind == KindRecord && t.IsUnion {
		return 0, false
	}
	leaves, err := flattenLeaves(t, 0)
	if err != nil || len(leaves) == 0 || len(leaves) > 4 {
		return 0, false
	}
	for _, l := range leaves {
		if l.kind != Float {
			return 0, false
		}
	}
	return len(leaves), true
}

func repeatKind(k SlotKind, n int) []SlotKind {
	slots := make([]SlotKind, n)
	for i := range slots {
		slots[i] = k
	}
	return slots
}

// canFlattenRecord reports whether clang would classify this record as
// a flattenable Direct aggregate rather than falling back to a single
// opaque Integer slot. A record with no fields at all and a non-zero
// size (an opaque forward-declared type reaching the classifier, which
// should not normally happen for a complete prototype) is the only case
// this model treats as unflattenable.
func canFlattenRecord(t CType) bool {
	return t.Kind != KindRecord || len(t.Fields) > 0 || t.Size == 0
}
