package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intArg() CType    { return CType{Kind: KindScalar, Scalar: ScalarInt, Size: 4} }
func ptrArg() CType    { return CType{Kind: KindScalar, Scalar: ScalarPointer, Size: 8} }
func doubleArg() CType { return CType{Kind: KindScalar, Scalar: ScalarFloat, Size: 8} }

func TestClassifyScalarArgsX86(t *testing.T) {
	p := Prototype{
		Return: intArg(),
		Args:   []CType{intArg(), ptrArg(), doubleArg()},
	}
	sig, err := Classify(p, ArchX86)
	require.NoError(t, err)
	assert.Equal(t, []SlotKind{Integer, Integer, Float}, sig.Args)
	assert.Equal(t, []SlotKind{Integer}, sig.Return)
	assert.False(t, sig.MemoryReturn())
}

// struct {double a; double b;} f(int x); with x in an integer register.
// Expected argument list: [Integer]; expected return list: [Float, Float].
func TestScenario6StructOfTwoDoublesReturnX86(t *testing.T) {
	ret := CType{
		Kind: KindRecord,
		Size: 16, Align: 8,
		Fields: []Field{
			{Name: "a", Type: doubleArg(), Offset: 0},
			{Name: "b", Type: doubleArg(), Offset: 8},
		},
	}
	p := Prototype{Return: ret, Args: []CType{intArg()}}
	sig, err := Classify(p, ArchX86)
	require.NoError(t, err)
	assert.Equal(t, []SlotKind{Integer}, sig.Args)
	assert.Equal(t, []SlotKind{Float, Float}, sig.Return)
	assert.False(t, sig.MemoryReturn(), "two Float return slots must not be demoted to memory")
}

func TestAggregateOver16BytesIsIndirectX86(t *testing.T) {
	big := CType{
		Kind: KindRecord,
		Size: 24, Align: 8,
		Fields: []Field{
			{Name: "a", Type: intArg(), Offset: 0},
			{Name: "b", Type: intArg(), Offset: 4},
			{Name: "c", Type: intArg(), Offset: 8},
			{Name: "d", Type: intArg(), Offset: 12},
			{Name: "e", Type: intArg(), Offset: 16},
			{Name: "f", Type: intArg(), Offset: 20},
		},
	}
	p := Prototype{Return: Void, Args: []CType{big}}
	sig, err := Classify(p, ArchX86)
	require.NoError(t, err)
	assert.Equal(t, []SlotKind{Memory, Memory, Memory}, sig.Args)
}

func TestThreeIntegerReturnSlotsDemoteToMemoryX86(t *testing.T) {
	// Three packed 4-byte integers occupy 2 eightbytes but, if we force
	// a >2 Integer-slot return (e.g. via a synthetic 3-eightbyte
	// all-integer aggregate at exactly the boundary), the demotion rule
	// replaces every Integer slot with Memory.
	ret := CType{
		Kind: KindRecord,
		Size: 16,
		Fields: []Field{
			{Name: "a", Type: intArg(), Offset: 0},
			{Name: "b", Type: intArg(), Offset: 4},
			{Name: "c", Type: intArg(), Offset: 8},
		},
	}
	slots, err := demoteX86ReturnForTest(ret)
	require.NoError(t, err)
	assert.Equal(t, []SlotKind{Integer, Integer}, slots, "sanity: only 2 eightbytes, demotion not triggered")

	forced := []SlotKind{Integer, Integer, Integer}
	assert.Equal(t, []SlotKind{Memory, Memory, Memory}, demoteX86Return(forced))
}

func demoteX86ReturnForTest(t CType) ([]SlotKind, error) {
	return classifyX86Value(t)
}

func TestVariadicIsRejected(t *testing.T) {
	p := Prototype{Return: Void, Args: []CType{intArg()}, Variadic: true}
	_, err := Classify(p, ArchX86)
	assert.ErrorIs(t, err, ErrVariadicByRegister)
	_, err = Classify(p, ArchAArch64)
	assert.ErrorIs(t, err, ErrVariadicByRegister)
}

func TestUnsupportedScalarRejected(t *testing.T) {
	p := Prototype{
		Return: Void,
		Args:   []CType{{Kind: KindScalar, Scalar: ScalarUnsupported, Size: 8}},
	}
	_, err := Classify(p, ArchX86)
	assert.ErrorIs(t, err, ErrUnsupportedScalar)
}

// AArch64 HFA: struct {float x,y,z;} classifies as three Float slots
// regardless of whether 12 bytes packs into two eightbytes.
func TestAArch64HFA(t *testing.T) {
	floatArg := CType{Kind: KindScalar, Scalar: ScalarFloat, Size: 4}
	hfa := CType{
		Kind: KindRecord,
		Size: 12,
		Fields: []Field{
			{Name: "x", Type: floatArg, Offset: 0},
			{Name: "y", Type: floatArg, Offset: 4},
			{Name: "z", Type: floatArg, Offset: 8},
		},
	}
	p := Prototype{Return: Void, Args: []CType{hfa}}
	sig, err := Classify(p, ArchAArch64)
	require.NoError(t, err)
	assert.Equal(t, []SlotKind{Float, Float, Float}, sig.Args)
}

func TestAArch64OversizeAggregateIsMemory(t *testing.T) {
	big := CType{Kind: KindArray, Size: 32, Elem: &CType{Kind: KindScalar, Scalar: ScalarInt, Size: 8}, Count: 4}
	p := Prototype{Return: Void, Args: []CType{big}}
	sig, err := Classify(p, ArchAArch64)
	require.NoError(t, err)
	assert.Equal(t, []SlotKind{Memory, Memory, Memory, Memory}, sig.Args)
}

func TestAArch64PaddingGapBecomesMemorySlot(t *testing.T) {
	// A struct { char c; double d; } has a 7-byte gap before d; the
	// first eightbyte is touched by c only (Integer) and the second by
	// d (Float) -- no untouched eightbyte here, so exercise the gap
	// case directly with a trailing unused eightbyte instead.
	withGap := CType{
		Kind: KindRecord,
		Size: 16,
		Fields: []Field{
			{Name: "c", Type: CType{Kind: KindScalar, Scalar: ScalarInt, Size: 1}, Offset: 0},
		},
	}
	slots, err := eightbyteMerge(withGap, Memory)
	require.NoError(t, err)
	assert.Equal(t, []SlotKind{Integer, Memory}, slots)
}
