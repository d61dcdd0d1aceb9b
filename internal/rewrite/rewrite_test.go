package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ia2/internal/cparse"
)

func TestFnPtrTypesRewritesParameterAndVariable(t *testing.T) {
	src := []byte("void run(int (*cb)(int, int));\nint (*current)(int, int);\n")
	file := cparse.Parse(src)
	types := NewTypeSet()
	edits, warnings := FnPtrTypes("f.c", file, types)
	require.Empty(t, warnings)
	require.Len(t, edits, 2)

	out, err := Apply(src, edits)
	require.NoError(t, err)
	assert.Contains(t, string(out), "struct IA2_fnptr_")
	assert.NotEmpty(t, types.Signatures())
}

func TestFnPtrTypesRefusesVariadicFunctionPointer(t *testing.T) {
	src := []byte("typedef int (*variadic_cb)(int, ...);\n")
	file := cparse.Parse(src)
	types := NewTypeSet()
	edits, warnings := FnPtrTypes("f.c", file, types)
	assert.Empty(t, edits)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "variadic")
}

func TestFnPtrCallRewritesIndirectCallOnly(t *testing.T) {
	src := []byte("int dispatch(int (*op)(int, int), int a, int b) { return op(a, b); }\n")
	file := cparse.Parse(src)
	syms := CollectSymbols(file)
	edits, warnings := FnPtrCall("f.c", file, syms)
	require.Empty(t, warnings)
	require.Len(t, edits, 1)
	out, err := Apply(src, edits)
	require.NoError(t, err)
	assert.Contains(t, string(out), "IA2_CALL(op,")
}

func TestFnPtrExprRewritesAddressTakenFunctionName(t *testing.T) {
	src := []byte("int add(int a, int b) { return a + b; }\nint (*op)(int, int) = add;\n")
	file := cparse.Parse(src)
	prog := NewProgram()
	prog.CollectFile(1, file)
	edits, warnings := FnPtrExpr("f.c", file, prog)
	require.Empty(t, warnings)
	out, err := Apply(src, edits)
	require.NoError(t, err)
	assert.Contains(t, string(out), "IA2_FN(add)")
}

func TestFnPtrExprSkipsDirectCallAndEqualityOperand(t *testing.T) {
	src := []byte("int add(int a, int b) { return a + b; }\nint call(void) { return add(1, 2); }\nint eq(void) { return add == add; }\n")
	file := cparse.Parse(src)
	prog := NewProgram()
	prog.CollectFile(1, file)
	edits, _ := FnPtrExpr("f.c", file, prog)
	assert.Empty(t, edits)
}

func TestFnPtrNullRewritesDeclInitializer(t *testing.T) {
	src := []byte("int (*op)(int, int) = NULL;\n")
	file := cparse.Parse(src)
	syms := CollectSymbols(file)
	edits, warnings := FnPtrNull("f.c", file, syms)
	require.Empty(t, warnings)
	out, err := Apply(src, edits)
	require.NoError(t, err)
	assert.Contains(t, string(out), "{NULL}")
}

func TestFnPtrNullRewritesAssignment(t *testing.T) {
	src := []byte("void reset(int (*op)(int, int)) { op = NULL; }\n")
	file := cparse.Parse(src)
	syms := CollectSymbols(file)
	edits, warnings := FnPtrNull("f.c", file, syms)
	require.Empty(t, warnings)
	require.Len(t, edits, 1)
	out, err := Apply(src, edits)
	require.NoError(t, err)
	assert.Contains(t, string(out), "(typeof(op)) {NULL}")
}

func TestFnPtrEqWrapsBooleanContextPointer(t *testing.T) {
	src := []byte("int check(int (*op)(int, int)) { if (op) { return 1; } return 0; }\n")
	file := cparse.Parse(src)
	syms := CollectSymbols(file)
	prog := NewProgram()
	prog.CollectFile(1, file)
	edits, warnings := FnPtrEq("f.c", file, syms, prog)
	require.Empty(t, warnings)
	require.Len(t, edits, 1)
	out, err := Apply(src, edits)
	require.NoError(t, err)
	assert.Contains(t, string(out), "IA2_ADDR(op)")
}

func TestFnPtrEqWrapsFunctionNameEquality(t *testing.T) {
	src := []byte("int add(int a, int b) { return a + b; }\nint same(int (*op)(int, int)) { return op == add; }\n")
	file := cparse.Parse(src)
	syms := CollectSymbols(file)
	prog := NewProgram()
	prog.CollectFile(1, file)
	edits, warnings := FnPtrEq("f.c", file, syms, prog)
	require.Empty(t, warnings)
	require.Len(t, edits, 2)
	out, err := Apply(src, edits)
	require.NoError(t, err)
	assert.Contains(t, string(out), "IA2_ADDR(op)")
	assert.Contains(t, string(out), "IA2_FN_ADDR(add)")
}

func TestProgramCrossCompartmentDetection(t *testing.T) {
	caller := cparse.Parse([]byte("int add(int a, int b);\n"))
	definer := cparse.Parse([]byte("int add(int a, int b) { return a + b; }\n"))
	prog := NewProgram()
	prog.CollectFile(1, caller)
	prog.CollectFile(2, definer)

	targets := prog.WrapperTargets()
	require.Len(t, targets, 1)
	assert.Equal(t, "add", targets[0].Name)
	assert.Equal(t, []int{1}, targets[0].CallerPkeys())
}

func TestProgramExcludesSkipWrapAndVariadic(t *testing.T) {
	caller := cparse.Parse([]byte("ia2_skip_wrap int helper(int a);\nint printf(const char *fmt, ...);\n"))
	definer := cparse.Parse([]byte("int helper(int a) { return a; }\n"))
	prog := NewProgram()
	prog.CollectFile(1, caller)
	prog.CollectFile(2, definer)
	assert.Empty(t, prog.WrapperTargets())
}

func TestMangleDistinguishesSignatures(t *testing.T) {
	intInt := &cparse.FuncType{Return: &cparse.TypeRef{Base: "int"}, Params: []cparse.TypeRef{{Base: "int"}}}
	voidInt := &cparse.FuncType{Return: &cparse.TypeRef{Base: "void"}, Params: []cparse.TypeRef{{Base: "int"}}}
	assert.NotEqual(t, Mangle(intInt), Mangle(voidInt))
}

func TestApplyRejectsOverlappingEdits(t *testing.T) {
	src := []byte("abcdef")
	_, err := Apply(src, []Edit{{Start: 0, End: 3, Replacement: "x"}, {Start: 1, End: 4, Replacement: "y"}})
	assert.Error(t, err)
}

func TestMacroOcclusionLeavesSourceUnchanged(t *testing.T) {
	src := []byte("#define CALL(f) f(1, 2)\nint add(int a, int b) { return a + b; }\nint x = CALL(add);\n")
	file := cparse.Parse(src)
	prog := NewProgram()
	prog.CollectFile(1, file)
	edits, warnings := FnPtrExpr("f.c", file, prog)
	require.Len(t, warnings, 1)
	assert.Empty(t, edits)
	assert.Equal(t, "CALL", warnings[0].Macro)
}
