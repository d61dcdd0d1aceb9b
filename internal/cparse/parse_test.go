package cparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecognizesPlainFunctionDeclaration(t *testing.T) {
	f := Parse([]byte("int add(int a, int b);\n"))
	require.Len(t, f.FuncDecls, 1)
	fd := f.FuncDecls[0]
	assert.Equal(t, "add", fd.Name)
	assert.False(t, fd.IsDefinition)
	require.Len(t, fd.Params, 2)
	assert.Equal(t, "a", fd.Params[0].Name)
	assert.Equal(t, "int", fd.Params[0].Type.Base)
}

func TestParseRecognizesFunctionDefinitionBody(t *testing.T) {
	f := Parse([]byte("int add(int a, int b) { return a + b; }\n"))
	require.Len(t, f.FuncDecls, 1)
	fd := f.FuncDecls[0]
	assert.True(t, fd.IsDefinition)
	assert.Greater(t, fd.BodyEnd, fd.BodyStart)
}

func TestParseRecordsVariadicFlag(t *testing.T) {
	f := Parse([]byte("int printf(const char *fmt, ...);\n"))
	require.Len(t, f.FuncDecls, 1)
	assert.True(t, f.FuncDecls[0].Variadic)
}

func TestParseDetectsSkipWrapAttribute(t *testing.T) {
	f := Parse([]byte("ia2_skip_wrap void internal_only(void);\n"))
	require.Len(t, f.FuncDecls, 1)
	assert.True(t, f.FuncDecls[0].SkipWrap)
}

func TestParseRecognizesFunctionPointerTypedef(t *testing.T) {
	f := Parse([]byte("typedef int (*callback_t)(int, int);\n"))
	require.Len(t, f.Typedefs, 1)
	td := f.Typedefs[0]
	assert.Equal(t, "callback_t", td.Name)
	require.True(t, td.Type.IsFuncPointer())
	assert.Equal(t, "int", td.Type.FuncPtr.Return.Base)
	assert.Len(t, td.Type.FuncPtr.Params, 2)
}

func TestParseRecognizesFunctionPointerVariable(t *testing.T) {
	f := Parse([]byte("int (*op)(int, int) = add;\n"))
	require.Len(t, f.VarDecls, 1)
	vd := f.VarDecls[0]
	assert.Equal(t, "op", vd.Name)
	require.True(t, vd.Type.IsFuncPointer())
	assert.True(t, vd.HasInitializer)
}

func TestParseRecognizesPlainVariableWithInitializer(t *testing.T) {
	f := Parse([]byte("int counter = 0;\n"))
	require.Len(t, f.VarDecls, 1)
	vd := f.VarDecls[0]
	assert.Equal(t, "counter", vd.Name)
	assert.True(t, vd.HasInitializer)
}

func TestParseRecognizesPlainTypedef(t *testing.T) {
	f := Parse([]byte("typedef unsigned int uint32_t;\n"))
	require.Len(t, f.Typedefs, 1)
	assert.Equal(t, "uint32_t", f.Typedefs[0].Name)
	assert.False(t, f.Typedefs[0].Type.IsFuncPointer())
}

func TestParseVoidParamListYieldsNoParams(t *testing.T) {
	f := Parse([]byte("int reset(void);\n"))
	require.Len(t, f.FuncDecls, 1)
	assert.Empty(t, f.FuncDecls[0].Params)
	assert.False(t, f.FuncDecls[0].Variadic)
}

func TestFuncLikeMacrosFindsFunctionLikeOnly(t *testing.T) {
	src := []byte("#define MAX(a, b) ((a) > (b) ? (a) : (b))\n#define VERSION 3\n")
	macros := FuncLikeMacros(src)
	assert.True(t, macros["MAX"])
	assert.False(t, macros["VERSION"])
}
