package compartment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest() Manifest {
	return Manifest{Compartments: []Compartment{
		{Pkey: 1, ExtraLibraries: []string{"libsimple1"}},
		{Pkey: 2, ExtraLibraries: []string{"libsimple2", "libhelper"}},
	}}
}

func TestValidateRejectsExplicitPkeyZero(t *testing.T) {
	m := Manifest{Compartments: []Compartment{{Pkey: 0, ExtraLibraries: []string{"x"}}}}
	assert.Error(t, m.Validate())
}

func TestValidateRejectsDuplicatePkey(t *testing.T) {
	m := Manifest{Compartments: []Compartment{
		{Pkey: 1, ExtraLibraries: []string{"a"}},
		{Pkey: 1, ExtraLibraries: []string{"b"}},
	}}
	assert.Error(t, m.Validate())
}

func TestValidateRejectsOutOfRangePkey(t *testing.T) {
	m := Manifest{Compartments: []Compartment{{Pkey: 16, ExtraLibraries: []string{"a"}}}}
	assert.Error(t, m.Validate())
}

func TestPkeysIncludesImplicitZero(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, testManifest().Pkeys())
}

func TestExtraLibrariesForJoinsWithSemicolon(t *testing.T) {
	c := Compartment{Pkey: 2, ExtraLibraries: []string{"libsimple2", "libhelper"}}
	assert.Equal(t, "libsimple2;libhelper", ExtraLibrariesFor(c))
}

func TestLayoutOnePagePerPkeyAscending(t *testing.T) {
	slots := Layout(testManifest())
	require.Len(t, slots, 3)
	assert.Equal(t, 0, slots[0].Pkey)
	assert.Equal(t, 0, slots[0].Offset())
	assert.Equal(t, 1, slots[1].Pkey)
	assert.Equal(t, pageSize, slots[1].Offset())
	assert.Equal(t, 2, slots[2].Pkey)
	assert.Equal(t, 2*pageSize, slots[2].Offset())
}

func TestPkeyZeroSlotExcludedFromProtection(t *testing.T) {
	slots := Layout(testManifest())
	assert.True(t, slots[0].ExcludedFromProtection())
	assert.False(t, slots[1].ExcludedFromProtection())
}

func TestGenerateInitRejectsPkeyZero(t *testing.T) {
	_, err := GenerateInit(Compartment{Pkey: 0, ExtraLibraries: []string{"x"}})
	assert.Error(t, err)
}

func TestGenerateInitEmitsConstructorForPkey(t *testing.T) {
	out, err := GenerateInit(Compartment{Pkey: 1, ExtraLibraries: []string{"libsimple1"}})
	require.NoError(t, err)
	assert.Contains(t, out, "ia2_protect_compartment_1")
	assert.Contains(t, out, ".pkey = 1,")
	assert.Contains(t, out, "libsimple1")
	assert.Contains(t, out, "dl_iterate_phdr(protect_pages, &args);")
	assert.Contains(t, out, "protect_tls_pages(1);")
}

func TestGenerateInitRuntimeSkipsPkeyZeroStack(t *testing.T) {
	out, err := GenerateInitRuntime(testManifest())
	require.NoError(t, err)
	assert.NotContains(t, out, "ia2_stackptr_0 =")
	assert.Contains(t, out, "ia2_stackptr_1 =")
	assert.Contains(t, out, "ia2_stackptr_2 =")
	assert.Equal(t, 2, strings.Count(out, "pkey_mprotect"))
}

func TestExitPolicyParsing(t *testing.T) {
	assert.Equal(t, ExitPolicyUnion, ParseExitPolicy("union"))
	assert.Equal(t, ExitPolicyCallgate, ParseExitPolicy("callgate"))
	assert.Equal(t, ExitPolicyAuto, ParseExitPolicy("auto"))
	assert.Equal(t, ExitPolicyCallgate, ParseExitPolicy(""))
	assert.Equal(t, ExitPolicyCallgate, ParseExitPolicy("bogus"))
}

func TestResolveExitPolicyAutoPrefersCallgateWhenNoUnionNeeded(t *testing.T) {
	records := []DestructorRecord{{Wrapper: "w1", CompartmentPkey: 1, NeedsUnionPKRU: false}}
	got, err := ResolveExitPolicy(ExitPolicyAuto, records)
	require.NoError(t, err)
	assert.Equal(t, ExitPolicyCallgate, got)
}

func TestResolveExitPolicyAutoPrefersUnionWhenNeeded(t *testing.T) {
	records := []DestructorRecord{{Wrapper: "w1", CompartmentPkey: 1, NeedsUnionPKRU: true}}
	got, err := ResolveExitPolicy(ExitPolicyAuto, records)
	require.NoError(t, err)
	assert.Equal(t, ExitPolicyUnion, got)
}

func TestResolveExitPolicyCallgateWithUnionNeedIsFatal(t *testing.T) {
	records := []DestructorRecord{{Wrapper: "w1", CompartmentPkey: 1, NeedsUnionPKRU: true}}
	_, err := ResolveExitPolicy(ExitPolicyCallgate, records)
	assert.Error(t, err)
}
