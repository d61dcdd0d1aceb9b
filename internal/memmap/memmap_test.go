package memmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMmapAnonAlwaysPermitted(t *testing.T) {
	m := New()
	d, err := m.Mmap(0x1000, PageSize, unix.PROT_READ, 1)
	require.NoError(t, err)
	assert.Equal(t, Permit, d)
	require.Len(t, m.Regions(), 1)
	r := m.Regions()[0]
	assert.Equal(t, 1, r.OwnerPkey)
	assert.False(t, r.PkeyProtected)
}

func TestAdjacentRegionsDoNotOverlap(t *testing.T) {
	r := Region{Start: 0x1000, Len: PageSize}
	assert.False(t, r.overlaps(0x2000, PageSize), "adjacent ranges (end==start) must not be treated as overlapping")
	assert.True(t, r.overlaps(0x1000, PageSize))
	assert.True(t, r.overlaps(0x1800, 0x800))
}

func TestMmapFixedDeniedForDifferentOwner(t *testing.T) {
	m := New()
	_, _ = m.Mmap(0x1000, PageSize, unix.PROT_READ, 1)
	d, err := m.MmapFixed(0x1000, PageSize, unix.PROT_READ|unix.PROT_WRITE, 2)
	require.NoError(t, err)
	assert.Equal(t, Deny, d)
}

func TestMmapFixedPartialOverlapSplitsIntoThreePieces(t *testing.T) {
	m := New()
	_, _ = m.Mmap(0x1000, 3*PageSize, unix.PROT_READ, 1)
	d, err := m.MmapFixed(0x1000+PageSize, PageSize, unix.PROT_READ|unix.PROT_WRITE, 1)
	require.NoError(t, err)
	require.Equal(t, Permit, d)
	regions := m.Regions()
	require.Len(t, regions, 3)
	var newProtCount int
	for _, r := range regions {
		if r.Prot == unix.PROT_READ|unix.PROT_WRITE {
			newProtCount++
		}
	}
	assert.Equal(t, 1, newProtCount, "at most one piece adopts the new prot")
}

func TestMunmapDeniedForDifferentOwner(t *testing.T) {
	m := New()
	_, _ = m.Mmap(0x1000, PageSize, unix.PROT_READ, 1)
	d, err := m.Munmap(0x1000, PageSize, 2)
	require.NoError(t, err)
	assert.Equal(t, Deny, d)
	assert.Len(t, m.Regions(), 1)
}

func TestMprotectPermittedBeforeInitFinished(t *testing.T) {
	m := New()
	_, _ = m.Mmap(0x1000, PageSize, unix.PROT_READ|unix.PROT_WRITE, 1)
	_, _ = m.PkeyMprotect(0x1000, PageSize, unix.PROT_READ|unix.PROT_WRITE, 1, 0)

	// mprotect to R|X before the signpost is permitted even though the
	// region is already pkey-protected and the new prot differs from
	// the current prot, because init has not finished.
	d, err := m.Mprotect(0x1000, PageSize, unix.PROT_READ|unix.PROT_EXEC)
	require.NoError(t, err)
	assert.Equal(t, Permit, d)
}

func TestMprotectDeniedAfterInitFinishedWithNoExemption(t *testing.T) {
	m := New()
	_, _ = m.Mmap(0x1000, PageSize, unix.PROT_READ, 1)
	_, _ = m.PkeyMprotect(0x1000, PageSize, unix.PROT_READ, 1, 0)
	m.MarkInitFinished()

	// After the signpost, with the region already pkey-protected, prot
	// lacking PROT_WRITE, and a genuinely different requested prot: none
	// of the permit exemptions apply, so this is denied.
	d, err := m.Mprotect(0x1000, PageSize, unix.PROT_READ|unix.PROT_EXEC)
	require.NoError(t, err)
	assert.Equal(t, Deny, d)
}

// Two adjacent regions in the traced range: one already pkey-protected
// with Prot lacking PROT_WRITE, one never pkey-protected. The whole
// call must be denied, not partially applied to the unprotected region.
func TestMprotectDeniedWhenAnyOverlapIsPkeyProtected(t *testing.T) {
	m := New()
	_, _ = m.Mmap(0x1000, PageSize, unix.PROT_READ, 1)
	_, _ = m.PkeyMprotect(0x1000, PageSize, unix.PROT_READ, 1, 0)
	_, _ = m.Mmap(0x1000+PageSize, PageSize, unix.PROT_READ, 2)
	m.MarkInitFinished()

	d, err := m.Mprotect(0x1000, 2*PageSize, unix.PROT_READ|unix.PROT_WRITE)
	require.NoError(t, err)
	assert.Equal(t, Deny, d)
	for _, r := range m.Regions() {
		assert.Equal(t, unix.PROT_READ, r.Prot, "no region may be mutated once the whole call is denied")
	}
}

// Two unprotected, overlapping regions whose current prot differs
// (non-uniform): the uniform-prot value collapses to ProtIndeterminate,
// so neither condition (c) nor (d) can fire; with no region
// pkey-protected, condition (a) still permits the call.
func TestMprotectNonUniformProtStillPermittedWhenUnprotected(t *testing.T) {
	m := New()
	_, _ = m.Mmap(0x1000, PageSize, unix.PROT_READ, 1)
	_, _ = m.Mmap(0x1000+PageSize, PageSize, unix.PROT_READ|unix.PROT_WRITE, 1)
	m.MarkInitFinished()

	d, err := m.Mprotect(0x1000, 2*PageSize, unix.PROT_EXEC)
	require.NoError(t, err)
	assert.Equal(t, Permit, d)
	for _, r := range m.Regions() {
		assert.Equal(t, unix.PROT_EXEC, r.Prot)
	}
}

// pkey_mprotect from a non-zero, non-owning pkey targeting a region
// owned by a different pkey is denied.
func TestScenario3PkeyMprotectPolicyViolation(t *testing.T) {
	m := New()
	_, _ = m.Mmap(0x2000, PageSize, unix.PROT_READ, 3)
	_, _ = m.PkeyMprotect(0x2000, PageSize, unix.PROT_READ, 3, 0)

	d, err := m.PkeyMprotect(0x2000, PageSize, unix.PROT_READ, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, Deny, d)
	r := m.Regions()[0]
	assert.Equal(t, 3, r.OwnerPkey, "memory map must be unchanged after a denied pkey_mprotect")
}

func TestPkeyMprotectFromUntrustedAlwaysPermitted(t *testing.T) {
	m := New()
	_, _ = m.Mmap(0x3000, PageSize, unix.PROT_READ, 0)
	d, err := m.PkeyMprotect(0x3000, PageSize, unix.PROT_READ, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, Permit, d)
	assert.Equal(t, 5, m.Regions()[0].OwnerPkey)
}

func TestExecveClearsMapAndResetsInitFinished(t *testing.T) {
	m := New()
	_, _ = m.Mmap(0x1000, PageSize, unix.PROT_READ, 1)
	m.MarkInitFinished()
	m.Execve()
	assert.Empty(t, m.Regions())
	assert.False(t, m.InitFinished())
}

// fork clones the map; subsequent syscalls in parent or child affect
// only their own maps.
func TestScenario4ForkClonesMapIndependently(t *testing.T) {
	parent := New()
	_, _ = parent.Mmap(0x1000, PageSize, unix.PROT_READ, 1)
	_, _ = parent.Mmap(0x2000, PageSize, unix.PROT_READ, 2)

	child := parent.Snapshot()
	_, _ = child.Munmap(0x1000, PageSize, 1)

	assert.Len(t, parent.Regions(), 2, "parent map must be unaffected by the child's munmap")
	assert.Len(t, child.Regions(), 1)
}

func TestSignpostDetection(t *testing.T) {
	assert.True(t, IsSignpost(SignpostAddr, unix.MAP_FIXED))
	assert.False(t, IsSignpost(0x1000, unix.MAP_FIXED))
	assert.False(t, IsSignpost(SignpostAddr, 0))
}
