// Package memmap implements the compartment-aware memory map: an
// unordered collection of page-aligned, disjoint regions each owned by
// a pkey, consulted by both the in-process debug assertions and the
// out-of-process tracer to decide whether a memory-management syscall
// may proceed.
//
// Typical programs carry a few hundred regions and range queries are
// not hot, so Map is backed by a plain slice rather than an interval
// tree; lookups are O(N).
package memmap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const PageSize = 4096

// ProtIndeterminate marks a region whose protection bits are unknown,
// distinct from any valid prot mask (unix.PROT_* values fit in the low
// bits, so a negative sentinel can never collide).
const ProtIndeterminate = -1

// Region is one mapped, page-aligned range with a single owner and
// protection.
type Region struct {
	Start, Len    uint64
	OwnerPkey     int
	Prot          int
	PkeyProtected bool
}

func (r Region) End() uint64 { return r.Start + r.Len }

// overlaps reports whether r and s share any byte. The comparison is
// inclusive at one end only, so two adjacent ranges (one's end equals
// the other's start) are NOT considered overlapping.
func (r Region) overlaps(start, length uint64) bool {
	end := start + length
	return r.Start < end && start < r.End()
}

// Map is the collection of regions for one process (or, inside the
// tracer, one traced pid/thread group), plus the init-finished
// signpost flag.
type Map struct {
	regions      []Region
	initFinished bool
}

// New returns an empty map.
func New() *Map { return &Map{} }

// InitFinished reports whether the signpost mmap has been observed.
func (m *Map) InitFinished() bool { return m.initFinished }

// Regions returns a snapshot of the map's current regions, for
// testing and for Clone.
func (m *Map) Regions() []Region {
	out := make([]Region, len(m.regions))
	copy(out, m.regions)
	return out
}

// SignpostAddr is the distinguished address reserved for the
// init-finished signpost: an mmap(FIXED) at this address always fails
// with EINVAL but is uniquely identifiable by the tracer.
const SignpostAddr = 0x1a21face1a21face

// IsSignpost reports whether an mmap(FIXED, addr, ...) call is the
// init-finished signpost.
func IsSignpost(addr uint64, flags int) bool {
	return addr == SignpostAddr && flags&unix.MAP_FIXED != 0
}

// MarkInitFinished flips init_finished to true. It is idempotent: the
// signpost fires once only, and calling this again after the flag is
// already set is a harmless no-op.
func (m *Map) MarkInitFinished() { m.initFinished = true }

func pageAlign(v uint64) error {
	if v%PageSize != 0 {
		return fmt.Errorf("memmap: %d is not page-aligned", v)
	}
	return nil
}

// removeOverlapping deletes every region overlapping [start, start+len)
// and returns the removed regions, for callers (Munmap, Mremap,
// MmapFixed) that need to inspect what was displaced.
func (m *Map) removeOverlapping(start, length uint64) []Region {
	var removed, kept []Region
	for _, r := range m.regions {
		if r.overlaps(start, length) {
			removed = append(removed, r)
		} else {
			kept = append(kept, r)
		}
	}
	m.regions = kept
	return removed
}

// splitAround removes the portion of r that falls inside [start, end)
// and re-adds whatever remains on either side, preserving r's owner and
// prot. Used when an MmapFixed from the same owner only partially
// overlaps an existing region: the overlap is split into up to three
// pieces of which at most one adopts the new prot.
func (m *Map) splitAround(r Region, start, end uint64) {
	if r.Start < start {
		m.regions = append(m.regions, Region{Start: r.Start, Len: start - r.Start, OwnerPkey: r.OwnerPkey, Prot: r.Prot, PkeyProtected: r.PkeyProtected})
	}
	if r.End() > end {
		m.regions = append(m.regions, Region{Start: end, Len: r.End() - end, OwnerPkey: r.OwnerPkey, Prot: r.Prot, PkeyProtected: r.PkeyProtected})
	}
}

func (m *Map) add(r Region) {
	m.regions = append(m.regions, r)
}
