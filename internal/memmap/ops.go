package memmap

import "golang.org/x/sys/unix"

// Decision is the tracer's permit/deny verdict for one syscall,
// consulted before PTRACE_SETREGS rewrites the syscall number or
// result.
type Decision int

const (
	Deny Decision = iota
	Permit
)

// Mmap handles a non-FIXED anonymous mmap: always permitted, adds a
// new region owned by the current pkey with pkey_protected = false.
func (m *Map) Mmap(start, length uint64, prot, currentPkey int) (Decision, error) {
	if err := pageAlign(start); err != nil {
		return Deny, err
	}
	if err := pageAlign(length); err != nil {
		return Deny, err
	}
	m.add(Region{Start: start, Len: length, OwnerPkey: currentPkey, Prot: prot, PkeyProtected: false})
	return Permit, nil
}

// MmapFixed handles mmap(MAP_FIXED, ...): permitted only if every
// overlapping region is owned by the current pkey. On permit,
// overlapping regions are split/replaced and the new region adopts the
// current pkey as owner.
func (m *Map) MmapFixed(start, length uint64, prot, currentPkey int) (Decision, error) {
	if err := pageAlign(start); err != nil {
		return Deny, err
	}
	if err := pageAlign(length); err != nil {
		return Deny, err
	}
	for _, r := range m.regions {
		if r.overlaps(start, length) && r.OwnerPkey != currentPkey {
			return Deny, nil
		}
	}
	overlapping := m.removeOverlapping(start, length)
	for _, r := range overlapping {
		m.splitAround(r, start, start+length)
	}
	m.add(Region{Start: start, Len: length, OwnerPkey: currentPkey, Prot: prot, PkeyProtected: false})
	return Permit, nil
}

// Munmap handles munmap: permitted only if every overlapping region is
// owned by the current pkey.
func (m *Map) Munmap(start, length uint64, currentPkey int) (Decision, error) {
	if err := pageAlign(start); err != nil {
		return Deny, err
	}
	for _, r := range m.regions {
		if r.overlaps(start, length) && r.OwnerPkey != currentPkey {
			return Deny, nil
		}
	}
	m.removeOverlapping(start, length)
	return Permit, nil
}

// Mremap handles mremap: permitted only if every overlapping region of
// the old range is owned by the current pkey. Unless
// MREMAP_DONTUNMAP is set, the old range is unmapped; the new range is
// added with the old range's prot and the current pkey as owner.
func (m *Map) Mremap(oldStart, oldLen, newStart, newLen uint64, flags, currentPkey int) (Decision, error) {
	var prot int
	found := false
	for _, r := range m.regions {
		if r.overlaps(oldStart, oldLen) {
			if r.OwnerPkey != currentPkey {
				return Deny, nil
			}
			prot = r.Prot
			found = true
		}
	}
	if !found {
		prot = ProtIndeterminate
	}
	if flags&unix.MREMAP_DONTUNMAP == 0 {
		m.removeOverlapping(oldStart, oldLen)
	}
	m.add(Region{Start: newStart, Len: newLen, OwnerPkey: currentPkey, Prot: prot, PkeyProtected: false})
	return Permit, nil
}

// Mprotect handles mprotect: permitted if any of (a) no overlapping
// region has ever been pkey-protected, (b) init is not finished yet,
// (c) the overlapping regions' current prot is uniform and already
// includes PROT_WRITE, or (d) the overlapping regions' current prot is
// uniform and equals the requested prot. Conditions (a)/(c)/(d) are
// each evaluated across the *whole* overlapping range, not
// region-by-region: a single region that fails to qualify denies the
// call entirely, matching PkeyMprotect's own all-or-nothing
// allUnprotected loop below. Mutation happens only once the verdict is
// known, applied uniformly to every overlapping region. Once init is
// finished, a range that overlaps no region at all is denied.
func (m *Map) Mprotect(start, length uint64, newProt int) (Decision, error) {
	if !m.initFinished {
		for i, r := range m.regions {
			if r.overlaps(start, length) {
				m.regions[i].Prot = newProt
			}
		}
		return Permit, nil
	}

	allUnprotected := true
	sawOverlap := false
	uniform := true
	haveProt := false
	var prot int
	for _, r := range m.regions {
		if !r.overlaps(start, length) {
			continue
		}
		sawOverlap = true
		if r.PkeyProtected {
			allUnprotected = false
		}
		if !haveProt {
			prot, haveProt = r.Prot, true
		} else if r.Prot != prot {
			uniform = false
		}
	}
	if !uniform {
		prot = ProtIndeterminate
	}

	permit := sawOverlap && (allUnprotected || (prot != ProtIndeterminate && (prot&unix.PROT_WRITE != 0 || prot == newProt)))
	if !permit {
		return Deny, nil
	}
	for i, r := range m.regions {
		if r.overlaps(start, length) {
			m.regions[i].Prot = newProt
		}
	}
	return Permit, nil
}

// PkeyMprotect handles pkey_mprotect: permitted if any of (a) no
// overlapping region has ever been pkey-protected AND newPkey equals
// currentPkey, or (b) currentPkey is 0 (the untrusted compartment may
// always reassign). On permit, regions overlapping the range are
// marked pkey_protected and their owner/prot updated.
func (m *Map) PkeyMprotect(start, length uint64, newProt, newPkey, currentPkey int) (Decision, error) {
	permit := currentPkey == 0
	if !permit {
		allUnprotected := true
		for _, r := range m.regions {
			if r.overlaps(start, length) && r.PkeyProtected {
				allUnprotected = false
				break
			}
		}
		permit = allUnprotected && newPkey == currentPkey
	}
	if !permit {
		return Deny, nil
	}
	for i, r := range m.regions {
		if !r.overlaps(start, length) {
			continue
		}
		m.regions[i] = Region{Start: r.Start, Len: r.Len, OwnerPkey: newPkey, Prot: newProt, PkeyProtected: true}
	}
	return Permit, nil
}

// Madvise handles madvise: same owner rule as Munmap, with no change to
// the map on permit.
func (m *Map) Madvise(start, length uint64, currentPkey int) (Decision, error) {
	for _, r := range m.regions {
		if r.overlaps(start, length) && r.OwnerPkey != currentPkey {
			return Deny, nil
		}
	}
	return Permit, nil
}

// Clone is always permitted. A same-address-space thread clone leaves
// the map unchanged; a fork clone is handled by the caller invoking
// Snapshot/Restore on a fresh Map.
func (m *Map) Clone() Decision { return Permit }

// Snapshot returns a deep copy of m, for PTRACE_EVENT_FORK: the tracer
// deep-copies the map and associates it with the new pid.
func (m *Map) Snapshot() *Map {
	return &Map{regions: m.Regions(), initFinished: m.initFinished}
}

// Execve is always permitted and clears the map, resetting
// init_finished to false.
func (m *Map) Execve() Decision {
	m.regions = nil
	m.initFinished = false
	return Permit
}
