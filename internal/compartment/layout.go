package compartment

import "strconv"

const pageSize = 4096

// StackSize is the per-compartment, per-thread stack size INIT_RUNTIME
// allocates: 4 MiB.
const StackSize = 4 * 1024 * 1024

// TLSSlot describes one compartment's stack-pointer TLS slot:
// ia2_stackptr_<pkey>, laid out one page apart so pkey_mprotect can
// isolate each slot independently. Pkey 0's slot lives on its own page
// too, but that page is never protected: it must stay readable from
// every compartment so a cross-compartment wrapper can always find the
// untrusted stack pointer to restore on return.
type TLSSlot struct {
	Pkey      int
	PageIndex int
}

// Layout computes the TLS slot placement for every pkey in the
// manifest, sorted by pkey ascending, one page per slot.
func Layout(m Manifest) []TLSSlot {
	pkeys := m.Pkeys()
	slots := make([]TLSSlot, len(pkeys))
	for i, pkey := range pkeys {
		slots[i] = TLSSlot{Pkey: pkey, PageIndex: i}
	}
	return slots
}

// Offset returns the byte offset of slot's page within the TLS stack-
// pointer array.
func (s TLSSlot) Offset() int { return s.PageIndex * pageSize }

// ExcludedFromProtection reports whether this slot's page must be
// excluded from protect_tls_pages: true only for pkey 0's slot, which
// every compartment needs to read in order to switch back to the
// untrusted stack on return.
func (s TLSSlot) ExcludedFromProtection() bool { return s.Pkey == 0 }

// SymbolName is the linker symbol this slot's stack pointer is stored
// under.
func (s TLSSlot) SymbolName() string {
	return stackptrSymbolName(s.Pkey)
}

func stackptrSymbolName(pkey int) string {
	return "ia2_stackptr_" + strconv.Itoa(pkey)
}
