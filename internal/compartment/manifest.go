// Package compartment models the load-time compartment layout: the
// pkey/library manifest a program's constructors are built against, the
// TLS stack-slot arithmetic, the C .inc template text the generator
// emits for those constructors, and the exit-policy choice governing
// how destructors run with widened PKRU.
package compartment

import (
	"fmt"
	"sort"
)

// Compartment is one pkey's membership: the shared objects whose code
// runs under this pkey, named by basename prefix exactly as
// extra_libraries is matched against a loaded object's path.
type Compartment struct {
	Pkey           int
	ExtraLibraries []string
}

// Manifest is the full set of compartments a binary is built with.
// Pkey 0 is always present implicitly and never needs to be listed: it
// is the untrusted default for any code not claimed by another pkey.
type Manifest struct {
	Compartments []Compartment
}

// Validate checks the manifest's internal consistency: no duplicate
// pkeys, no pkey 0 entry (it is implicit), and no empty ExtraLibraries
// list (a compartment that protects nothing is likely a mistake).
func (m Manifest) Validate() error {
	seen := map[int]bool{}
	for _, c := range m.Compartments {
		if c.Pkey == 0 {
			return fmt.Errorf("compartment: pkey 0 is implicit and must not be listed explicitly")
		}
		if c.Pkey < 0 || c.Pkey > 15 {
			return fmt.Errorf("compartment: pkey %d out of range [0,15]", c.Pkey)
		}
		if seen[c.Pkey] {
			return fmt.Errorf("compartment: duplicate pkey %d", c.Pkey)
		}
		seen[c.Pkey] = true
		if len(c.ExtraLibraries) == 0 {
			return fmt.Errorf("compartment: pkey %d has no extra_libraries entries", c.Pkey)
		}
	}
	return nil
}

// Pkeys returns every pkey in the manifest, including the implicit 0,
// in ascending order.
func (m Manifest) Pkeys() []int {
	pkeys := []int{0}
	for _, c := range m.Compartments {
		pkeys = append(pkeys, c.Pkey)
	}
	sort.Ints(pkeys)
	return pkeys
}

// ExtraLibrariesFor joins one compartment's ExtraLibraries into the
// semicolon-separated string protect_pages's PhdrSearchArgs expects.
func ExtraLibrariesFor(c Compartment) string {
	s := ""
	for i, lib := range c.ExtraLibraries {
		if i > 0 {
			s += ";"
		}
		s += lib
	}
	return s
}
