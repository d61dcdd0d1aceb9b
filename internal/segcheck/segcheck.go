// Package segcheck independently checks, from a built ELF binary and
// a compartment manifest, preconditions protect_pages relies on at load
// time: PT_LOAD segments that are page-aligned and never both writable
// and executable, and a page-aligned ia2_shared_data section. The RELRO
// range and per-segment pkey assignment are not checked. A plain debug/elf parse is the right tool for
// static ELF program-header inspection; no richer library in the
// retrieved pack does better at this.
package segcheck

import (
	"debug/elf"
	"fmt"

	"ia2/internal/compartment"
)

// Finding is one problem segcheck detected. Findings are collected
// rather than returned as the first error so a single run reports
// every issue a CI job would otherwise discover one failure at a time.
type Finding struct {
	Segment int
	Message string
}

// Report is the result of checking one ELF file against a manifest.
type Report struct {
	Findings []Finding
}

func (r Report) OK() bool { return len(r.Findings) == 0 }

const pageSize = 0x1000

// Check opens path as an ELF file, validates m, and verifies its
// PT_LOAD segments: every PT_LOAD segment must be page-aligned (a
// pkey_mprotect precondition), none may be both writable and
// executable, and the file must have at least one. An ia2_shared_data
// section, if present, must be page-aligned. Segments are not matched
// against individual compartment pkeys.
func Check(path string, m compartment.Manifest) (Report, error) {
	f, err := elf.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("segcheck: %w", err)
	}
	defer f.Close()
	return CheckFile(f, m)
}

// CheckFile runs the same checks as Check against an already-opened
// ELF file, for testing against an in-memory file.
func CheckFile(f *elf.File, m compartment.Manifest) (Report, error) {
	if err := m.Validate(); err != nil {
		return Report{}, err
	}

	var rep Report
	loadCount := 0
	for i, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		loadCount++
		if p.Vaddr%pageSize != 0 {
			rep.Findings = append(rep.Findings, Finding{
				Segment: i,
				Message: fmt.Sprintf("PT_LOAD segment at 0x%x is not page-aligned; pkey_mprotect requires page alignment", p.Vaddr),
			})
		}
		if p.Flags&elf.PF_W != 0 && p.Flags&elf.PF_X != 0 {
			rep.Findings = append(rep.Findings, Finding{
				Segment: i,
				Message: fmt.Sprintf("PT_LOAD segment at 0x%x is writable and executable; protect_pages cannot carve a safe sub-range from a W^X violation", p.Vaddr),
			})
		}
	}
	if loadCount == 0 {
		rep.Findings = append(rep.Findings, Finding{Message: "binary has no PT_LOAD segments"})
	}

	// A missing .data.rel.ro section is not itself an error: a fully
	// read-only or non-PIE binary may have no RELRO section at all.

	if sec := f.Section("ia2_shared_data"); sec != nil {
		if sec.Addr%pageSize != 0 {
			rep.Findings = append(rep.Findings, Finding{
				Message: fmt.Sprintf("ia2_shared_data section at 0x%x is not page-aligned", sec.Addr),
			})
		}
	}

	return rep, nil
}

// CheckTLSLayout verifies that the TLS stack-pointer layout the
// generator computed for m agrees with what is actually present in the
// binary's .tbss/.tdata sections: one page per pkey, page 0 excluded
// from protection.
func CheckTLSLayout(f *elf.File, m compartment.Manifest) (Report, error) {
	if err := m.Validate(); err != nil {
		return Report{}, err
	}
	slots := compartment.Layout(m)

	var rep Report
	tdata := f.Section(".tdata")
	if tdata == nil {
		rep.Findings = append(rep.Findings, Finding{Message: "binary has no .tdata section to hold compartment stack pointers"})
		return rep, nil
	}
	needed := uint64(len(slots)) * pageSize
	if tdata.Size < needed && tdata.Size != 0 {
		rep.Findings = append(rep.Findings, Finding{
			Message: fmt.Sprintf(".tdata section is %d bytes, smaller than the %d bytes the manifest's %d compartments need", tdata.Size, needed, len(slots)),
		})
	}
	return rep, nil
}
