package tracer

import (
	"fmt"
	"os"

	"github.com/google/pprof/profile"

	"ia2/internal/memmap"
)

// profiler accumulates one pprof sample per trapped syscall, tagged
// with the syscall name, the caller's pkey, and the permit/deny
// verdict, and writes the accumulated profile out on close.
//
// pprof's Location/Function machinery is built for call stacks; a
// trapped syscall has none, so each distinct syscall name gets one
// synthetic location standing in for "where this sample happened",
// and the pkey/verdict travel as sample labels instead of being
// encoded into the stack.
type profiler struct {
	path string
	prof *profile.Profile
	locs map[string]*profile.Location
}

func newProfiler(path string) (*profiler, error) {
	p := &profiler{
		path: path,
		locs: make(map[string]*profile.Location),
		prof: &profile.Profile{
			SampleType: []*profile.ValueType{{Type: "syscalls", Unit: "count"}},
			PeriodType: &profile.ValueType{Type: "syscall", Unit: "count"},
			Period:     1,
		},
	}
	return p, nil
}

func (p *profiler) locationFor(name string) *profile.Location {
	if loc, ok := p.locs[name]; ok {
		return loc
	}
	id := uint64(len(p.locs)) + 1
	fn := &profile.Function{ID: id, Name: name, SystemName: name}
	loc := &profile.Location{ID: id, Line: []profile.Line{{Function: fn}}}
	p.prof.Function = append(p.prof.Function, fn)
	p.prof.Location = append(p.prof.Location, loc)
	p.locs[name] = loc
	return loc
}

func (p *profiler) sample(nr int64, pkey int, decision memmap.Decision) {
	name := syscallName(nr)
	verdict := "permit"
	if decision == memmap.Deny {
		verdict = "deny"
	}
	p.prof.Sample = append(p.prof.Sample, &profile.Sample{
		Location: []*profile.Location{p.locationFor(name)},
		Value:    []int64{1},
		Label: map[string][]string{
			"syscall": {name},
			"pkey":    {fmt.Sprintf("%d", pkey)},
			"verdict": {verdict},
		},
	})
}

func (p *profiler) close() error {
	f, err := os.Create(p.path)
	if err != nil {
		return fmt.Errorf("tracer: create profile %s: %w", p.path, err)
	}
	defer f.Close()
	if err := p.prof.CheckValid(); err != nil {
		return fmt.Errorf("tracer: invalid profile: %w", err)
	}
	return p.prof.Write(f)
}
