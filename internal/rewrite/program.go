package rewrite

import (
	"sort"

	"ia2/internal/cparse"
)

// FuncInfo is one function's cross-compartment bookkeeping, built by
// the FnDecl pass across every input file before any edits are made.
type FuncInfo struct {
	Name       string
	DeclaredIn map[int]bool
	DefinedIn  map[int]bool
	Variadic   bool
	SkipWrap   bool
	// Decl is one representative declaration of this function (whichever
	// is seen first), used to resolve its ABI signature for wrapper
	// emission. A declaration and a definition carry the same types, so
	// any one of them suffices.
	Decl *cparse.FuncDecl
}

// CrossCompartment reports whether some pkey declares this function
// without defining it, meaning calls to it from that pkey must cross a
// gate.
func (fi *FuncInfo) CrossCompartment() bool {
	if fi.Variadic || fi.SkipWrap {
		return false
	}
	for pkey := range fi.DeclaredIn {
		if !fi.DefinedIn[pkey] {
			return true
		}
	}
	return false
}

// Program accumulates FnDecl results across every file in a rewrite
// run, so that the edit-emitting passes (which run per file) can
// answer "is this call cross-compartment" without re-scanning every
// other file.
type Program struct {
	Funcs map[string]*FuncInfo
}

func NewProgram() *Program {
	return &Program{Funcs: make(map[string]*FuncInfo)}
}

// builtinPrefixes names compiler-builtin functions excluded from
// wrapping regardless of which compartment declares them.
var builtinPrefixes = []string{"__builtin_", "__atomic_", "__sync_"}

func isBuiltinName(name string) bool {
	for _, p := range builtinPrefixes {
		if len(name) >= len(p) && name[:len(p)] == p {
			return true
		}
	}
	return false
}

// CollectFile runs the FnDecl pass over one file's declarations,
// recording them against pkey in p.
func (p *Program) CollectFile(pkey int, f *cparse.File) {
	for idx := range f.FuncDecls {
		fd := &f.FuncDecls[idx]
		if isBuiltinName(fd.Name) {
			continue
		}
		fi, ok := p.Funcs[fd.Name]
		if !ok {
			fi = &FuncInfo{
				Name:       fd.Name,
				DeclaredIn: make(map[int]bool),
				DefinedIn:  make(map[int]bool),
				Decl:       fd,
			}
			p.Funcs[fd.Name] = fi
		}
		fi.DeclaredIn[pkey] = true
		if fd.IsDefinition {
			fi.DefinedIn[pkey] = true
			fi.Decl = fd
		}
		if fd.Variadic {
			fi.Variadic = true
		}
		if fd.SkipWrap {
			fi.SkipWrap = true
		}
	}
}

// WrapperTargets returns, in stable name order, every function that
// needs a Direct wrapper: declared in some pkey without a definition
// there.
func (p *Program) WrapperTargets() []*FuncInfo {
	var names []string
	for name, fi := range p.Funcs {
		if fi.CrossCompartment() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]*FuncInfo, len(names))
	for i, n := range names {
		out[i] = p.Funcs[n]
	}
	return out
}

// CallerPkeys returns, for a cross-compartment function, the sorted
// list of pkeys that declare it without defining it (the callers whose
// linker script needs a --wrap=<name> entry).
func (fi *FuncInfo) CallerPkeys() []int {
	var pkeys []int
	for pkey := range fi.DeclaredIn {
		if !fi.DefinedIn[pkey] {
			pkeys = append(pkeys, pkey)
		}
	}
	sort.Ints(pkeys)
	return pkeys
}
