package rewrite

import (
	"fmt"
	"sort"

	"ia2/internal/abi"
	"ia2/internal/cparse"
	"ia2/internal/contentid"
)

// InputFile is one translation unit fed to a rewrite run: its path (as
// it should appear in diagnostics), the pkey compiled_commands.json
// assigns it, and its source bytes.
type InputFile struct {
	Path string
	Pkey int
	Src  []byte
}

// Result is one rewrite run's full output: the rewritten bytes for
// every pkey != 0 input (pkey 0 files pass through unchanged, per the
// round-trip invariant), the generated wrapper source/header/linker
// scripts, and every diagnostic produced along the way.
type Result struct {
	Rewritten map[string][]byte
	Outputs   Outputs
	Warnings  []Warning
}

// Run performs a full rewrite: FnDecl's cross-file collection pass
// over every input (pkey 0 included, since a pkey-0 definition can
// still be the target of a cross-compartment call), then the five
// edit-emitting passes over every pkey != 0 file, then output
// generation.
func Run(files []InputFile, arch abi.Arch, prefix string) (Result, error) {
	parsed := make(map[string]*cparse.File, len(files))
	for _, f := range files {
		parsed[f.Path] = cparse.Parse(f.Src)
	}

	prog := NewProgram()
	byPath := make(map[string]InputFile, len(files))
	for _, f := range files {
		byPath[f.Path] = f
		prog.CollectFile(f.Pkey, parsed[f.Path])
	}

	types := NewTypeSet()
	result := Result{Rewritten: make(map[string][]byte, len(files))}

	// Stable order for reproducible diagnostics across runs.
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		f := byPath[path]
		if f.Pkey == 0 {
			result.Rewritten[path] = f.Src
			continue
		}
		if id, ok := contentid.Find(f.Src); ok && id == contentid.Of(stripMarker(f.Src)) {
			// Already rewritten by a previous run with identical input;
			// idempotent no-op.
			result.Rewritten[path] = f.Src
			continue
		}

		file := parsed[path]
		var edits []Edit

		e, w := FnPtrTypes(path, file, types)
		edits = append(edits, e...)
		result.Warnings = append(result.Warnings, w...)

		syms := CollectSymbols(file)

		e, w = FnPtrCall(path, file, syms)
		edits = append(edits, e...)
		result.Warnings = append(result.Warnings, w...)

		e, w = FnPtrExpr(path, file, prog)
		edits = append(edits, e...)
		result.Warnings = append(result.Warnings, w...)

		e, w = FnPtrNull(path, file, syms)
		edits = append(edits, e...)
		result.Warnings = append(result.Warnings, w...)

		e, w = FnPtrEq(path, file, syms, prog)
		edits = append(edits, e...)
		result.Warnings = append(result.Warnings, w...)

		rewritten, err := Apply(f.Src, edits)
		if err != nil {
			return Result{}, fmt.Errorf("rewrite %s: %w", path, err)
		}
		id := contentid.Of(rewritten)
		rewritten = append([]byte(contentid.Marker(id)), rewritten...)
		result.Rewritten[path] = rewritten
	}

	outputs, warn := GenerateOutputs(prog, types, arch, prefix)
	result.Warnings = append(result.Warnings, warn...)
	result.Outputs = outputs
	return result, nil
}

// stripMarker removes a previously embedded content-id marker line, if
// present, so Of can be recomputed over the same bytes it was
// originally taken over.
func stripMarker(src []byte) []byte {
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			return src[i+1:]
		}
	}
	return src
}
