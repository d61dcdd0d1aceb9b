// Command ia2rewrite runs the compartment source-rewrite passes over a
// set of C translation units, reading each file's pkey from a Clang
// compile_commands.json compilation database and emitting the
// generated wrapper source, header, and per-pkey linker scripts
// alongside the rewritten sources.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"ia2/internal/abi"
	"ia2/internal/ccdb"
	"ia2/internal/diag"
	"ia2/internal/rewrite"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: ia2rewrite [flags] <source.c> [source.c ...]\n")
	flag.PrintDefaults()
	os.Exit(2)
}

var (
	compileCommands = flag.String("compile-commands", "compile_commands.json", "path to the compilation database carrying each file's -DPKEY")
	rootDirectory   = flag.String("root-directory", ".", "root directory the output tree's source paths are resolved against")
	outputDirectory = flag.String("output-directory", ".", "directory the generated wrapper source/header/linker scripts are written to")
	outputPrefix    = flag.String("output-prefix", "ia2_gen", "base name for the generated wrapper source, header, and linker scripts")
	archFlag        = flag.String("arch", "x86_64", "target architecture: x86_64 or aarch64")
)

func main() {
	log.SetPrefix("ia2rewrite: ")
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
	}

	arch, err := parseArch(*archFlag)
	if err != nil {
		diag.Fatalf("%v", err)
	}

	entries, err := ccdb.Load(*compileCommands)
	if err != nil {
		diag.Fatalf("%v", err)
	}

	var inputs []rewrite.InputFile
	for _, path := range flag.Args() {
		entry, ok := ccdb.ForFile(entries, path)
		if !ok || !entry.HasPkey {
			diag.Fatalf("%s: no -DPKEY=N entry in %s; add one to the compile command before rewriting", path, *compileCommands)
		}
		src, err := os.ReadFile(resolvePath(path))
		if err != nil {
			diag.Fatalf("%s: %v", path, err)
		}
		inputs = append(inputs, rewrite.InputFile{Path: path, Pkey: entry.Pkey, Src: src})
	}

	result, err := rewrite.Run(inputs, arch, *outputPrefix)
	if err != nil {
		diag.Fatalf("%v", err)
	}

	for _, w := range result.Warnings {
		diag.Warnf("%s", w.String())
	}

	for _, in := range inputs {
		if in.Pkey == 0 {
			continue
		}
		rewritten := result.Rewritten[in.Path]
		if err := os.WriteFile(resolvePath(in.Path), rewritten, 0o644); err != nil {
			diag.Errorf("%s: %v", in.Path, err)
		}
	}

	writeGenerated(*outputPrefix+".c", result.Outputs.Source)
	writeGenerated(*outputPrefix+".h", result.Outputs.Header)
	for pkey, text := range result.Outputs.LinkerScripts {
		writeGenerated(fmt.Sprintf("%s_%d.ld", *outputPrefix, pkey), text)
	}

	diag.ExitIfErrors()
}

func writeGenerated(name, content string) {
	path := filepath.Join(*outputDirectory, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		diag.Errorf("%s: %v", path, err)
	}
}

func resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(*rootDirectory, path)
}

func parseArch(name string) (abi.Arch, error) {
	switch name {
	case "x86", "x86_64", "x86-64", "amd64":
		return abi.ArchX86, nil
	case "aarch64", "arm64":
		return abi.ArchAArch64, nil
	default:
		return 0, fmt.Errorf("unrecognized architecture %q", name)
	}
}
