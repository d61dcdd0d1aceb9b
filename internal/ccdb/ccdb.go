// Package ccdb reads a Clang compile_commands.json compilation
// database and extracts the per-translation-unit pkey each entry
// carries as a -DPKEY=N define. N = 0 marks the untrusted compartment
// and disables rewriting of that file.
//
// A bare encoding/json unmarshal is the right tool here: no pack
// example reaches for a richer compile-database library, and the
// format itself is a flat JSON array of {directory, command|arguments,
// file} objects with no nested structure a generic decoder handles
// poorly.
package ccdb

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Entry is one translation unit's compile command, with its pkey
// already extracted.
type Entry struct {
	Directory string
	File      string
	Pkey      int
	HasPkey   bool
}

type rawEntry struct {
	Directory string   `json:"directory"`
	Command   string   `json:"command"`
	Arguments []string `json:"arguments"`
	File      string   `json:"file"`
}

// Load reads and parses the compilation database at path.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ccdb: %w", err)
	}
	return Parse(data)
}

// Parse parses compile_commands.json content already read into memory.
func Parse(data []byte) ([]Entry, error) {
	var raw []rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ccdb: invalid compile_commands.json: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		args := r.Arguments
		if len(args) == 0 && r.Command != "" {
			args = strings.Fields(r.Command)
		}
		pkey, ok := findPkey(args)
		entries = append(entries, Entry{
			Directory: r.Directory,
			File:      r.File,
			Pkey:      pkey,
			HasPkey:   ok,
		})
	}
	return entries, nil
}

func findPkey(args []string) (int, bool) {
	const prefix = "-DPKEY="
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			n, err := strconv.Atoi(a[len(prefix):])
			if err != nil {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}

// ForFile returns the entry matching the given source path, comparing
// by exact match and by basename as a fallback for paths recorded
// relative to differing working directories.
func ForFile(entries []Entry, path string) (Entry, bool) {
	for _, e := range entries {
		if e.File == path {
			return e, true
		}
	}
	base := lastSlash(path)
	for _, e := range entries {
		if lastSlash(e.File) == base {
			return e, true
		}
	}
	return Entry{}, false
}

func lastSlash(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
