// Command ia2segcheck independently verifies a built ELF binary against
// a compartment manifest, catching a misconfigured compartment before
// the program is ever run under the tracer.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"ia2/internal/compartment"
	"ia2/internal/diag"
	"ia2/internal/segcheck"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: ia2segcheck -manifest=<manifest.json> <binary>\n")
	flag.PrintDefaults()
	os.Exit(2)
}

var manifestPath = flag.String("manifest", "", "path to the compartment manifest JSON file")

func main() {
	log.SetPrefix("ia2segcheck: ")
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()

	if *manifestPath == "" || flag.NArg() != 1 {
		usage()
	}

	m, err := compartment.LoadManifest(*manifestPath)
	if err != nil {
		diag.Fatalf("%v", err)
	}

	binary := flag.Arg(0)
	rep, err := segcheck.Check(binary, m)
	if err != nil {
		diag.Fatalf("%v", err)
	}
	for _, f := range rep.Findings {
		if f.Segment != 0 {
			diag.Errorf("%s: segment %d: %s", binary, f.Segment, f.Message)
		} else {
			diag.Errorf("%s: %s", binary, f.Message)
		}
	}
	if !rep.OK() {
		diag.Exit()
	}
	fmt.Printf("%s: ok\n", binary)
}
