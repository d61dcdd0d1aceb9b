package segcheck

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ia2/internal/compartment"
)

// buildMinimalELF assembles a minimal little-endian ELF64 executable
// with the given program headers, for feeding to elf.NewFile without
// needing a real compiled binary on disk.
func buildMinimalELF(t *testing.T, progs []elf.Prog64) []byte {
	t.Helper()
	const ehsize = 64
	const phentsize = 56

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     0x400000,
		Phoff:     ehsize,
		Phentsize: phentsize,
		Phnum:     uint16(len(progs)),
		Ehsize:    ehsize,
	}
	hdr.Ident[0], hdr.Ident[1], hdr.Ident[2], hdr.Ident[3] = 0x7f, 'E', 'L', 'F'
	hdr.Ident[4] = byte(elf.ELFCLASS64)
	hdr.Ident[5] = byte(elf.ELFDATA2LSB)
	hdr.Ident[6] = byte(elf.EV_CURRENT)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr))
	for _, p := range progs {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, p))
	}
	return buf.Bytes()
}

func parseBytes(t *testing.T, data []byte) *elf.File {
	t.Helper()
	f, err := elf.NewFile(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func simpleManifest() compartment.Manifest {
	return compartment.Manifest{Compartments: []compartment.Compartment{
		{Pkey: 1, ExtraLibraries: []string{"libsimple1"}},
	}}
}

func TestCheckFilePassesAlignedNonRWXSegments(t *testing.T) {
	data := buildMinimalELF(t, []elf.Prog64{
		{Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R | elf.PF_X), Vaddr: 0x1000, Memsz: 0x1000, Align: pageSize},
		{Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R | elf.PF_W), Vaddr: 0x2000, Memsz: 0x1000, Align: pageSize},
	})
	f := parseBytes(t, data)
	rep, err := CheckFile(f, simpleManifest())
	require.NoError(t, err)
	assert.True(t, rep.OK(), "%+v", rep.Findings)
}

func TestCheckFileFlagsMisalignedSegment(t *testing.T) {
	data := buildMinimalELF(t, []elf.Prog64{
		{Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R | elf.PF_W), Vaddr: 0x1234, Memsz: 0x1000, Align: pageSize},
	})
	f := parseBytes(t, data)
	rep, err := CheckFile(f, simpleManifest())
	require.NoError(t, err)
	assert.False(t, rep.OK())
	assert.Contains(t, rep.Findings[0].Message, "not page-aligned")
}

func TestCheckFileFlagsRWXSegment(t *testing.T) {
	data := buildMinimalELF(t, []elf.Prog64{
		{Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R | elf.PF_W | elf.PF_X), Vaddr: 0x1000, Memsz: 0x1000, Align: pageSize},
	})
	f := parseBytes(t, data)
	rep, err := CheckFile(f, simpleManifest())
	require.NoError(t, err)
	require.False(t, rep.OK())
	assert.Contains(t, rep.Findings[0].Message, "writable and executable")
}

func TestCheckFileFlagsNoLoadSegments(t *testing.T) {
	data := buildMinimalELF(t, nil)
	f := parseBytes(t, data)
	rep, err := CheckFile(f, simpleManifest())
	require.NoError(t, err)
	require.False(t, rep.OK())
	assert.Contains(t, rep.Findings[0].Message, "no PT_LOAD segments")
}

func TestCheckFileRejectsInvalidManifest(t *testing.T) {
	data := buildMinimalELF(t, []elf.Prog64{
		{Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R), Vaddr: 0x1000, Memsz: 0x1000, Align: pageSize},
	})
	f := parseBytes(t, data)
	bad := compartment.Manifest{Compartments: []compartment.Compartment{{Pkey: 0, ExtraLibraries: []string{"x"}}}}
	_, err := CheckFile(f, bad)
	assert.Error(t, err)
}
