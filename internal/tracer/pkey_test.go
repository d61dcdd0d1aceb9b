package tracer

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestPkeyFromPKRU(t *testing.T) {
	cases := []struct {
		name string
		pkru uint32
		want int
	}{
		{"glibc initial value, keys 0 and 1 open", 0x55555550, 0},
		{"glibc initial value, only key 0 open", 0x55555554, 0},
		{"fully permissive", 0, 0},
		{"key 1 and key 0 enabled", ^(uint32(3)<<2 | 3), 1},
		{"key 7 and key 0 enabled", ^(uint32(3)<<14 | 3), 7},
		{"key 15 and key 0 enabled", ^(uint32(3)<<30 | 3), 15},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := pkeyFromPKRU(c.pkru)
			if err != nil {
				t.Fatalf("pkeyFromPKRU(%#08x): unexpected error: %v", c.pkru, err)
			}
			if got != c.want {
				t.Errorf("pkeyFromPKRU(%#08x) = %d, want %d", c.pkru, got, c.want)
			}
		})
	}
}

func TestPkeyFromPKRURejectsMultiKeyPatterns(t *testing.T) {
	// Two keys (1 and 2) both enabled alongside key 0: not a pattern
	// any ia2 compartment ever installs, so it must be rejected rather
	// than silently misattributed.
	pkru := uint32(0x55555550) &^ (uint32(3) << 2) &^ (uint32(3) << 4)
	if _, err := pkeyFromPKRU(pkru); err == nil {
		t.Errorf("pkeyFromPKRU(%#08x): expected error for multi-key pattern, got nil", pkru)
	}
}

func TestTracedSyscallNum(t *testing.T) {
	if !tracedSyscallNum(unix.SYS_MMAP) {
		t.Errorf("mmap should be traced")
	}
	if tracedSyscallNum(unix.SYS_WRITE) {
		t.Errorf("write should not be traced")
	}
}
