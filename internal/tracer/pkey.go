package tracer

import "fmt"

// numPkeys is the number of protection keys the hardware provides
// (Intel MPK: 16 on x86-64; the Arm MTE mapping uses far fewer tag
// values in practice but the permit table is keyed the same way).
const numPkeys = 16

// pkeyFromPKRU maps a raw PKRU register value back to the single
// compartment pkey it selects. PKRU encodes, per key i, two
// access-denied bits at (2*i, 2*i+1); the tracer expects key i and key
// 0 to be unrestricted (both their bits clear) and both bits of every
// other key set, matching the pattern ~((3<<2i)|3). Three further
// values are also recognized as meaning pkey 0: 0x55555550 and
// 0x55555554 (initial values glibc installs) and 0 (the
// fully-permissive reset value).
func pkeyFromPKRU(pkru uint32) (int, error) {
	switch pkru {
	case 0x55555550, 0x55555554, 0:
		return 0, nil
	}
	for i := 0; i < numPkeys; i++ {
		mask := uint32(3)<<(2*uint(i)) | 3
		if pkru == ^mask {
			return i, nil
		}
	}
	return 0, fmt.Errorf("pkru value %#08x does not match any single-key-enabled pattern", pkru)
}
