// Package contentid computes a stable content hash of a rewritten
// translation unit, used to detect that a file has already been
// rewritten so a second pass over it is a no-op: the same
// embed-a-hash-in-the-artifact idea cmd/buildid uses to give build
// artifacts a content-addressed identity.
package contentid

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ID is a blake2b-256 digest, printed as lowercase hex.
type ID [blake2b.Size256]byte

func (id ID) String() string { return hex.EncodeToString(id[:]) }

// Of hashes the given rewritten source text.
func Of(rewritten []byte) ID {
	return blake2b.Sum256(rewritten)
}

// markerPrefix begins the comment line embedded in a rewritten file's
// header, carrying the content id of the rewritten text that follows it
// so a second run can recognize its own output and skip re-rewriting.
const markerPrefix = "// ia2:contentid "

// Marker formats the embeddable marker comment for id.
func Marker(id ID) string {
	return markerPrefix + id.String() + "\n"
}

// Find extracts a previously embedded marker's ID from source text, if
// present.
func Find(source []byte) (ID, bool) {
	var id ID
	s := string(source)
	idx := strings.Index(s, markerPrefix)
	if idx < 0 {
		return id, false
	}
	hexStr := s[idx+len(markerPrefix):]
	if nl := strings.IndexByte(hexStr, '\n'); nl >= 0 {
		hexStr = hexStr[:nl]
	}
	raw, err := hex.DecodeString(hexStr)
	if err != nil || len(raw) != len(id) {
		return id, false
	}
	copy(id[:], raw)
	return id, true
}
