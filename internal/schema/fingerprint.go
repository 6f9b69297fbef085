package schema

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a stable digest of a column list. Two scans of identical
// inputs produce the same fingerprint; any change in order, name, path or type
// changes it.
func Fingerprint(columns []ColumnDefinition) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only fails for oversized keys
		panic(err)
	}
	for _, c := range columns {
		h.Write([]byte(c.Path))
		h.Write([]byte{0})
		h.Write([]byte(c.Type))
		h.Write([]byte{0})
		h.Write([]byte(c.Name))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
