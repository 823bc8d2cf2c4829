// Package content persists submitted payloads at addresses derived from their hash.
package content

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// HashLength is the number of hex characters kept from the digest.
const HashLength = 16

// Extension is appended to every stored file name.
const Extension = ".png"

// Hash returns the content address of data: the first HashLength hex characters
// of its BLAKE2b-256 digest.
func Hash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])[:HashLength]
}

// FileName returns the deterministic file name for hash.
func FileName(hash string) string {
	return hash + Extension
}

// ParseFileName extracts the hash from a stored file name.
//
// Postcondition: Returns (hash, true) only for names of the form <16 lowercase hex>.png.
func ParseFileName(name string) (string, bool) {
	hash, ok := strings.CutSuffix(name, Extension)
	if !ok || !ValidHash(hash) {
		return "", false
	}
	return hash, true
}

// ValidHash reports whether hash has the shape produced by Hash.
func ValidHash(hash string) bool {
	if len(hash) != HashLength {
		return false
	}
	for _, r := range hash {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
