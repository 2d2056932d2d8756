// this file provides the content hashing used by the gateway sync jobs.
//
// Rule and value-set payloads are JSON documents; before hashing they are
// canonicalized per RFC 8785 so that semantically equal payloads always map
// to the same hash regardless of key order or whitespace.

package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/gowebpki/jcs"
)

// CanonicalizeJSON converts JSON to canonical form per RFC 8785.
// This ensures consistent hashing of JSON documents.
//
// If the input is not valid JSON, an error is returned (handled by jcs library).
func CanonicalizeJSON(jsonData []byte) ([]byte, error) {
	return jcs.Transform(jsonData)
}

// HashJSON calculates the SHA-256 hash of the canonical form of a JSON
// document and returns it as a hex string.
func HashJSON(jsonData []byte) (string, error) {
	canonical, err := CanonicalizeJSON(jsonData)
	if err != nil {
		return "", WrapInternalError(err, "failed to canonicalize JSON")
	}
	return HashHex(canonical), nil
}

// HashHex calculates the SHA-256 hash of data and returns it as a hex string.
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyHash verifies that data matches the expected SHA-256 hex hash.
func VerifyHash(data []byte, expected string) bool {
	return HashHex(data) == expected
}
