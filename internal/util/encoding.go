package util

import (
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes a string to Unicode NFC. Display names arriving
// from identity-token claims are normalized before they are stored or logged.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
