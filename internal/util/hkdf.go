package util

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const HKDFKeyLength = 32

// HKDF derives a 32-byte subkey from the master key. The info string
// separates key domains (session encryption vs. audit signing).
func HKDF(master []byte, salt []byte, info []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, master, salt, info)
	k := make([]byte, HKDFKeyLength)
	if _, err := io.ReadFull(h, k); err != nil {
		return nil, fmt.Errorf("reading from HKDF: %w", err)
	}
	return k, nil
}
