package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// VerifyChain checks the integrity of an entry sequence: sequence numbers
// must be contiguous from 1, every PrevHash must match its predecessor's
// hash (the first entry chains to the genesis hash) and every stored hash
// must match the recomputed one. The returned error names the first bad entry.
func VerifyChain(entries []Entry) error {
	prev := GenesisHash
	var prevTime time.Time
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.Seq != uint64(i)+1 {
			return fmt.Errorf("entry %d: sequence gap, got seq %d", i+1, e.Seq)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("entry %d: chain broken, prev hash does not match", e.Seq)
		}
		if got := ChainHash(e); got != e.Hash {
			return fmt.Errorf("entry %d: hash mismatch, entry was altered", e.Seq)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("entry %d: duplicate id %s", e.Seq, e.ID)
		}
		seen[e.ID] = struct{}{}
		if e.Timestamp.Before(prevTime) {
			return fmt.Errorf("entry %d: timestamp precedes its predecessor", e.Seq)
		}
		prevTime = e.Timestamp
		prev = e.Hash
	}
	return nil
}

// Verify loads the full chain from storage and checks it.
func (s *Store) Verify() (int, error) {
	entries, err := s.Entries()
	if err != nil {
		return 0, err
	}
	return len(entries), VerifyChain(entries)
}

// Export is a signed snapshot of the audit chain, fit for handing to an
// external reviewer. Signature is an HMAC-SHA256 over the encoded entries.
type Export struct {
	Entries   []Entry `json:"entries"`
	Signature string  `json:"signature"`
}

// ExportSigned returns the full chain signed with the audit HMAC key.
func (s *Store) ExportSigned(key []byte) (*Export, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}
	if err := VerifyChain(entries); err != nil {
		return nil, fmt.Errorf("refusing to export a broken chain: %w", err)
	}
	sig, err := signEntries(key, entries)
	if err != nil {
		return nil, err
	}
	return &Export{Entries: entries, Signature: sig}, nil
}

// VerifySignature checks an export's HMAC signature against the audit key.
func VerifySignature(key []byte, export *Export) error {
	sig, err := signEntries(key, export.Entries)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(sig), []byte(export.Signature)) {
		return fmt.Errorf("export signature mismatch")
	}
	return nil
}

// VerifyExport checks an export's signature and chain.
func VerifyExport(key []byte, export *Export) error {
	if err := VerifySignature(key, export); err != nil {
		return err
	}
	return VerifyChain(export.Entries)
}

func signEntries(key []byte, entries []Entry) (string, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encoding entries for signing: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
