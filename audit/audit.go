// Package audit records every person access in a tamper-evident,
// hash-chained log.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// GenesisHash anchors the chain before any entry exists.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Kind classifies the identifier a lookup used.
type Kind string

const (
	KindNationalID Kind = "national-id"
	KindInternalID Kind = "internal-id"
)

// Access describes one person lookup to be recorded.
type Access struct {
	Actor         string
	ActorName     string
	TargetID      string
	TargetKind    Kind
	CorrelationID string
}

// Entry is one committed audit record. Hash covers every other field,
// including PrevHash, which chains it to its predecessor.
type Entry struct {
	ID            string    `json:"id"`
	Seq           uint64    `json:"seq"`
	Timestamp     time.Time `json:"timestamp"`
	Actor         string    `json:"actor"`
	ActorName     string    `json:"actor_name"`
	TargetID      string    `json:"target_id"`
	TargetKind    Kind      `json:"target_kind"`
	CorrelationID string    `json:"correlation_id"`
	PrevHash      string    `json:"prev_hash"`
	Hash          string    `json:"hash"`
}

// ChainHash computes the entry's hash from its canonical field encoding.
// The Hash field itself is excluded.
func ChainHash(e Entry) string {
	fields := []string{
		e.ID,
		strconv.FormatUint(e.Seq, 10),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Actor,
		e.ActorName,
		e.TargetID,
		string(e.TargetKind),
		e.CorrelationID,
		e.PrevHash,
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\n")))
	return hex.EncodeToString(sum[:])
}

// Recorder commits access records. Record must return before the data it
// audits is fetched; a failed Record means the lookup must not proceed.
type Recorder interface {
	Record(ctx context.Context, access Access) error
}
