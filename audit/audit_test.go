package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyvard/helse-spanner/storage"
	"github.com/heyvard/helse-spanner/storage/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAccess(target string) Access {
	return Access{
		Actor:         "Z123456",
		ActorName:     "Saks Behandler",
		TargetID:      target,
		TargetKind:    KindNationalID,
		CorrelationID: "corr-1",
	}
}

func TestRecordBuildsChain(t *testing.T) {
	store, err := NewStore(memory.NewRepository(), discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Record(ctx, testAccess("12020052345")))
	require.NoError(t, store.Record(ctx, testAccess("21030052379")))
	require.NoError(t, store.Record(ctx, testAccess("12020052345")))

	entries, err := store.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, GenesisHash, entries[0].PrevHash)
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)
	assert.Equal(t, entries[1].Hash, entries[2].PrevHash)
	require.NoError(t, VerifyChain(entries))
}

func TestChainSurvivesReopen(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()

	store, err := NewStore(repo, discardLogger())
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, testAccess("12020052345")))

	// A new store on the same repository continues the chain.
	reopened, err := NewStore(repo, discardLogger())
	require.NoError(t, err)
	require.NoError(t, reopened.Record(ctx, testAccess("21030052379")))

	count, err := reopened.Verify()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestVerifyDetectsTampering(t *testing.T) {
	repo := memory.NewRepository()
	store, err := NewStore(repo, discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Record(ctx, testAccess("12020052345")))
	require.NoError(t, store.Record(ctx, testAccess("21030052379")))

	// Rewrite entry 1's target behind the store's back.
	env, err := repo.Get("audit", "ENTRY", "0000000000000001")
	require.NoError(t, err)
	var entry Entry
	require.NoError(t, json.Unmarshal(env.Ciphertext, &entry))
	entry.TargetID = "99999999999"
	forged, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, repo.Put("audit", "ENTRY", "0000000000000001", storage.PlainRecord(forged)))

	_, err = store.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestVerifyDetectsDroppedEntry(t *testing.T) {
	entries := []Entry{
		{Seq: 1, PrevHash: GenesisHash},
		{Seq: 3, PrevHash: "whatever"},
	}
	entries[0].Hash = ChainHash(entries[0])
	entries[1].Hash = ChainHash(entries[1])

	err := VerifyChain(entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sequence gap")
}

func TestExportSigned(t *testing.T) {
	store, err := NewStore(memory.NewRepository(), discardLogger())
	require.NoError(t, err)
	require.NoError(t, store.Record(context.Background(), testAccess("12020052345")))

	key := []byte("0123456789abcdef0123456789abcdef")
	export, err := store.ExportSigned(key)
	require.NoError(t, err)
	require.NoError(t, VerifyExport(key, export))

	// Any change to the exported entries invalidates the signature.
	export.Entries[0].Actor = "Z000000"
	assert.Error(t, VerifyExport(key, export))

	// The wrong key never validates.
	export, err = store.ExportSigned(key)
	require.NoError(t, err)
	assert.Error(t, VerifyExport([]byte("ffffffffffffffffffffffffffffffff"), export))
}

func TestRecordIsSynchronous(t *testing.T) {
	repo := failingRepo{memory.NewRepository()}
	store, err := NewStore(repo, discardLogger())
	require.NoError(t, err)

	err = store.Record(context.Background(), testAccess("12020052345"))
	require.Error(t, err, "a failed audit write must surface to the caller")

	entries, err := store.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing may be committed when the batch fails")
}

// failingRepo refuses batches, everything else passes through.
type failingRepo struct {
	storage.Repository
}

func (f failingRepo) Batch(scope string, fn func(tx storage.BatchTx) error) error {
	return assert.AnError
}

func TestMonitor(t *testing.T) {
	m := NewMonitor(time.Minute, 3)
	now := time.Now()

	assert.False(t, m.Observe("Z1", now))
	assert.False(t, m.Observe("Z1", now.Add(time.Second)))
	assert.False(t, m.Observe("Z1", now.Add(2*time.Second)))
	assert.True(t, m.Observe("Z1", now.Add(3*time.Second)), "fourth lookup within the window is a spike")

	// Other actors are counted separately.
	assert.False(t, m.Observe("Z2", now.Add(3*time.Second)))

	// Outside the window the count resets.
	assert.False(t, m.Observe("Z1", now.Add(2*time.Minute)))
}

func TestMonitorForgetsIdleActors(t *testing.T) {
	m := NewMonitor(time.Minute, 3)
	now := time.Now()

	m.Observe("Z1", now)
	m.Observe("Z2", now)
	assert.Len(t, m.seen, 2)

	// Z2 stays active; Z1 goes idle and is dropped, not kept forever.
	m.Observe("Z2", now.Add(2*time.Minute))
	assert.Len(t, m.seen, 1)
	assert.NotContains(t, m.seen, "Z1")
}
