package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"envledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLevelStore(t *testing.T) *LevelStore {
	t.Helper()
	store, err := OpenLevelStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleBlock(blockNumber int) models.Block {
	return models.Block{
		BlockHeader: models.BlockHeader{
			BlockNumber:  blockNumber,
			Timestamp:    "2026-03-01T10:00:00Z",
			PreviousHash: fmt.Sprintf("prev-%d", blockNumber),
			MerkleRoot:   fmt.Sprintf("root-%d", blockNumber),
			Difficulty:   2,
			FacilityID:   "FAC-001",
			BlockType:    models.BlockData,
		},
		CurrentHash: fmt.Sprintf("hash-%d", blockNumber),
		Signature:   "sig",
		Transactions: []models.Transaction{{
			ID:        fmt.Sprintf("TXN-%d", blockNumber),
			Type:      models.TxSensorReading,
			Data:      json.RawMessage(`{"value":5}`),
			Timestamp: "2026-03-01T10:00:00Z",
		}},
	}
}

func TestLevelStore_BlockRoundTrip(t *testing.T) {
	store := newLevelStore(t)
	ctx := context.Background()

	block := sampleBlock(3)
	require.NoError(t, store.SaveBlock(ctx, block))

	got, err := store.GetBlock(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, block.CurrentHash, got.CurrentHash)
	assert.Len(t, got.Transactions, 1)

	byHash, err := store.GetBlockByHash(ctx, "hash-3")
	require.NoError(t, err)
	assert.Equal(t, 3, byHash.BlockNumber)
}

func TestLevelStore_BlockNotFound(t *testing.T) {
	store := newLevelStore(t)
	ctx := context.Background()

	_, err := store.GetBlock(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetBlockByHash(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLevelStore_LoadChainOrdered(t *testing.T) {
	store := newLevelStore(t)
	ctx := context.Background()

	// Insert out of order, including a two-digit number to prove the
	// zero-padded keys keep numeric ordering.
	for _, n := range []int{10, 0, 2, 1} {
		require.NoError(t, store.SaveBlock(ctx, sampleBlock(n)))
	}

	chain, err := store.LoadChain(ctx)
	require.NoError(t, err)
	require.Len(t, chain, 4)
	assert.Equal(t, []int{0, 1, 2, 10}, []int{
		chain[0].BlockNumber, chain[1].BlockNumber, chain[2].BlockNumber, chain[3].BlockNumber,
	})
}

func TestLevelStore_PendingLifecycle(t *testing.T) {
	store := newLevelStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tx := models.Transaction{
			ID:        fmt.Sprintf("TXN-%d", i),
			Type:      models.TxAudit,
			Data:      json.RawMessage(`{}`),
			Timestamp: fmt.Sprintf("2026-03-01T10:0%d:00Z", i),
		}
		require.NoError(t, store.SavePending(ctx, tx))
	}

	pending, err := store.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "TXN-0", pending[0].ID) // oldest first

	require.NoError(t, store.DeletePending(ctx, "TXN-1"))
	pending, err = store.LoadPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestLevelStore_KeysAndConfig(t *testing.T) {
	store := newLevelStore(t)
	ctx := context.Background()

	_, err := store.LoadKeys(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	record := KeyRecord{
		FacilityID: "FAC-001",
		PrivateKey: "cHJpdg==",
		PublicKey:  "cHVi",
		CreatedAt:  "2026-03-01T10:00:00Z",
	}
	require.NoError(t, store.SaveKeys(ctx, record))

	got, err := store.LoadKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, record, *got)

	_, err = store.GetConfig(ctx, "difficulty")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.SetConfig(ctx, "difficulty", "2"))
	value, err := store.GetConfig(ctx, "difficulty")
	require.NoError(t, err)
	assert.Equal(t, "2", value)
}

func TestLevelStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenLevelStore(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.SaveBlock(ctx, sampleBlock(0)))
	require.NoError(t, store.Close())

	reopened, err := OpenLevelStore(dir, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	chain, err := reopened.LoadChain(ctx)
	require.NoError(t, err)
	assert.Len(t, chain, 1)
}
