package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"envledger/internal/contracts"
	"envledger/internal/crypto"
	"envledger/internal/models"
	"envledger/internal/storage"
	"envledger/internal/txfactory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, storage.Store) {
	t.Helper()
	store, err := storage.OpenLevelStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if cfg.FacilityID == "" {
		cfg.FacilityID = "FAC-001"
	}
	if cfg.Difficulty == 0 {
		cfg.Difficulty = 1 // keep tests fast unless a test overrides
	}
	provider := crypto.NewProvider()
	rules := contracts.NewEngine(provider, zap.NewNop())
	engine := NewEngine(cfg, store, provider, rules, zap.NewNop())
	require.NoError(t, engine.Initialize(context.Background()))
	return engine, store
}

func sensorTx(t *testing.T, engine *Engine, value float64) *models.Transaction {
	t.Helper()
	factory := txfactory.NewFactory("FAC-001")
	tx, err := factory.SensorReading("user-1", models.SensorReadingData{
		SensorID:  "S-1",
		RoomID:    "ROOM-7",
		Parameter: "temperature",
		Value:     value,
		Unit:      "celsius",
	})
	require.NoError(t, err)
	return tx
}

func fillAndMine(t *testing.T, engine *Engine, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, engine.AddTransaction(ctx, sensorTx(t, engine, 5.0+float64(i)/10)))
	}
	_, err := engine.MineBlock(ctx)
	require.NoError(t, err)
}

func TestInitialize_CreatesGenesis(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})

	chain := engine.Chain()
	require.Len(t, chain, 1)

	genesis := chain[0]
	assert.Equal(t, 0, genesis.BlockNumber)
	assert.Equal(t, models.GenesisPreviousHash, genesis.PreviousHash)
	assert.Equal(t, models.BlockGenesis, genesis.BlockType)
	require.Len(t, genesis.Transactions, 1)
	assert.Equal(t, models.TxSystem, genesis.Transactions[0].Type)

	// Signed like any other block: the signature over the hash verifies
	// with the facility public key.
	provider := crypto.NewProvider()
	assert.True(t, provider.Verify(genesis.CurrentHash, genesis.Signature, engine.PublicKey()))
}

func TestInitialize_Idempotent(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	assert.Error(t, engine.Initialize(context.Background()))
	assert.Equal(t, StateReady, engine.State())
}

func TestAddTransaction_BeforeInitialize(t *testing.T) {
	store, err := storage.OpenLevelStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	provider := crypto.NewProvider()
	engine := NewEngine(Config{FacilityID: "FAC-001"}, store, provider, contracts.NewEngine(provider, zap.NewNop()), zap.NewNop())

	err = engine.AddTransaction(context.Background(), sensorTx(t, engine, 5.0))
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestAddTransaction_Validation(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	missingID := sensorTx(t, engine, 5.0)
	missingID.ID = ""
	err := engine.AddTransaction(ctx, missingID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required field")

	unknownType := sensorTx(t, engine, 5.0)
	unknownType.Type = "telemetry"
	err = engine.AddTransaction(ctx, unknownType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transaction type")

	assert.Equal(t, 0, engine.PendingCount())
}

func TestAddTransaction_SignsUnsigned(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	tx := sensorTx(t, engine, 5.0)
	require.Empty(t, tx.Signature)
	require.NoError(t, engine.AddTransaction(ctx, tx))
	assert.NotEmpty(t, tx.Signature)

	provider := crypto.NewProvider()
	assert.True(t, provider.Verify(tx.Data, tx.Signature, engine.PublicKey()))
}

func TestAddTransaction_RejectsBadSignature(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	tx := sensorTx(t, engine, 5.0)
	tx.Signature = "bm90LWEtc2lnbmF0dXJl"
	err := engine.AddTransaction(ctx, tx)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, 0, engine.PendingCount())
}

func TestAddTransaction_DuplicatePending(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	tx := sensorTx(t, engine, 5.0)
	require.NoError(t, engine.AddTransaction(ctx, tx))

	dup := *tx
	err := engine.AddTransaction(ctx, &dup)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
	assert.Equal(t, 1, engine.PendingCount())
}

func TestAddTransaction_DuplicateMined(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	tx := sensorTx(t, engine, 5.0)
	require.NoError(t, engine.AddTransaction(ctx, tx))
	_, err := engine.MineBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, engine.PendingCount())

	dup := *tx
	err = engine.AddTransaction(ctx, &dup)
	require.Error(t, err)
	assert.Equal(t, "Duplicate transaction", err.Error())
	assert.Equal(t, 0, engine.PendingCount())
}

func TestMineBlock_EmptyPoolIsNoop(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})

	block, err := engine.MineBlock(context.Background())
	require.NoError(t, err)
	assert.Nil(t, block)
	assert.Len(t, engine.Chain(), 1)
}

func TestMineBlock_DifficultyPrefix(t *testing.T) {
	for _, difficulty := range []int{1, 2, 3, 4} {
		difficulty := difficulty
		t.Run(fmt.Sprintf("difficulty_%d", difficulty), func(t *testing.T) {
			engine, _ := newTestEngine(t, Config{Difficulty: difficulty})
			ctx := context.Background()
			require.NoError(t, engine.AddTransaction(ctx, sensorTx(t, engine, 5.0)))

			block, err := engine.MineBlock(ctx)
			require.NoError(t, err)
			require.NotNil(t, block)
			assert.True(t, strings.HasPrefix(block.CurrentHash, strings.Repeat("0", difficulty)),
				"hash %s lacks %d leading zeros", block.CurrentHash, difficulty)
		})
	}
}

func TestMineBlock_BatchesOldestFirst(t *testing.T) {
	engine, _ := newTestEngine(t, Config{BlockSize: 50})
	ctx := context.Background()

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		tx := sensorTx(t, engine, 5.0)
		ids = append(ids, tx.ID)
		require.NoError(t, engine.AddTransaction(ctx, tx))
	}

	block, err := engine.MineBlock(ctx)
	require.NoError(t, err)
	require.Len(t, block.Transactions, 5)
	for i, tx := range block.Transactions {
		assert.Equal(t, ids[i], tx.ID)
	}
	assert.Len(t, block.ComplianceChecks, 5)
	for _, check := range block.ComplianceChecks {
		assert.Equal(t, "pass", check.Status)
	}
}

func TestMineBlock_AutoTriggerAtBlockSize(t *testing.T) {
	engine, _ := newTestEngine(t, Config{BlockSize: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, engine.AddTransaction(ctx, sensorTx(t, engine, 5.0)))
	}

	// The third add fills the pool and auto-mines.
	assert.Equal(t, 0, engine.PendingCount())
	assert.Len(t, engine.Chain(), 2)
}

func TestMineBlock_Cancellation(t *testing.T) {
	engine, _ := newTestEngine(t, Config{Difficulty: 6, BlockSize: 50})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, engine.AddTransaction(ctx, sensorTx(t, engine, 5.0)))

	cancel()
	_, err := engine.MineBlock(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// The aborted mine left no partial block behind.
	assert.Len(t, engine.Chain(), 1)
	assert.Equal(t, 1, engine.PendingCount())
}

func TestValidateChain_UntouchedChain(t *testing.T) {
	engine, _ := newTestEngine(t, Config{BlockSize: 2})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, engine.AddTransaction(ctx, sensorTx(t, engine, 5.0)))
	}
	chain := engine.Chain()
	require.Len(t, chain, 4) // genesis + 3 auto-mined blocks

	report := engine.ValidateChain()
	assert.True(t, report.IsValid)
	assert.Equal(t, len(chain)-1, report.ValidatedBlocks)
	assert.Empty(t, report.Violations)
}

func TestValidateChain_TamperedTransaction(t *testing.T) {
	engine, _ := newTestEngine(t, Config{BlockSize: 2})
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, engine.AddTransaction(ctx, sensorTx(t, engine, 5.0)))
	}
	require.Len(t, engine.Chain(), 3)

	// Flip a value inside block 2's first transaction without touching
	// the stored merkleRoot or currentHash.
	engine.mu.Lock()
	engine.chain[2].Transactions[0].Data = json.RawMessage(`{"value":99.9}`)
	engine.mu.Unlock()

	report := engine.ValidateChain()
	assert.False(t, report.IsValid)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, 2, report.Violations[0].BlockNumber)
	assert.Equal(t, "Merkle root mismatch", report.Violations[0].Reason)
}

func TestValidateChain_BrokenLinkage(t *testing.T) {
	engine, _ := newTestEngine(t, Config{BlockSize: 1})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, engine.AddTransaction(ctx, sensorTx(t, engine, 5.0)))
	}

	engine.mu.Lock()
	engine.chain[1].CurrentHash = "deadbeef"
	engine.mu.Unlock()

	report := engine.ValidateChain()
	assert.False(t, report.IsValid)

	reasons := map[string][]int{}
	for _, v := range report.Violations {
		reasons[v.Reason] = append(reasons[v.Reason], v.BlockNumber)
	}
	// Block 1 no longer matches its own header hash or the PoW prefix;
	// block 2 no longer links to it. The walk reports all of them.
	assert.Contains(t, reasons[ReasonHashMismatch], 1)
	assert.Contains(t, reasons[ReasonInvalidPoW], 1)
	assert.Contains(t, reasons[ReasonLinkageBreak], 2)
}

func TestVerifyTransaction(t *testing.T) {
	engine, _ := newTestEngine(t, Config{BlockSize: 50})
	ctx := context.Background()

	tx := sensorTx(t, engine, 5.0)
	require.NoError(t, engine.AddTransaction(ctx, tx))
	fillAndMine(t, engine, 4)

	ok, found := engine.VerifyTransaction(tx.ID)
	assert.True(t, found)
	assert.True(t, ok)

	_, found = engine.VerifyTransaction("TXN-unknown")
	assert.False(t, found)
}

func TestGetSummary(t *testing.T) {
	engine, _ := newTestEngine(t, Config{BlockSize: 50})
	ctx := context.Background()

	assert.Equal(t, "unknown", engine.GetSummary().ChainStatus)

	require.NoError(t, engine.AddTransaction(ctx, sensorTx(t, engine, 5.0)))
	factory := txfactory.NewFactory("FAC-001")
	audit, err := factory.Audit("user-1", models.AuditData{Action: "login", EntityType: "session", EntityID: "s-1"})
	require.NoError(t, err)
	require.NoError(t, engine.AddTransaction(ctx, audit))
	_, err = engine.MineBlock(ctx)
	require.NoError(t, err)

	engine.ValidateChain()
	summary := engine.GetSummary()

	assert.Equal(t, 2, summary.ChainLength)
	assert.Equal(t, 3, summary.TotalTransactions) // genesis system tx + 2
	assert.Equal(t, 1, summary.CountByType[models.TxSensorReading])
	assert.Equal(t, 1, summary.CountByType[models.TxAudit])
	assert.Equal(t, 1, summary.CountByType[models.TxSystem])
	assert.Equal(t, 0, summary.PendingCount)
	assert.Equal(t, "valid", summary.ChainStatus)
	require.NotNil(t, summary.LatestBlock)
	assert.Equal(t, 1, summary.LatestBlock.BlockNumber)
}

func TestGetTransactionsByType(t *testing.T) {
	engine, _ := newTestEngine(t, Config{BlockSize: 50})
	fillAndMine(t, engine, 3)

	readings := engine.GetTransactionsByType(models.TxSensorReading)
	assert.Len(t, readings, 3)
	assert.Empty(t, engine.GetTransactionsByType(models.TxCAPA))
}

func TestSubscribe_NotifyAndUnsubscribe(t *testing.T) {
	engine, _ := newTestEngine(t, Config{BlockSize: 50})
	ctx := context.Background()

	var txEvents, blockEvents int
	unsubscribe := engine.Subscribe(Subscriber{
		OnTransaction: func(models.Transaction) { txEvents++ },
		OnBlock:       func(models.Block) { blockEvents++ },
	})

	// A panicking subscriber must not abort the mutation.
	engine.Subscribe(Subscriber{
		OnTransaction: func(models.Transaction) { panic("listener bug") },
	})

	require.NoError(t, engine.AddTransaction(ctx, sensorTx(t, engine, 5.0)))
	_, err := engine.MineBlock(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, txEvents)
	assert.Equal(t, 1, blockEvents)

	unsubscribe()
	require.NoError(t, engine.AddTransaction(ctx, sensorTx(t, engine, 5.0)))
	assert.Equal(t, 1, txEvents)
}

func TestRestart_ReloadsChainAndPending(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.OpenLevelStore(dir, zap.NewNop())
	require.NoError(t, err)

	provider := crypto.NewProvider()
	cfg := Config{FacilityID: "FAC-001", BlockSize: 50, Difficulty: 1}
	engine := NewEngine(cfg, store, provider, contracts.NewEngine(provider, zap.NewNop()), zap.NewNop())
	ctx := context.Background()
	require.NoError(t, engine.Initialize(ctx))

	mined := sensorTx(t, engine, 5.0)
	require.NoError(t, engine.AddTransaction(ctx, mined))
	_, err = engine.MineBlock(ctx)
	require.NoError(t, err)
	leftover := sensorTx(t, engine, 6.0)
	require.NoError(t, engine.AddTransaction(ctx, leftover))
	require.NoError(t, store.Close())

	reopened, err := storage.OpenLevelStore(dir, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	restarted := NewEngine(cfg, reopened, provider, contracts.NewEngine(provider, zap.NewNop()), zap.NewNop())
	require.NoError(t, restarted.Initialize(ctx))

	assert.Len(t, restarted.Chain(), 2)
	assert.Equal(t, 1, restarted.PendingCount())

	// The reloaded key pair is the same one: the old block signature
	// still verifies and duplicate detection still sees the mined id.
	err = restarted.AddTransaction(ctx, mined)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)

	report := restarted.ValidateChain()
	assert.True(t, report.IsValid)
}
