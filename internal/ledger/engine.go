package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"envledger/internal/contracts"
	"envledger/internal/crypto"
	"envledger/internal/models"
	"envledger/internal/storage"
	"envledger/internal/txfactory"

	"go.uber.org/zap"
)

// Engine states.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

// Rejection reasons surfaced to callers. Every rejection is a reason
// string, never a stack trace.
var (
	ErrNotReady             = errors.New("ledger not initialized")
	ErrDuplicateTransaction = errors.New("Duplicate transaction")
	ErrInvalidSignature     = errors.New("Invalid signature")
	ErrMiningInProgress     = errors.New("mining already in progress")
)

// Config holds the engine's operating parameters.
type Config struct {
	FacilityID   string
	FacilityName string
	MinedBy      string
	BlockSize    int
	Difficulty   int
}

func (c *Config) applyDefaults() {
	if c.BlockSize <= 0 {
		c.BlockSize = 10
	}
	if c.Difficulty <= 0 {
		c.Difficulty = 2
	}
	if c.MinedBy == "" {
		c.MinedBy = "ledger-engine"
	}
}

// Subscriber receives synchronous notifications after each committed
// mutation. Either callback may be nil. A panicking subscriber never
// aborts the mutation that triggered it.
type Subscriber struct {
	OnTransaction func(tx models.Transaction)
	OnBlock       func(block models.Block)
}

// Engine owns the chain state: the pending pool and the block chain are
// the only shared mutable state, guarded by mu. Reads run concurrently
// against a consistent snapshot; mutations are serialized.
type Engine struct {
	cfg      Config
	store    storage.Store
	provider *crypto.Provider
	rules    *contracts.Engine
	factory  *txfactory.Factory
	logger   *zap.Logger

	state atomic.Int32

	mu        sync.RWMutex
	chain     []models.Block
	pending   []models.Transaction
	minedIDs  map[string]int // transaction id -> owning block number
	lastValid *ValidationReport

	privKey *ecdsa.PrivateKey
	pubKey  *ecdsa.PublicKey

	mining atomic.Bool

	subMu       sync.Mutex
	subscribers map[int]Subscriber
	nextSubID   int
}

// NewEngine wires the engine's collaborators. Initialize must be called
// before any other operation.
func NewEngine(cfg Config, store storage.Store, provider *crypto.Provider, rules *contracts.Engine, logger *zap.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:         cfg,
		store:       store,
		provider:    provider,
		rules:       rules,
		factory:     txfactory.NewFactory(cfg.FacilityID),
		logger:      logger,
		minedIDs:    make(map[string]int),
		subscribers: make(map[int]Subscriber),
	}
}

// State returns the current engine state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Initialize opens the persisted state: facility keys are loaded or
// generated, the chain is reloaded or a genesis block is mined, and any
// pending transactions left over from a prior session are restored.
func (e *Engine) Initialize(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		return fmt.Errorf("initialize: engine already initialized")
	}

	if err := e.loadOrGenerateKeys(ctx); err != nil {
		e.state.Store(int32(StateUninitialized))
		return err
	}

	chain, err := e.store.LoadChain(ctx)
	if err != nil {
		e.state.Store(int32(StateUninitialized))
		return fmt.Errorf("load chain: %w", err)
	}

	if len(chain) == 0 {
		genesis, err := e.mineGenesis(ctx)
		if err != nil {
			e.state.Store(int32(StateUninitialized))
			return err
		}
		chain = []models.Block{*genesis}
	}

	pending, err := e.store.LoadPending(ctx)
	if err != nil {
		e.state.Store(int32(StateUninitialized))
		return fmt.Errorf("load pending: %w", err)
	}

	e.mu.Lock()
	e.chain = chain
	e.pending = pending
	for _, block := range chain {
		for _, tx := range block.Transactions {
			e.minedIDs[tx.ID] = block.BlockNumber
		}
	}
	e.mu.Unlock()

	e.state.Store(int32(StateReady))
	e.logger.Info("ledger ready",
		zap.String("facility_id", e.cfg.FacilityID),
		zap.Int("chain_length", len(chain)),
		zap.Int("pending", len(pending)),
	)
	return nil
}

func (e *Engine) loadOrGenerateKeys(ctx context.Context) error {
	record, err := e.store.LoadKeys(ctx)
	switch {
	case err == nil:
		priv, err := e.provider.ImportPrivateKey(record.PrivateKey)
		if err != nil {
			return fmt.Errorf("restore facility key: %w", err)
		}
		pub, err := e.provider.ImportPublicKey(record.PublicKey)
		if err != nil {
			return fmt.Errorf("restore facility key: %w", err)
		}
		e.privKey, e.pubKey = priv, pub
		return nil
	case errors.Is(err, storage.ErrNotFound):
		priv, pub, err := e.provider.GenerateKeyPair()
		if err != nil {
			return err
		}
		privEnc, err := e.provider.ExportPrivateKey(priv)
		if err != nil {
			return err
		}
		pubEnc, err := e.provider.ExportPublicKey(pub)
		if err != nil {
			return err
		}
		record := storage.KeyRecord{
			FacilityID: e.cfg.FacilityID,
			PrivateKey: privEnc,
			PublicKey:  pubEnc,
			CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.store.SaveKeys(ctx, record); err != nil {
			return fmt.Errorf("persist facility keys: %w", err)
		}
		e.privKey, e.pubKey = priv, pub
		e.logger.Info("generated facility key pair", zap.String("facility_id", e.cfg.FacilityID))
		return nil
	default:
		return fmt.Errorf("load facility keys: %w", err)
	}
}

// PublicKey returns the facility public key for external verification.
func (e *Engine) PublicKey() *ecdsa.PublicKey {
	return e.pubKey
}

// AddTransaction validates and enqueues a transaction. It rejects on
// missing required fields, unknown type, duplicate id (pending or
// mined) or a failing signature. An accepted unsigned transaction is
// signed with the facility key. When the pending pool reaches the
// configured block size a mine is triggered automatically.
func (e *Engine) AddTransaction(ctx context.Context, tx *models.Transaction) error {
	if e.State() != StateReady {
		return ErrNotReady
	}
	if err := tx.ValidateBasic(); err != nil {
		return err
	}

	if tx.Signature != "" {
		if !e.provider.Verify(tx.Data, tx.Signature, e.pubKey) {
			return ErrInvalidSignature
		}
	} else {
		sig, err := e.provider.Sign(tx.Data, e.privKey)
		if err != nil {
			return fmt.Errorf("sign transaction %s: %w", tx.ID, err)
		}
		tx.Signature = sig
	}

	e.mu.Lock()
	if _, mined := e.minedIDs[tx.ID]; mined {
		e.mu.Unlock()
		return ErrDuplicateTransaction
	}
	for _, p := range e.pending {
		if p.ID == tx.ID {
			e.mu.Unlock()
			return ErrDuplicateTransaction
		}
	}
	e.pending = append(e.pending, *tx)
	poolFull := len(e.pending) >= e.cfg.BlockSize
	e.mu.Unlock()

	// In-memory state is provisional until persisted; a storage failure
	// propagates to the caller without rollback.
	if err := e.store.SavePending(ctx, *tx); err != nil {
		return fmt.Errorf("persist pending %s: %w", tx.ID, err)
	}

	e.logger.Debug("transaction accepted",
		zap.String("tx_id", tx.ID),
		zap.String("type", string(tx.Type)),
	)
	e.notifyTransaction(*tx)

	if poolFull {
		if _, err := e.MineBlock(ctx); err != nil && !errors.Is(err, ErrMiningInProgress) {
			return fmt.Errorf("auto-mine: %w", err)
		}
	}
	return nil
}

// GetTransactionsByType returns all mined transactions of one type,
// oldest block first.
func (e *Engine) GetTransactionsByType(txType models.TransactionType) []models.Transaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []models.Transaction
	for _, block := range e.chain {
		for _, tx := range block.Transactions {
			if tx.Type == txType {
				out = append(out, tx)
			}
		}
	}
	return out
}

// PendingCount returns the size of the pending pool.
func (e *Engine) PendingCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pending)
}

// Chain returns a snapshot copy of the chain.
func (e *Engine) Chain() []models.Block {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]models.Block(nil), e.chain...)
}

// Summary is the ledger overview consumed by dashboards.
type Summary struct {
	ChainLength       int                            `json:"chainLength"`
	TotalTransactions int                            `json:"totalTransactions"`
	CountByType       map[models.TransactionType]int `json:"countByType"`
	PendingCount      int                            `json:"pendingCount"`
	LatestBlock       *models.Block                  `json:"latestBlock,omitempty"`
	ChainStatus       string                         `json:"chainStatus"` // valid, invalid, unknown
}

// GetSummary reports chain length, transaction counts by type, pending
// count, the latest block and the chain status as of the last
// validation run.
func (e *Engine) GetSummary() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Summary{
		ChainLength:  len(e.chain),
		CountByType:  make(map[models.TransactionType]int),
		PendingCount: len(e.pending),
		ChainStatus:  "unknown",
	}
	for _, block := range e.chain {
		s.TotalTransactions += len(block.Transactions)
		for _, tx := range block.Transactions {
			s.CountByType[tx.Type]++
		}
	}
	if len(e.chain) > 0 {
		latest := e.chain[len(e.chain)-1]
		s.LatestBlock = &latest
	}
	if e.lastValid != nil {
		if e.lastValid.IsValid {
			s.ChainStatus = "valid"
		} else {
			s.ChainStatus = "invalid"
		}
	}
	return s
}

// Subscribe registers a listener and returns its unsubscribe handle.
func (e *Engine) Subscribe(sub Subscriber) func() {
	e.subMu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = sub
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		delete(e.subscribers, id)
		e.subMu.Unlock()
	}
}

func (e *Engine) notifyTransaction(tx models.Transaction) {
	for _, sub := range e.snapshotSubscribers() {
		if sub.OnTransaction != nil {
			e.safeNotify(func() { sub.OnTransaction(tx) })
		}
	}
}

func (e *Engine) notifyBlock(block models.Block) {
	for _, sub := range e.snapshotSubscribers() {
		if sub.OnBlock != nil {
			e.safeNotify(func() { sub.OnBlock(block) })
		}
	}
}

func (e *Engine) snapshotSubscribers() []Subscriber {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	out := make([]Subscriber, 0, len(e.subscribers))
	for _, sub := range e.subscribers {
		out = append(out, sub)
	}
	return out
}

// safeNotify isolates subscriber panics from the committed mutation.
func (e *Engine) safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
