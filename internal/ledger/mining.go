package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"envledger/internal/contracts"
	"envledger/internal/merkle"
	"envledger/internal/models"

	"go.uber.org/zap"
)

// ctx cancellation is checked once per this many nonce attempts.
const miningCheckInterval = 2048

// MineBlock batches up to BlockSize pending transactions (oldest
// first), performs the proof-of-work search and appends the finalized
// block to the chain. It returns (nil, nil) when the pool is empty.
// The search runs until it succeeds or ctx is cancelled; there is no
// timeout by design. Persistence completes before the next mine can
// start — block production is not pipelined.
func (e *Engine) MineBlock(ctx context.Context) (*models.Block, error) {
	if e.State() != StateReady {
		return nil, ErrNotReady
	}
	if !e.mining.CompareAndSwap(false, true) {
		return nil, ErrMiningInProgress
	}
	defer e.mining.Store(false)

	e.mu.Lock()
	if len(e.pending) == 0 {
		e.mu.Unlock()
		return nil, nil
	}
	batchSize := e.cfg.BlockSize
	if batchSize > len(e.pending) {
		batchSize = len(e.pending)
	}
	batch := append([]models.Transaction(nil), e.pending[:batchSize]...)
	prev := e.chain[len(e.chain)-1]
	e.mu.Unlock()

	block, err := e.mine(ctx, prev, batch)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.chain = append(e.chain, *block)
	e.pending = e.pending[batchSize:]
	for _, tx := range batch {
		e.minedIDs[tx.ID] = block.BlockNumber
	}
	e.mu.Unlock()

	// No rollback on storage failure: the in-memory chain is treated as
	// provisional until the caller sees a nil error.
	if err := e.store.SaveBlock(ctx, *block); err != nil {
		return block, fmt.Errorf("persist block %d: %w", block.BlockNumber, err)
	}
	for _, tx := range batch {
		if err := e.store.DeletePending(ctx, tx.ID); err != nil {
			return block, fmt.Errorf("prune pending %s: %w", tx.ID, err)
		}
	}

	e.logger.Info("block mined",
		zap.Int("block_number", block.BlockNumber),
		zap.String("hash", block.CurrentHash),
		zap.Int64("nonce", block.Nonce),
		zap.Int("transactions", len(block.Transactions)),
	)
	e.notifyBlock(*block)
	return block, nil
}

// mine builds and searches a block off-lock; only the snapshot of the
// previous block and the batch are needed.
func (e *Engine) mine(ctx context.Context, prev models.Block, batch []models.Transaction) (*models.Block, error) {
	tree, err := merkle.Build(e.provider, batch)
	if err != nil {
		return nil, fmt.Errorf("merkle root: %w", err)
	}

	header := models.BlockHeader{
		BlockNumber:     prev.BlockNumber + 1,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		PreviousHash:    prev.CurrentHash,
		MerkleRoot:      tree.Root(),
		Difficulty:      e.cfg.Difficulty,
		MinedBy:         e.cfg.MinedBy,
		FacilityID:      e.cfg.FacilityID,
		BlockType:       models.DeriveBlockType(prev.BlockNumber+1, batch),
		RegulatoryStamp: "EU_GMP_ANNEX_11",
	}

	hash, nonce, err := e.proofOfWork(ctx, &header)
	if err != nil {
		return nil, err
	}
	header.Nonce = nonce

	signature, err := e.provider.Sign(hash, e.privKey)
	if err != nil {
		return nil, fmt.Errorf("sign block %d: %w", header.BlockNumber, err)
	}

	block := &models.Block{
		BlockHeader:      header,
		CurrentHash:      hash,
		Signature:        signature,
		Transactions:     batch,
		ComplianceChecks: e.complianceChecks(batch),
	}
	return block, nil
}

// proofOfWork searches for a nonce giving the header hash Difficulty
// leading zero hex characters. The cancellation flag is checked every
// miningCheckInterval attempts so a shutdown can abort the search.
func (e *Engine) proofOfWork(ctx context.Context, header *models.BlockHeader) (string, int64, error) {
	target := strings.Repeat("0", header.Difficulty)
	for nonce := int64(0); ; nonce++ {
		if nonce%miningCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return "", 0, fmt.Errorf("mining block %d: %w", header.BlockNumber, ctx.Err())
			default:
			}
		}
		header.Nonce = nonce
		hash, err := e.provider.Hash(header)
		if err != nil {
			return "", 0, fmt.Errorf("hash block %d: %w", header.BlockNumber, err)
		}
		if strings.HasPrefix(hash, target) {
			return hash, nonce, nil
		}
	}
}

// complianceChecks attaches the derived, non-authoritative ALCOA+
// summary for each mined transaction. A rule failure here flags the
// transaction but never blocks the mine.
func (e *Engine) complianceChecks(batch []models.Transaction) []models.ComplianceCheck {
	checks := make([]models.ComplianceCheck, 0, len(batch))
	for _, tx := range batch {
		result, err := e.rules.Execute(contracts.ContractALCOA, tx)
		if err != nil {
			e.logger.Warn("compliance summary failed",
				zap.String("tx_id", tx.ID),
				zap.Error(err),
			)
			continue
		}
		checks = append(checks, models.ComplianceCheck{
			TransactionID: tx.ID,
			OverallScore:  result.OverallScore,
			Status:        string(result.Status),
			ResultHash:    result.Hash,
		})
	}
	return checks
}

// mineGenesis creates block 0: a single system transaction describing
// the facility, hashed and signed like any other block. Its
// previousHash is the 64-zero digest.
func (e *Engine) mineGenesis(ctx context.Context) (*models.Block, error) {
	tx, err := e.factory.System("system", models.SystemData{
		Event:        "genesis",
		FacilityName: e.cfg.FacilityName,
		Description:  "ledger initialized",
		Version:      "1.0",
	})
	if err != nil {
		return nil, fmt.Errorf("genesis transaction: %w", err)
	}
	sig, err := e.provider.Sign(tx.Data, e.privKey)
	if err != nil {
		return nil, fmt.Errorf("sign genesis transaction: %w", err)
	}
	tx.Signature = sig

	anchor := models.Block{CurrentHash: models.GenesisPreviousHash, BlockHeader: models.BlockHeader{BlockNumber: -1}}
	genesis, err := e.mine(ctx, anchor, []models.Transaction{*tx})
	if err != nil {
		return nil, fmt.Errorf("mine genesis: %w", err)
	}
	if err := e.store.SaveBlock(ctx, *genesis); err != nil {
		return nil, fmt.Errorf("persist genesis: %w", err)
	}
	e.logger.Info("genesis block created", zap.String("hash", genesis.CurrentHash))
	return genesis, nil
}
