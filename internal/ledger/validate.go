package ledger

import (
	"fmt"
	"strings"

	"envledger/internal/merkle"
	"envledger/internal/models"
)

// Violation is one failed integrity check on one block.
type Violation struct {
	BlockNumber int    `json:"blockNumber"`
	Reason      string `json:"reason"`
	Detail      string `json:"detail,omitempty"`
}

// ValidationReport is the outcome of one full-chain walk. Integrity
// failures are reported, never thrown: a bad block does not stop the
// walk, so a compromised chain can be audited in a single pass.
type ValidationReport struct {
	IsValid         bool        `json:"isValid"`
	ValidatedBlocks int         `json:"validatedBlocks"`
	Violations      []Violation `json:"violations"`
}

// Violation reasons.
const (
	ReasonLinkageBreak   = "Hash linkage break"
	ReasonHashMismatch   = "Block hash mismatch"
	ReasonMerkleMismatch = "Merkle root mismatch"
	ReasonInvalidPoW     = "Invalid proof of work"
)

// ValidateChain walks the chain pairwise from block 1 and checks, for
// each block: the previousHash linkage, the recomputed header hash, the
// recomputed Merkle root and the proof-of-work prefix. The report lists
// every violated block with a reason.
func (e *Engine) ValidateChain() ValidationReport {
	e.mu.RLock()
	chain := append([]models.Block(nil), e.chain...)
	e.mu.RUnlock()

	report := ValidationReport{IsValid: true, Violations: []Violation{}}
	for i := 1; i < len(chain); i++ {
		block := chain[i]
		prev := chain[i-1]
		report.ValidatedBlocks++

		if block.PreviousHash != prev.CurrentHash {
			report.Violations = append(report.Violations, Violation{
				BlockNumber: block.BlockNumber,
				Reason:      ReasonLinkageBreak,
				Detail:      fmt.Sprintf("previousHash %s does not match block %d hash %s", block.PreviousHash, prev.BlockNumber, prev.CurrentHash),
			})
		}

		recomputed, err := e.provider.Hash(block.BlockHeader)
		if err != nil || recomputed != block.CurrentHash {
			report.Violations = append(report.Violations, Violation{
				BlockNumber: block.BlockNumber,
				Reason:      ReasonHashMismatch,
			})
		}

		tree, err := merkle.Build(e.provider, block.Transactions)
		if err != nil || tree.Root() != block.MerkleRoot {
			report.Violations = append(report.Violations, Violation{
				BlockNumber: block.BlockNumber,
				Reason:      ReasonMerkleMismatch,
			})
		}

		if !strings.HasPrefix(block.CurrentHash, strings.Repeat("0", block.Difficulty)) {
			report.Violations = append(report.Violations, Violation{
				BlockNumber: block.BlockNumber,
				Reason:      ReasonInvalidPoW,
			})
		}
	}
	report.IsValid = len(report.Violations) == 0

	e.mu.Lock()
	e.lastValid = &report
	e.mu.Unlock()
	return report
}

// VerifyTransaction locates the owning block, rebuilds its Merkle tree
// and checks the inclusion proof against the stored root. The second
// return value is false when the id is not in any mined block.
func (e *Engine) VerifyTransaction(id string) (bool, bool) {
	e.mu.RLock()
	blockNumber, mined := e.minedIDs[id]
	var block models.Block
	if mined {
		for _, b := range e.chain {
			if b.BlockNumber == blockNumber {
				block = b
				break
			}
		}
	}
	e.mu.RUnlock()
	if !mined {
		return false, false
	}

	tree, err := merkle.Build(e.provider, block.Transactions)
	if err != nil {
		return false, true
	}
	index := -1
	for i, tx := range block.Transactions {
		if tx.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		return false, true
	}
	proof, err := tree.GetProof(index)
	if err != nil {
		return false, true
	}
	return merkle.VerifyProof(e.provider, proof, block.MerkleRoot), true
}
