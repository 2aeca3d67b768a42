package merkle

import (
	"fmt"

	"envledger/internal/crypto"
	"envledger/internal/models"
)

// emptyRootSentinel is hashed to produce the root of an empty batch so
// that an empty tree is deterministic rather than an error.
const emptyRootSentinel = "envledger:merkle:empty"

// leafDomain prefixes leaf preimages so a transaction hash can never
// collide with an interior pair hash.
const leafDomain = "envledger:tx:"

// Proof is an inclusion proof for one leaf. Path holds the sibling
// digest at each level from leaf to root; Indices holds "L" or "R" for
// the sibling's position relative to the computed hash.
type Proof struct {
	Leaf    string   `json:"leaf"`
	Path    []string `json:"path"`
	Indices []string `json:"indices"`
}

// Tree is a Merkle tree over a transaction batch. Levels[0] is the leaf
// level; the last level holds the single root.
type Tree struct {
	provider *crypto.Provider
	levels   [][]string
}

// TransactionHash hashes the stable subset of transaction fields: id,
// type, data, timestamp, userId, facilityId. The signature is excluded
// so proofs do not depend on the signature encoding.
func TransactionHash(provider *crypto.Provider, tx models.Transaction) (string, error) {
	canonical, err := provider.CanonicalJSON(map[string]any{
		"id":         tx.ID,
		"type":       tx.Type,
		"data":       tx.Data,
		"timestamp":  tx.Timestamp,
		"userId":     tx.UserID,
		"facilityId": tx.FacilityID,
	})
	if err != nil {
		return "", fmt.Errorf("transaction hash: %w", err)
	}
	return provider.HashBytes(append([]byte(leafDomain), canonical...)), nil
}

// EmptyRoot is the deterministic root of a tree over zero transactions.
func EmptyRoot(provider *crypto.Provider) string {
	return provider.HashBytes([]byte(emptyRootSentinel))
}

// Build constructs the tree. The root is a pure function of the batch
// and its order; reordering transactions changes the root.
func Build(provider *crypto.Provider, txs []models.Transaction) (*Tree, error) {
	t := &Tree{provider: provider}
	if len(txs) == 0 {
		t.levels = [][]string{{EmptyRoot(provider)}}
		return t, nil
	}

	leaves := make([]string, len(txs))
	for i, tx := range txs {
		h, err := TransactionHash(provider, tx)
		if err != nil {
			return nil, err
		}
		leaves[i] = h
	}

	t.levels = [][]string{leaves}
	for level := leaves; len(level) > 1; {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, provider.HashPair(level[i], level[i+1]))
			} else {
				// Odd node count: the last node pairs with itself.
				next = append(next, provider.HashPair(level[i], level[i]))
			}
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t, nil
}

// Root returns the tree root.
func (t *Tree) Root() string {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// LeafCount returns the number of leaves.
func (t *Tree) LeafCount() int {
	if len(t.levels) == 0 {
		return 0
	}
	return len(t.levels[0])
}

// GetProof builds the inclusion proof for the leaf at index.
func (t *Tree) GetProof(index int) (*Proof, error) {
	leaves := t.levels[0]
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("merkle proof: index %d out of range [0,%d)", index, len(leaves))
	}

	proof := &Proof{Leaf: leaves[index]}
	pos := index
	for _, level := range t.levels[:len(t.levels)-1] {
		var sibling string
		if pos%2 == 0 {
			if pos+1 < len(level) {
				sibling = level[pos+1]
			} else {
				// Duplicated last node is its own sibling.
				sibling = level[pos]
			}
			proof.Path = append(proof.Path, sibling)
			proof.Indices = append(proof.Indices, "R")
		} else {
			sibling = level[pos-1]
			proof.Path = append(proof.Path, sibling)
			proof.Indices = append(proof.Indices, "L")
		}
		pos /= 2
	}
	return proof, nil
}

// VerifyProof re-derives the root from a proof and compares it to root.
func VerifyProof(provider *crypto.Provider, proof *Proof, root string) bool {
	if proof == nil || len(proof.Path) != len(proof.Indices) {
		return false
	}
	computed := proof.Leaf
	for i, sibling := range proof.Path {
		switch proof.Indices[i] {
		case "L":
			computed = provider.HashPair(sibling, computed)
		case "R":
			computed = provider.HashPair(computed, sibling)
		default:
			return false
		}
	}
	return computed == root
}
