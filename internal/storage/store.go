package storage

import (
	"context"
	"errors"

	"envledger/internal/models"
)

// ErrNotFound is returned when a requested record does not exist in any
// of the four collections.
var ErrNotFound = errors.New("storage: not found")

// KeyRecord is the single facility key pair, stored in its exported
// (base64) encoding. Private key material never appears in logs.
type KeyRecord struct {
	FacilityID string `json:"facilityId"`
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
	CreatedAt  string `json:"createdAt"`
}

// Store persists the four logical ledger collections: the chain (keyed
// by block number, unique by hash), pending transactions (keyed by id),
// the facility key record and free-form config values.
type Store interface {
	// chain
	SaveBlock(ctx context.Context, block models.Block) error
	GetBlock(ctx context.Context, blockNumber int) (*models.Block, error)
	GetBlockByHash(ctx context.Context, hash string) (*models.Block, error)
	LoadChain(ctx context.Context) ([]models.Block, error)

	// pending transactions
	SavePending(ctx context.Context, tx models.Transaction) error
	DeletePending(ctx context.Context, id string) error
	LoadPending(ctx context.Context) ([]models.Transaction, error)

	// crypto keys
	SaveKeys(ctx context.Context, record KeyRecord) error
	LoadKeys(ctx context.Context) (*KeyRecord, error)

	// config
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)

	Close() error
}
