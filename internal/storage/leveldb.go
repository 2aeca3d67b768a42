package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"envledger/internal/models"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

// Key layout:
//
//	block:<number (10-digit zero padded)> => Block JSON
//	hash:<currentHash>                    => block number (index by hash)
//	pending:<id>                          => Transaction JSON
//	keys:facility                         => KeyRecord JSON
//	config:<key>                          => raw value
const (
	blockKeyPrefix   = "block:"
	hashKeyPrefix    = "hash:"
	pendingKeyPrefix = "pending:"
	keysKey          = "keys:facility"
	configKeyPrefix  = "config:"
)

// LevelStore is the embedded LevelDB implementation of Store.
type LevelStore struct {
	db     *leveldb.DB
	logger *zap.Logger
}

// OpenLevelStore opens (or creates) the database at path.
func OpenLevelStore(path string, logger *zap.Logger) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &LevelStore{db: db, logger: logger}, nil
}

func blockKey(blockNumber int) []byte {
	return []byte(fmt.Sprintf("%s%010d", blockKeyPrefix, blockNumber))
}

func (s *LevelStore) SaveBlock(_ context.Context, block models.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("marshal block %d: %w", block.BlockNumber, err)
	}
	if err := s.db.Put(blockKey(block.BlockNumber), data, nil); err != nil {
		return fmt.Errorf("save block %d: %w", block.BlockNumber, err)
	}
	idx := []byte(hashKeyPrefix + block.CurrentHash)
	if err := s.db.Put(idx, []byte(fmt.Sprintf("%d", block.BlockNumber)), nil); err != nil {
		return fmt.Errorf("index block %d by hash: %w", block.BlockNumber, err)
	}
	if s.logger != nil {
		s.logger.Debug("block persisted",
			zap.Int("block_number", block.BlockNumber),
			zap.String("hash", block.CurrentHash),
		)
	}
	return nil
}

func (s *LevelStore) GetBlock(_ context.Context, blockNumber int) (*models.Block, error) {
	data, err := s.db.Get(blockKey(blockNumber), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", blockNumber, err)
	}
	var block models.Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("decode block %d: %w", blockNumber, err)
	}
	return &block, nil
}

func (s *LevelStore) GetBlockByHash(ctx context.Context, hash string) (*models.Block, error) {
	num, err := s.db.Get([]byte(hashKeyPrefix+hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get block by hash %s: %w", hash, err)
	}
	var blockNumber int
	if _, err := fmt.Sscanf(string(num), "%d", &blockNumber); err != nil {
		return nil, fmt.Errorf("decode hash index for %s: %w", hash, err)
	}
	return s.GetBlock(ctx, blockNumber)
}

func (s *LevelStore) LoadChain(_ context.Context) ([]models.Block, error) {
	var chain []models.Block
	iter := s.db.NewIterator(util.BytesPrefix([]byte(blockKeyPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		var block models.Block
		if err := json.Unmarshal(iter.Value(), &block); err != nil {
			return nil, fmt.Errorf("decode block at %s: %w", iter.Key(), err)
		}
		chain = append(chain, block)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	// Zero-padded keys iterate in numeric order already; sort anyway so
	// the invariant does not hinge on the key format.
	sort.Slice(chain, func(i, j int) bool { return chain[i].BlockNumber < chain[j].BlockNumber })
	return chain, nil
}

func (s *LevelStore) SavePending(_ context.Context, tx models.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal pending %s: %w", tx.ID, err)
	}
	if err := s.db.Put([]byte(pendingKeyPrefix+tx.ID), data, nil); err != nil {
		return fmt.Errorf("save pending %s: %w", tx.ID, err)
	}
	return nil
}

func (s *LevelStore) DeletePending(_ context.Context, id string) error {
	if err := s.db.Delete([]byte(pendingKeyPrefix+id), nil); err != nil {
		return fmt.Errorf("delete pending %s: %w", id, err)
	}
	return nil
}

func (s *LevelStore) LoadPending(_ context.Context) ([]models.Transaction, error) {
	var pending []models.Transaction
	iter := s.db.NewIterator(util.BytesPrefix([]byte(pendingKeyPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		var tx models.Transaction
		if err := json.Unmarshal(iter.Value(), &tx); err != nil {
			return nil, fmt.Errorf("decode pending at %s: %w", iter.Key(), err)
		}
		pending = append(pending, tx)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("load pending: %w", err)
	}
	// Oldest first: ids embed a millisecond timestamp but the ledger
	// relies on the producer timestamp for ordering.
	sort.Slice(pending, func(i, j int) bool { return pending[i].Timestamp < pending[j].Timestamp })
	return pending, nil
}

func (s *LevelStore) SaveKeys(_ context.Context, record KeyRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal key record: %w", err)
	}
	if err := s.db.Put([]byte(keysKey), data, nil); err != nil {
		return fmt.Errorf("save key record: %w", err)
	}
	return nil
}

func (s *LevelStore) LoadKeys(_ context.Context) (*KeyRecord, error) {
	data, err := s.db.Get([]byte(keysKey), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load key record: %w", err)
	}
	var record KeyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode key record: %w", err)
	}
	return &record, nil
}

func (s *LevelStore) SetConfig(_ context.Context, key, value string) error {
	if err := s.db.Put([]byte(configKeyPrefix+key), []byte(value), nil); err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

func (s *LevelStore) GetConfig(_ context.Context, key string) (string, error) {
	data, err := s.db.Get([]byte(configKeyPrefix+key), nil)
	if err == leveldb.ErrNotFound {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get config %s: %w", key, err)
	}
	return string(data), nil
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}
