package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"envledger/internal/models"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresStore implements Store on PostgreSQL. Blocks and pending
// transactions are stored as JSONB documents with the lookup columns
// lifted out; current_hash carries a unique index.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS blocks (
//	    block_number INTEGER PRIMARY KEY,
//	    current_hash TEXT NOT NULL UNIQUE,
//	    block_type   TEXT NOT NULL,
//	    doc          JSONB NOT NULL,
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE TABLE IF NOT EXISTS pending_transactions (
//	    id         TEXT PRIMARY KEY,
//	    tx_type    TEXT NOT NULL,
//	    ts         TEXT NOT NULL,
//	    doc        JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE TABLE IF NOT EXISTS crypto_keys (
//	    facility_id TEXT PRIMARY KEY,
//	    private_key TEXT NOT NULL,
//	    public_key  TEXT NOT NULL,
//	    created_at  TEXT NOT NULL
//	);
//	CREATE TABLE IF NOT EXISTS ledger_config (
//	    key   TEXT PRIMARY KEY,
//	    value TEXT NOT NULL
//	);
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// OpenPostgresStore connects with the given DSN.
func OpenPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db, logger), nil
}

func (s *PostgresStore) SaveBlock(ctx context.Context, block models.Block) error {
	doc, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("marshal block %d: %w", block.BlockNumber, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blocks (block_number, current_hash, block_type, doc)
		VALUES ($1, $2, $3, $4)`,
		block.BlockNumber, block.CurrentHash, string(block.BlockType), doc)
	if err != nil {
		return fmt.Errorf("save block %d: %w", block.BlockNumber, err)
	}
	return nil
}

func (s *PostgresStore) GetBlock(ctx context.Context, blockNumber int) (*models.Block, error) {
	return s.scanBlock(s.db.QueryRowContext(ctx,
		`SELECT doc FROM blocks WHERE block_number = $1`, blockNumber))
}

func (s *PostgresStore) GetBlockByHash(ctx context.Context, hash string) (*models.Block, error) {
	return s.scanBlock(s.db.QueryRowContext(ctx,
		`SELECT doc FROM blocks WHERE current_hash = $1`, hash))
}

func (s *PostgresStore) scanBlock(row *sql.Row) (*models.Block, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan block: %w", err)
	}
	var block models.Block
	if err := json.Unmarshal(doc, &block); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return &block, nil
}

func (s *PostgresStore) LoadChain(ctx context.Context) ([]models.Block, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM blocks ORDER BY block_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	defer rows.Close()

	var chain []models.Block
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan chain row: %w", err)
		}
		var block models.Block
		if err := json.Unmarshal(doc, &block); err != nil {
			return nil, fmt.Errorf("decode chain row: %w", err)
		}
		chain = append(chain, block)
	}
	return chain, rows.Err()
}

func (s *PostgresStore) SavePending(ctx context.Context, tx models.Transaction) error {
	doc, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal pending %s: %w", tx.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_transactions (id, tx_type, ts, doc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		tx.ID, string(tx.Type), tx.Timestamp, doc)
	if err != nil {
		return fmt.Errorf("save pending %s: %w", tx.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeletePending(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_transactions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete pending %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) LoadPending(ctx context.Context) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM pending_transactions ORDER BY ts ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("load pending: %w", err)
	}
	defer rows.Close()

	var pending []models.Transaction
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan pending row: %w", err)
		}
		var tx models.Transaction
		if err := json.Unmarshal(doc, &tx); err != nil {
			return nil, fmt.Errorf("decode pending row: %w", err)
		}
		pending = append(pending, tx)
	}
	return pending, rows.Err()
}

func (s *PostgresStore) SaveKeys(ctx context.Context, record KeyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crypto_keys (facility_id, private_key, public_key, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (facility_id) DO UPDATE
		SET private_key = EXCLUDED.private_key, public_key = EXCLUDED.public_key`,
		record.FacilityID, record.PrivateKey, record.PublicKey, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("save key record: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadKeys(ctx context.Context) (*KeyRecord, error) {
	var record KeyRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT facility_id, private_key, public_key, created_at
		FROM crypto_keys LIMIT 1`).
		Scan(&record.FacilityID, &record.PrivateKey, &record.PublicKey, &record.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load key record: %w", err)
	}
	return &record, nil
}

func (s *PostgresStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM ledger_config WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get config %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
