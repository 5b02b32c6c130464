package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"wallet-score/internal/domain"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates no record exists for the wallet.
	ErrNotFound = errors.New("storage: record not found")
)

const (
	// Serialises version assignment per wallet within the transaction.
	recordLockSQL = `SELECT pg_advisory_xact_lock(hashtext($1));`

	insertRecordSQL = `INSERT INTO scoring_records (
        id,
        request_id,
        request_address,
        address,
        chain,
        chain_id,
        score_type,
        score,
        minted_score,
        version,
        stats
    )
    SELECT $1::uuid, $2::text, $3::text, $4::text, $5::text, $6::bigint, $7::text, $8::numeric, $9::integer,
        COALESCE(MAX(version), 0) + 1,
        $10::jsonb
    FROM scoring_records
    WHERE address = $4::text AND chain = $5::text
    RETURNING version, created_at;`

	recordColumns = `id,
        request_id,
        request_address,
        address,
        chain,
        chain_id,
        score_type,
        score::text,
        minted_score,
        version,
        stats,
        created_at`

	latestRecordSQL = `SELECT ` + recordColumns + `
    FROM scoring_records
    WHERE address = $1 AND chain = $2
    ORDER BY version DESC
    LIMIT 1;`

	listRecordsSQL = `SELECT ` + recordColumns + `
    FROM scoring_records
    WHERE address = $1 AND chain = $2
    ORDER BY version DESC
    LIMIT $3;`

	listRecentRecordsSQL = `SELECT ` + recordColumns + `
    FROM scoring_records
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RecordStore defines operations for scoring record persistence.
type RecordStore interface {
	SaveScoringRecord(ctx context.Context, rec ScoringRecord) (ScoringRecord, error)
	LatestScoringRecord(ctx context.Context, address, chain string) (ScoringRecord, error)
	ListScoringRecords(ctx context.Context, address, chain string, limit int) ([]ScoringRecord, error)
	ListRecentRecords(ctx context.Context, limit int) ([]ScoringRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

var (
	_ RecordStore    = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

// Store persists scoring records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// The session lock dies with the connection if this fails.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// SaveScoringRecord inserts rec with the next version for its wallet and
// returns it with ID, Version and CreatedAt filled in.
func (s *Store) SaveScoringRecord(ctx context.Context, rec ScoringRecord) (ScoringRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return ScoringRecord{}, err
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Address = strings.ToLower(rec.Address)

	statsJSON, err := json.Marshal(rec.Stats)
	if err != nil {
		return ScoringRecord{}, fmt.Errorf("encode stats: %w", err)
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, recordLockSQL, rec.Chain+":"+rec.Address); err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		return tx.QueryRow(ctx, insertRecordSQL,
			rec.ID,
			rec.RequestID,
			rec.RequestAddress,
			rec.Address,
			rec.Chain,
			int64(rec.ChainID),
			string(rec.ScoreType),
			decimal.NewFromFloat(rec.Score).String(),
			int32(rec.MintedScore),
			statsJSON,
		).Scan(&rec.Version, &rec.CreatedAt)
	})
	if err != nil {
		return ScoringRecord{}, fmt.Errorf("save scoring record: %w", err)
	}
	return rec, nil
}

// LatestScoringRecord returns the highest version for the wallet, or ErrNotFound.
func (s *Store) LatestScoringRecord(ctx context.Context, address, chain string) (ScoringRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return ScoringRecord{}, err
	}

	rows, err := pool.Query(ctx, latestRecordSQL, strings.ToLower(address), chain)
	if err != nil {
		return ScoringRecord{}, fmt.Errorf("latest scoring record: %w", err)
	}
	records, err := collectRecords(rows, 1)
	if err != nil {
		return ScoringRecord{}, err
	}
	if len(records) == 0 {
		return ScoringRecord{}, ErrNotFound
	}
	return records[0], nil
}

// ListScoringRecords lists the wallet's records, newest version first.
func (s *Store) ListScoringRecords(ctx context.Context, address, chain string, limit int) ([]ScoringRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecordsSQL, strings.ToLower(address), chain, limit)
	if err != nil {
		return nil, fmt.Errorf("list scoring records: %w", err)
	}
	return collectRecords(rows, limit)
}

// ListRecentRecords lists the most recent records across all wallets.
func (s *Store) ListRecentRecords(ctx context.Context, limit int) ([]ScoringRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentRecordsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent records: %w", err)
	}
	return collectRecords(rows, limit)
}

func collectRecords(rows pgx.Rows, capacity int) ([]ScoringRecord, error) {
	defer rows.Close()

	if capacity < 0 {
		capacity = 0
	}
	records := make([]ScoringRecord, 0, capacity)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanRecord(rows pgx.Rows) (ScoringRecord, error) {
	var (
		rec       ScoringRecord
		chainID   int64
		scoreType string
		scoreStr  string
		minted    int32
		statsJSON []byte
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.RequestID,
		&rec.RequestAddress,
		&rec.Address,
		&rec.Chain,
		&chainID,
		&scoreType,
		&scoreStr,
		&minted,
		&rec.Version,
		&statsJSON,
		&rec.CreatedAt,
	); err != nil {
		return ScoringRecord{}, err
	}

	score, err := decimal.NewFromString(scoreStr)
	if err != nil {
		return ScoringRecord{}, fmt.Errorf("parse score: %w", err)
	}
	rec.Score = score.InexactFloat64()
	rec.ChainID = uint64(chainID)
	rec.ScoreType = domain.ScoreType(scoreType)
	rec.MintedScore = uint16(minted)

	if err := json.Unmarshal(statsJSON, &rec.Stats); err != nil {
		return ScoringRecord{}, fmt.Errorf("decode stats: %w", err)
	}
	return rec, nil
}
