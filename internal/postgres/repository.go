package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/steam-achievements/internal/config"
	"github.com/steam-achievements/internal/domain"
)

// Repository provides PostgreSQL-based access to reconciled mint records
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS mint_records (
			id BIGSERIAL PRIMARY KEY,
			owner_address VARCHAR(42) NOT NULL,
			token_id VARCHAR(66) NOT NULL,
			app_id BIGINT NOT NULL,
			achievement_id VARCHAR(128) NOT NULL,
			block_number BIGINT NOT NULL DEFAULT 0,
			tx_hash VARCHAR(66) NOT NULL,
			log_index INT NOT NULL DEFAULT 0,
			pending BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(tx_hash, log_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mint_records_owner ON mint_records(owner_address)`,
		`CREATE INDEX IF NOT EXISTS idx_mint_records_token ON mint_records(owner_address, token_id)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// UpsertMintEvents persists decoded mint events. Idempotent on
// (tx_hash, log_index): redelivering the same event never duplicates state,
// which is what lets the watcher retry a whole block window safely.
func (r *Repository) UpsertMintEvents(ctx context.Context, events []domain.MintEvent) (int, error) {
	inserted := 0
	for _, ev := range events {
		// A locally recorded submission is a pending placeholder for the same
		// transaction; resolve it in place rather than inserting a sibling row.
		tag, err := r.pool.Exec(ctx,
			`UPDATE mint_records
			SET block_number = $1, log_index = $2, pending = FALSE
			WHERE tx_hash = $3 AND pending`,
			int64(ev.BlockNumber), int32(ev.LogIndex), ev.TxHash,
		)
		if err != nil {
			return inserted, fmt.Errorf("resolving pending mint %s: %w", ev.TxHash, err)
		}
		if tag.RowsAffected() > 0 {
			inserted++
			continue
		}

		tag, err = r.pool.Exec(ctx,
			`INSERT INTO mint_records
				(owner_address, token_id, app_id, achievement_id, block_number, tx_hash, log_index)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (tx_hash, log_index)
			DO UPDATE SET block_number = EXCLUDED.block_number`,
			ev.OwnerAddress, ev.TokenID, int64(ev.AppID), ev.AchievementID,
			int64(ev.BlockNumber), ev.TxHash, int32(ev.LogIndex),
		)
		if err != nil {
			return inserted, fmt.Errorf("upserting mint event %s/%d: %w", ev.TxHash, ev.LogIndex, err)
		}
		if tag.RowsAffected() > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// RecordMintSubmission records a locally submitted mint as a pending row
// before the watcher has reconciled it from the chain. When the watcher sees
// the emitted event, UpsertMintEvents resolves the row in place with the real
// block number and log index.
func (r *Repository) RecordMintSubmission(ctx context.Context, owner, tokenID string, appID uint32, achievementID, txHash string) error {
	// The watcher may have reconciled the event already; never add a pending
	// placeholder next to an existing row for the same transaction.
	_, err := r.pool.Exec(ctx,
		`INSERT INTO mint_records
			(owner_address, token_id, app_id, achievement_id, tx_hash, pending)
		SELECT $1, $2, $3, $4, $5, TRUE
		WHERE NOT EXISTS (SELECT 1 FROM mint_records WHERE tx_hash = $5)`,
		owner, tokenID, int64(appID), achievementID, txHash,
	)
	if err != nil {
		return fmt.Errorf("recording mint submission: %w", err)
	}
	return nil
}

// HasMint reports whether a mint record exists for (owner, tokenID). Used for
// remint detection before submitting a duplicate the contract would reject.
func (r *Repository) HasMint(ctx context.Context, owner, tokenID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM mint_records WHERE owner_address = $1 AND token_id = $2)`,
		owner, tokenID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking mint existence: %w", err)
	}
	return exists, nil
}

// ListByOwner returns all mint records for an owner address, newest block first
func (r *Repository) ListByOwner(ctx context.Context, owner string) ([]domain.MintRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT owner_address, token_id, app_id, achievement_id, block_number, tx_hash, log_index, pending, created_at
		FROM mint_records
		WHERE owner_address = $1
		ORDER BY block_number DESC, created_at DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("listing mints by owner: %w", err)
	}
	defer rows.Close()

	var records []domain.MintRecord
	for rows.Next() {
		var rec domain.MintRecord
		var appID, blockNumber int64
		var logIndex int32
		if err := rows.Scan(&rec.OwnerAddress, &rec.TokenID, &appID, &rec.AchievementID,
			&blockNumber, &rec.TxHash, &logIndex, &rec.Pending, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning mint record: %w", err)
		}
		rec.AppID = uint32(appID)
		rec.BlockNumber = uint64(blockNumber)
		rec.LogIndex = uint32(logIndex)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mint records: %w", err)
	}
	return collapseResolved(records), nil
}

// collapseResolved drops a pending submission row whose transaction also has a
// reconciled event row, so one mint never lists twice. Reconciled rows are
// kept as-is; a transaction carrying several mint logs keeps one row per log.
func collapseResolved(records []domain.MintRecord) []domain.MintRecord {
	reconciled := make(map[string]bool, len(records))
	for _, rec := range records {
		if !rec.Pending {
			reconciled[rec.TxHash] = true
		}
	}

	out := make([]domain.MintRecord, 0, len(records))
	for _, rec := range records {
		if rec.Pending && reconciled[rec.TxHash] {
			continue
		}
		out = append(out, rec)
	}
	return out
}
