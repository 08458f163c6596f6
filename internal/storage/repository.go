package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrInvalidTransition indicates a guarded status update matched no
	// row: either the attempt is unknown or it already left the expected
	// state. Concurrent writers lose here rather than double-apply.
	ErrInvalidTransition = errors.New("storage: attempt not in expected status")
	// ErrAssetNotFound indicates the asset id is unknown.
	ErrAssetNotFound = errors.New("storage: asset not found")
)

const (
	insertAttemptSQL = `INSERT INTO sweep_attempts (
        asset_id,
        source_address,
        destination_address,
        amount,
        status,
        error_reason
    ) VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id, created_at, updated_at;`

	markBroadcastSQL = `UPDATE sweep_attempts
    SET status = 'broadcast', chain_txid = $2, updated_at = now()
    WHERE id = $1 AND status = 'pending';`

	markConfirmedSQL = `UPDATE sweep_attempts
    SET status = 'confirmed', updated_at = now()
    WHERE id = $1 AND status = 'broadcast';`

	markFailedSQL = `UPDATE sweep_attempts
    SET status = 'failed', error_reason = $2, updated_at = now()
    WHERE id = $1 AND status IN ('pending','broadcast');`

	attemptColumns = `a.id, a.asset_id, COALESCE(s.symbol, ''), a.source_address,
        a.destination_address, a.amount, a.status, a.chain_txid,
        a.error_reason, a.created_at, a.updated_at`

	inFlightAttemptSQL = `SELECT ` + attemptColumns + `
    FROM sweep_attempts a
    LEFT JOIN asset_specs s ON s.id = a.asset_id
    WHERE a.asset_id = $1 AND a.status IN ('pending','broadcast')
    LIMIT 1;`

	listBroadcastSQL = `SELECT ` + attemptColumns + `
    FROM sweep_attempts a
    LEFT JOIN asset_specs s ON s.id = a.asset_id
    WHERE a.status = 'broadcast'
    ORDER BY a.updated_at;`

	listStalePendingSQL = `SELECT ` + attemptColumns + `
    FROM sweep_attempts a
    LEFT JOIN asset_specs s ON s.id = a.asset_id
    WHERE a.status = 'pending' AND a.updated_at < $1
    ORDER BY a.updated_at;`

	listRecentAttemptsSQL = `SELECT ` + attemptColumns + `
    FROM sweep_attempts a
    LEFT JOIN asset_specs s ON s.id = a.asset_id
    ORDER BY a.created_at DESC
    LIMIT $1;`

	listAttemptsBetweenSQL = `SELECT ` + attemptColumns + `
    FROM sweep_attempts a
    LEFT JOIN asset_specs s ON s.id = a.asset_id
    WHERE a.created_at >= $1 AND a.created_at < $2
    ORDER BY a.created_at;`

	countAttemptsSQL = `SELECT COUNT(*) FROM sweep_attempts;`

	assetColumns = `id, kind, COALESCE(contract_address, ''), symbol, COALESCE(name, ''),
        decimals, min_transfer_amount, enabled, created_at, updated_at`

	listEnabledAssetsSQL = `SELECT ` + assetColumns + `
    FROM asset_specs
    WHERE enabled
    ORDER BY id;`

	listAssetsSQL = `SELECT ` + assetColumns + `
    FROM asset_specs
    ORDER BY id;`

	getAssetSQL = `SELECT ` + assetColumns + `
    FROM asset_specs
    WHERE id = $1;`

	upsertAssetSQL = `INSERT INTO asset_specs (
        kind, contract_address, symbol, name, decimals, min_transfer_amount, enabled
    ) VALUES ($1,$2,$3,$4,$5,$6,$7)
    ON CONFLICT (kind, contract_address) DO UPDATE
    SET symbol = EXCLUDED.symbol,
        name = EXCLUDED.name,
        min_transfer_amount = EXCLUDED.min_transfer_amount,
        enabled = EXCLUDED.enabled,
        updated_at = now()
    RETURNING id;`

	setAssetEnabledSQL = `UPDATE asset_specs
    SET enabled = $2, updated_at = now()
    WHERE id = $1;`

	setAssetMinTransferSQL = `UPDATE asset_specs
    SET min_transfer_amount = $2, updated_at = now()
    WHERE id = $1;`
)

// Ledger defines the durable sweep attempt operations used by the
// coordinator and confirmation checker.
type Ledger interface {
	InsertAttempt(ctx context.Context, attempt SweepAttempt) (SweepAttempt, error)
	MarkBroadcast(ctx context.Context, id int64, txid string) error
	MarkConfirmed(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	InFlightAttempt(ctx context.Context, assetID int64) (*SweepAttempt, error)
	ListBroadcastAttempts(ctx context.Context) ([]SweepAttempt, error)
	ListStalePendingAttempts(ctx context.Context, cutoff time.Time) ([]SweepAttempt, error)
}

// LedgerReader is the read-only history view exposed to the operator
// surface.
type LedgerReader interface {
	ListRecentAttempts(ctx context.Context, limit int) ([]SweepAttempt, error)
	ListAttemptsBetween(ctx context.Context, from, to time.Time) ([]SweepAttempt, error)
	CountAttempts(ctx context.Context) (int64, error)
}

// AssetStore defines asset registry access. The engine only calls the
// read side; the operator API uses the writes.
type AssetStore interface {
	ListEnabledAssets(ctx context.Context) ([]AssetSpec, error)
	ListAssets(ctx context.Context) ([]AssetSpec, error)
	GetAsset(ctx context.Context, id int64) (AssetSpec, error)
	UpsertAsset(ctx context.Context, asset AssetSpec) (int64, error)
	SetAssetEnabled(ctx context.Context, id int64, enabled bool) error
	SetAssetMinTransfer(ctx context.Context, id int64, amount decimal.Decimal) error
}

// Store aggregates ledger and asset registry access over one pgx pool.
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

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertAttempt records a new attempt. The partial unique index on
// in-flight rows makes a duplicate insert fail rather than silently
// creating a second claim on the asset.
func (s *Store) InsertAttempt(ctx context.Context, attempt SweepAttempt) (SweepAttempt, error) {
	pool, err := s.getPool()
	if err != nil {
		return SweepAttempt{}, err
	}

	var reason interface{}
	if attempt.ErrorReason != nil {
		reason = *attempt.ErrorReason
	}

	row := pool.QueryRow(ctx, insertAttemptSQL,
		attempt.AssetID,
		attempt.SourceAddress,
		attempt.DestinationAddress,
		attempt.Amount.String(),
		string(attempt.Status),
		reason,
	)
	if scanErr := row.Scan(&attempt.ID, &attempt.CreatedAt, &attempt.UpdatedAt); scanErr != nil {
		return SweepAttempt{}, fmt.Errorf("insert sweep attempt: %w", scanErr)
	}
	return attempt, nil
}

// MarkBroadcast transitions pending -> broadcast.
func (s *Store) MarkBroadcast(ctx context.Context, id int64, txid string) error {
	return s.transition(ctx, markBroadcastSQL, id, txid)
}

// MarkConfirmed transitions broadcast -> confirmed.
func (s *Store) MarkConfirmed(ctx context.Context, id int64) error {
	return s.transition(ctx, markConfirmedSQL, id)
}

// MarkFailed transitions pending or broadcast -> failed.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.transition(ctx, markFailedSQL, id, reason)
}

func (s *Store) transition(ctx context.Context, query string, id int64, args ...interface{}) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	params := append([]interface{}{id}, args...)
	cmdTag, execErr := pool.Exec(ctx, query, params...)
	if execErr != nil {
		return fmt.Errorf("update sweep attempt %d: %w", id, execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("attempt %d: %w", id, ErrInvalidTransition)
	}
	return nil
}

// InFlightAttempt returns the pending or broadcast attempt for an asset,
// or nil when the asset has no in-flight attempt.
func (s *Store) InFlightAttempt(ctx context.Context, assetID int64) (*SweepAttempt, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, inFlightAttemptSQL, assetID)
	if queryErr != nil {
		return nil, fmt.Errorf("query in-flight attempt: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	attempt, scanErr := scanAttempt(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &attempt, nil
}

// ListBroadcastAttempts lists attempts awaiting confirmation, oldest
// first.
func (s *Store) ListBroadcastAttempts(ctx context.Context) ([]SweepAttempt, error) {
	return s.listAttempts(ctx, listBroadcastSQL)
}

// ListStalePendingAttempts lists pending attempts last touched before
// cutoff: rows a crashed coordinator left behind.
func (s *Store) ListStalePendingAttempts(ctx context.Context, cutoff time.Time) ([]SweepAttempt, error) {
	return s.listAttempts(ctx, listStalePendingSQL, cutoff)
}

// ListRecentAttempts lists attempts newest first.
func (s *Store) ListRecentAttempts(ctx context.Context, limit int) ([]SweepAttempt, error) {
	return s.listAttempts(ctx, listRecentAttemptsSQL, limit)
}

// ListAttemptsBetween lists attempts created within a window, oldest
// first.
func (s *Store) ListAttemptsBetween(ctx context.Context, from, to time.Time) ([]SweepAttempt, error) {
	return s.listAttempts(ctx, listAttemptsBetweenSQL, from, to)
}

func (s *Store) listAttempts(ctx context.Context, query string, args ...interface{}) ([]SweepAttempt, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list sweep attempts: %w", queryErr)
	}
	defer rows.Close()

	attempts := make([]SweepAttempt, 0)
	for rows.Next() {
		attempt, scanErr := scanAttempt(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		attempts = append(attempts, attempt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return attempts, nil
}

// CountAttempts counts ledger rows.
func (s *Store) CountAttempts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAttemptsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count attempts: %w", scanErr)
	}
	return count, nil
}

// ListEnabledAssets returns the enabled asset snapshot for one polling
// tick. A single query keeps the snapshot consistent against concurrent
// operator edits.
func (s *Store) ListEnabledAssets(ctx context.Context) ([]AssetSpec, error) {
	return s.listAssets(ctx, listEnabledAssetsSQL)
}

// ListAssets returns every asset, enabled or not.
func (s *Store) ListAssets(ctx context.Context) ([]AssetSpec, error) {
	return s.listAssets(ctx, listAssetsSQL)
}

func (s *Store) listAssets(ctx context.Context, query string) ([]AssetSpec, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, query)
	if queryErr != nil {
		return nil, fmt.Errorf("list assets: %w", queryErr)
	}
	defer rows.Close()

	assets := make([]AssetSpec, 0)
	for rows.Next() {
		asset, scanErr := scanAsset(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		assets = append(assets, asset)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return assets, nil
}

// GetAsset fetches one asset by id.
func (s *Store) GetAsset(ctx context.Context, id int64) (AssetSpec, error) {
	pool, err := s.getPool()
	if err != nil {
		return AssetSpec{}, err
	}
	rows, queryErr := pool.Query(ctx, getAssetSQL, id)
	if queryErr != nil {
		return AssetSpec{}, fmt.Errorf("get asset: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return AssetSpec{}, rows.Err()
		}
		return AssetSpec{}, ErrAssetNotFound
	}
	return scanAsset(rows)
}

// UpsertAsset registers or refreshes an asset keyed by (kind, contract).
func (s *Store) UpsertAsset(ctx context.Context, asset AssetSpec) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var id int64
	scanErr := pool.QueryRow(ctx, upsertAssetSQL,
		string(asset.Kind),
		asset.ContractAddress,
		asset.Symbol,
		asset.Name,
		asset.Decimals,
		asset.MinTransferAmount.String(),
		asset.Enabled,
	).Scan(&id)
	if scanErr != nil {
		return 0, fmt.Errorf("upsert asset: %w", scanErr)
	}
	return id, nil
}

// SetAssetEnabled flips the enabled flag.
func (s *Store) SetAssetEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.updateAsset(ctx, setAssetEnabledSQL, id, enabled)
}

// SetAssetMinTransfer updates the minimum transfer threshold (minor
// units).
func (s *Store) SetAssetMinTransfer(ctx context.Context, id int64, amount decimal.Decimal) error {
	return s.updateAsset(ctx, setAssetMinTransferSQL, id, amount.String())
}

func (s *Store) updateAsset(ctx context.Context, query string, id int64, value interface{}) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, query, id, value)
	if execErr != nil {
		return fmt.Errorf("update asset %d: %w", id, execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func scanAttempt(rows pgx.Rows) (SweepAttempt, error) {
	var (
		attempt   SweepAttempt
		amountStr string
		status    string
		txid      sql.NullString
		reason    sql.NullString
	)

	if err := rows.Scan(
		&attempt.ID,
		&attempt.AssetID,
		&attempt.AssetSymbol,
		&attempt.SourceAddress,
		&attempt.DestinationAddress,
		&amountStr,
		&status,
		&txid,
		&reason,
		&attempt.CreatedAt,
		&attempt.UpdatedAt,
	); err != nil {
		return SweepAttempt{}, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return SweepAttempt{}, fmt.Errorf("parse attempt amount: %w", err)
	}
	attempt.Amount = amount
	attempt.Status = AttemptStatus(status)

	if txid.Valid {
		value := txid.String
		attempt.ChainTxID = &value
	}
	if reason.Valid {
		value := reason.String
		attempt.ErrorReason = &value
	}
	return attempt, nil
}

func scanAsset(rows pgx.Rows) (AssetSpec, error) {
	var (
		asset     AssetSpec
		kind      string
		amountStr string
	)

	if err := rows.Scan(
		&asset.ID,
		&kind,
		&asset.ContractAddress,
		&asset.Symbol,
		&asset.Name,
		&asset.Decimals,
		&amountStr,
		&asset.Enabled,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	); err != nil {
		return AssetSpec{}, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return AssetSpec{}, fmt.Errorf("parse min transfer amount: %w", err)
	}
	asset.Kind = AssetKind(kind)
	asset.MinTransferAmount = amount
	return asset, nil
}
