package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/brojonat/solapi/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/schema.sql
var schemaSQL string

// Transfer statuses. finalized and failed are terminal.
const (
	StatusSubmitted = "submitted"
	StatusConfirmed = "confirmed"
	StatusFinalized = "finalized"
	StatusFailed    = "failed"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

var (
	ErrNotFound     = errors.New("transfer not found")
	ErrDuplicateKey = errors.New("transfer already recorded")
)

const pgErrUniqueViolation = "23505"

// Store provides database operations for the transfer audit log.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// EnsureSchema creates the transfers table and its indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Transfer is a transfer submitted through the gateway.
type Transfer struct {
	Signature   string
	FromAddress string
	ToAddress   string
	Lamports    uint64
	Memo        *string
	Status      string
	Error       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateTransferParams contains the parameters for recording a transfer.
type CreateTransferParams struct {
	Signature   string
	FromAddress string
	ToAddress   string
	Lamports    uint64
	Memo        *string
	Status      string // defaults to submitted
	Error       *string
}

// ListTransfersParams filters and paginates ListTransfers. An empty Address
// lists every transfer; otherwise transfers sent from or to Address are returned.
type ListTransfersParams struct {
	Address string
	Limit   int32
	Offset  int32
}

const transferColumns = `signature, from_address, to_address, lamports, memo, status, error, created_at, updated_at`

// CreateTransfer records a newly submitted transfer.
func (s *Store) CreateTransfer(ctx context.Context, params CreateTransferParams) (t *Transfer, err error) {
	defer s.observe("create", time.Now(), &err)

	if params.Lamports == 0 || params.Lamports > math.MaxInt64 {
		return nil, fmt.Errorf("lamports out of range: %d", params.Lamports)
	}
	status := params.Status
	if status == "" {
		status = StatusSubmitted
	}
	if !validStatus(status) {
		return nil, fmt.Errorf("invalid transfer status %q", status)
	}

	query := `
		INSERT INTO transfers (signature, from_address, to_address, lamports, memo, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + transferColumns

	row := s.pool.QueryRow(ctx, query,
		params.Signature,
		params.FromAddress,
		params.ToAddress,
		int64(params.Lamports),
		params.Memo,
		status,
		params.Error,
	)
	t, err = scanTransfer(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, params.Signature)
		}
		return nil, fmt.Errorf("insert transfer: %w", err)
	}
	return t, nil
}

// UpdateTransferStatus moves a transfer to status. Transfers already in a
// terminal status are returned unchanged.
func (s *Store) UpdateTransferStatus(ctx context.Context, signature, status string, errMsg *string) (t *Transfer, err error) {
	defer s.observe("update_status", time.Now(), &err)

	if !validStatus(status) {
		return nil, fmt.Errorf("invalid transfer status %q", status)
	}

	query := `
		UPDATE transfers
		SET status = $2, error = $3, updated_at = NOW()
		WHERE signature = $1 AND status NOT IN ('finalized', 'failed')
		RETURNING ` + transferColumns

	t, err = scanTransfer(s.pool.QueryRow(ctx, query, signature, status, errMsg))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update transfer status: %w", err)
	}

	// Either unknown or already terminal.
	t, err = s.getTransfer(ctx, signature)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTransfer returns the transfer recorded under signature, or ErrNotFound.
func (s *Store) GetTransfer(ctx context.Context, signature string) (t *Transfer, err error) {
	defer s.observe("get", time.Now(), &err)
	return s.getTransfer(ctx, signature)
}

func (s *Store) getTransfer(ctx context.Context, signature string) (*Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE signature = $1`

	t, err := scanTransfer(s.pool.QueryRow(ctx, query, signature))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, signature)
		}
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	return t, nil
}

// ListTransfers returns transfers newest first.
func (s *Store) ListTransfers(ctx context.Context, params ListTransfersParams) (out []*Transfer, err error) {
	defer s.observe("list", time.Now(), &err)

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE $1 = '' OR from_address = $1 OR to_address = $1
		ORDER BY created_at DESC, signature ASC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, params.Address, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	out = []*Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return out, nil
}

// ListPendingTransfers returns transfers that have not reached a terminal status,
// oldest first.
func (s *Store) ListPendingTransfers(ctx context.Context, limit int32) (out []*Transfer, err error) {
	defer s.observe("list_pending", time.Now(), &err)

	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE status IN ('submitted', 'confirmed')
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending transfers: %w", err)
	}
	defer rows.Close()

	out = []*Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) observe(operation string, start time.Time, err *error) {
	var e error
	if err != nil {
		e = *err
	}
	if errors.Is(e, ErrNotFound) {
		e = nil
	}
	s.metrics.RecordDBQuery(operation, "transfers", time.Since(start).Seconds(), e)
}

func scanTransfer(row pgx.Row) (*Transfer, error) {
	var t Transfer
	var lamports int64
	if err := row.Scan(
		&t.Signature,
		&t.FromAddress,
		&t.ToAddress,
		&lamports,
		&t.Memo,
		&t.Status,
		&t.Error,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Lamports = uint64(lamports)
	return &t, nil
}

func validStatus(status string) bool {
	switch status {
	case StatusSubmitted, StatusConfirmed, StatusFinalized, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether status is final.
func IsTerminal(status string) bool {
	return status == StatusFinalized || status == StatusFailed
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
