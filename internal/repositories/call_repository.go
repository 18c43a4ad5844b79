package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"relay-service/internal/models"
)

var (
	ErrCallNotFound = errors.New("call not found")
	// ErrCallConflict is returned when a status update loses against a
	// concurrent transition or the record is already terminal.
	ErrCallConflict = errors.New("call not in expected status")
)

// CallRepository abstracts call record persistence.
type CallRepository interface {
	CreateCall(ctx context.Context, callerID int, calleeID int) (models.Call, error)
	GetCall(ctx context.Context, callID int) (models.Call, error)
	UpdateStatus(ctx context.Context, callID int, status string, endedAt *time.Time, fromStatuses ...string) error
}

// CallRepo is a sqlx implementation of CallRepository.
type CallRepo struct {
	db *sqlx.DB
}

// NewCallRepo constructs a CallRepo.
func NewCallRepo(db *sqlx.DB) *CallRepo {
	return &CallRepo{db: db}
}

const callColumns = `id, caller_id, callee_id, status, started_at, ended_at`

// CreateCall inserts a call record in the initiated status.
func (r *CallRepo) CreateCall(ctx context.Context, callerID int, calleeID int) (models.Call, error) {
	var call models.Call
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO calls (caller_id, callee_id, status) VALUES ($1, $2, $3) RETURNING `+callColumns,
		callerID, calleeID, models.CallInitiated).StructScan(&call)
	return call, err
}

// GetCall fetches a call record by id.
func (r *CallRepo) GetCall(ctx context.Context, callID int) (models.Call, error) {
	var call models.Call
	err := r.db.GetContext(ctx, &call, `SELECT `+callColumns+` FROM calls WHERE id=$1`, callID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Call{}, ErrCallNotFound
	}
	return call, err
}

// UpdateStatus transitions a call, guarded by its current status so a
// terminal record can never move again even under concurrent requests.
func (r *CallRepo) UpdateStatus(ctx context.Context, callID int, status string, endedAt *time.Time, fromStatuses ...string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE calls SET status=$2, ended_at=COALESCE($3, ended_at) WHERE id=$1 AND status = ANY($4)`,
		callID, status, endedAt, pq.Array(fromStatuses))
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrCallConflict
	}
	return nil
}
