package flows

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-discovery/internal/ssdp"
)

// Repository defines the interface for flow persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Create inserts a new flow.
	// Returns ErrFlowExists when the (domain, unique_id) pair already has one.
	Create(ctx context.Context, flow *Flow) error

	// GetByID retrieves a flow by its identifier.
	// Returns ErrFlowNotFound if the flow does not exist.
	GetByID(ctx context.Context, id string) (*Flow, error)

	// List retrieves all flows, newest first.
	List(ctx context.Context) ([]Flow, error)

	// ListByDomain retrieves all flows for an integration domain, newest first.
	ListByDomain(ctx context.Context, domain string) ([]Flow, error)

	// Delete removes a flow by ID.
	// Returns ErrFlowNotFound if the flow does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new flow.
func (r *SQLiteRepository) Create(ctx context.Context, flow *Flow) error {
	info, err := json.Marshal(flow.Info)
	if err != nil {
		return fmt.Errorf("marshalling flow info: %w", err)
	}

	query := `
		INSERT INTO discovery_flows (id, domain, unique_id, info, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID,
		flow.Domain,
		flow.UniqueID,
		string(info),
		flow.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrFlowExists
		}
		return fmt.Errorf("inserting flow: %w", err)
	}
	return nil
}

// GetByID retrieves a flow by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Flow, error) {
	query := `
		SELECT id, domain, unique_id, info, created_at
		FROM discovery_flows
		WHERE id = ?`

	flow, err := scanFlow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFlowNotFound
		}
		return nil, fmt.Errorf("querying flow by id: %w", err)
	}
	return flow, nil
}

// List retrieves all flows, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Flow, error) {
	query := `
		SELECT id, domain, unique_id, info, created_at
		FROM discovery_flows
		ORDER BY created_at DESC, id`

	return r.queryFlows(ctx, query)
}

// ListByDomain retrieves all flows for an integration domain, newest first.
func (r *SQLiteRepository) ListByDomain(ctx context.Context, domain string) ([]Flow, error) {
	query := `
		SELECT id, domain, unique_id, info, created_at
		FROM discovery_flows
		WHERE domain = ?
		ORDER BY created_at DESC, id`

	return r.queryFlows(ctx, query, domain)
}

// Delete removes a flow by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM discovery_flows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting flow: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrFlowNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryFlows(ctx context.Context, query string, args ...any) ([]Flow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying flows: %w", err)
	}
	defer rows.Close()

	var result []Flow
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *flow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating flows: %w", err)
	}
	return result, nil
}

// scanner abstracts sql.Row and sql.Rows for scanFlow.
type scanner interface {
	Scan(dest ...any) error
}

func scanFlow(row scanner) (*Flow, error) {
	var flow Flow
	var info, createdAt string

	if err := row.Scan(&flow.ID, &flow.Domain, &flow.UniqueID, &info, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(info), &flow.Info); err != nil {
		return nil, fmt.Errorf("parsing flow info: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	flow.CreatedAt = parsed

	// Service infos round-trip through JSON; keep header lookups working.
	if flow.Info.Headers == nil {
		flow.Info.Headers = ssdp.Headers{}
	}
	return &flow, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
