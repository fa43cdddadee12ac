package dms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEntryNotFound is returned when a media-server entry does not exist.
var ErrEntryNotFound = errors.New("dms: entry not found")

// ServerEntry is a persisted media-server configuration entry. Entries
// survive restarts so sources reconnect without waiting for discovery.
type ServerEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	USN       string    `json:"usn"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntryRepository defines the interface for media-server entry persistence.
type EntryRepository interface {
	// Upsert inserts the entry or, when its USN is already known, updates
	// the stored name and location in place (keeping the original ID).
	Upsert(ctx context.Context, entry *ServerEntry) error

	// GetByUSN retrieves an entry by the server's USN.
	// Returns ErrEntryNotFound if no entry exists.
	GetByUSN(ctx context.Context, usn string) (*ServerEntry, error)

	// List retrieves all entries ordered by name.
	List(ctx context.Context) ([]ServerEntry, error)

	// UpdateLocation stores the last known description URL for an entry.
	UpdateLocation(ctx context.Context, id, location string) error

	// Delete removes an entry by ID.
	// Returns ErrEntryNotFound if the entry does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteEntryRepository implements EntryRepository using SQLite.
type SQLiteEntryRepository struct {
	db *sql.DB
}

// NewSQLiteEntryRepository creates a new SQLite-backed entry repository.
func NewSQLiteEntryRepository(db *sql.DB) *SQLiteEntryRepository {
	return &SQLiteEntryRepository{db: db}
}

// Upsert inserts or refreshes the entry for its USN.
func (r *SQLiteEntryRepository) Upsert(ctx context.Context, entry *ServerEntry) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO media_servers (id, name, usn, location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (usn) DO UPDATE SET
			name = excluded.name,
			location = excluded.location,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Name,
		entry.USN,
		nullableString(entry.Location),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting media server: %w", err)
	}
	return nil
}

// GetByUSN retrieves an entry by the server's USN.
func (r *SQLiteEntryRepository) GetByUSN(ctx context.Context, usn string) (*ServerEntry, error) {
	query := `
		SELECT id, name, usn, location, created_at, updated_at
		FROM media_servers
		WHERE usn = ?`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, usn))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("querying media server by usn: %w", err)
	}
	return entry, nil
}

// List retrieves all entries ordered by name.
func (r *SQLiteEntryRepository) List(ctx context.Context) ([]ServerEntry, error) {
	query := `
		SELECT id, name, usn, location, created_at, updated_at
		FROM media_servers
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying media servers: %w", err)
	}
	defer rows.Close()

	var result []ServerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating media servers: %w", err)
	}
	return result, nil
}

// UpdateLocation stores the last known description URL for an entry.
func (r *SQLiteEntryRepository) UpdateLocation(ctx context.Context, id, location string) error {
	query := `
		UPDATE media_servers
		SET location = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		nullableString(location),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating media server location: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Delete removes an entry by ID.
func (r *SQLiteEntryRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM media_servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting media server: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*ServerEntry, error) {
	var entry ServerEntry
	var location sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&entry.ID, &entry.Name, &entry.USN, &location, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	entry.Location = location.String

	var parseErr error
	entry.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	entry.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	return &entry, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: strings.TrimSpace(s) != ""}
}
