package dms

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the media_servers
// table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE media_servers (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			usn         TEXT NOT NULL UNIQUE,
			location    TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestEntryRepositoryUpsert(t *testing.T) {
	repo := NewSQLiteEntryRepository(setupTestDB(t))
	ctx := context.Background()

	entry := &ServerEntry{ID: "e1", Name: "NAS", USN: testUSN, Location: "http://10.0.0.5/d.xml"}
	if err := repo.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.GetByUSN(ctx, testUSN)
	if err != nil {
		t.Fatalf("GetByUSN() error = %v", err)
	}
	if got.ID != "e1" || got.Name != "NAS" || got.Location != "http://10.0.0.5/d.xml" {
		t.Errorf("entry = %+v", got)
	}

	// Upserting the same USN with a new ID keeps the original row.
	updated := &ServerEntry{ID: "e2", Name: "NAS Renamed", USN: testUSN, Location: ""}
	if err := repo.Upsert(ctx, updated); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	got, err = repo.GetByUSN(ctx, testUSN)
	if err != nil {
		t.Fatalf("GetByUSN() error = %v", err)
	}
	if got.ID != "e1" {
		t.Errorf("ID = %q, want original e1", got.ID)
	}
	if got.Name != "NAS Renamed" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.Location != "" {
		t.Errorf("Location = %q, want cleared", got.Location)
	}
}

func TestEntryRepositoryGetByUSNNotFound(t *testing.T) {
	repo := NewSQLiteEntryRepository(setupTestDB(t))
	_, err := repo.GetByUSN(context.Background(), "uuid:missing::urn:x")
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("GetByUSN() error = %v, want ErrEntryNotFound", err)
	}
}

func TestEntryRepositoryList(t *testing.T) {
	repo := NewSQLiteEntryRepository(setupTestDB(t))
	ctx := context.Background()

	for _, entry := range []*ServerEntry{
		{ID: "e1", Name: "Zeta", USN: "uuid:z::urn:x"},
		{ID: "e2", Name: "Alpha", USN: "uuid:a::urn:x"},
	} {
		if err := repo.Upsert(ctx, entry); err != nil {
			t.Fatalf("Upsert(%s) error = %v", entry.ID, err)
		}
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 || all[0].Name != "Alpha" || all[1].Name != "Zeta" {
		t.Errorf("List() = %+v", all)
	}
}

func TestEntryRepositoryUpdateLocation(t *testing.T) {
	repo := NewSQLiteEntryRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Upsert(ctx, &ServerEntry{ID: "e1", Name: "NAS", USN: testUSN}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.UpdateLocation(ctx, "e1", "http://10.0.0.7/d.xml"); err != nil {
		t.Fatalf("UpdateLocation() error = %v", err)
	}

	got, err := repo.GetByUSN(ctx, testUSN)
	if err != nil {
		t.Fatalf("GetByUSN() error = %v", err)
	}
	if got.Location != "http://10.0.0.7/d.xml" {
		t.Errorf("Location = %q", got.Location)
	}

	if err := repo.UpdateLocation(ctx, "missing", "x"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("UpdateLocation(missing) error = %v, want ErrEntryNotFound", err)
	}
}

func TestEntryRepositoryDelete(t *testing.T) {
	repo := NewSQLiteEntryRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Upsert(ctx, &ServerEntry{ID: "e1", Name: "NAS", USN: testUSN}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Delete(ctx, "e1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, "e1"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrEntryNotFound", err)
	}
}
