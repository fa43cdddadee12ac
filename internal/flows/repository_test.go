package flows

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/gray-logic-discovery/internal/ssdp"
)

// setupTestDB creates an in-memory SQLite database with the flows table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE discovery_flows (
			id          TEXT PRIMARY KEY,
			domain      TEXT NOT NULL,
			unique_id   TEXT NOT NULL,
			info        TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			UNIQUE (domain, unique_id)
		);
		CREATE INDEX idx_discovery_flows_domain ON discovery_flows(domain);
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

func testFlow(id, domain, usn string) *Flow {
	return &Flow{
		ID:       id,
		Domain:   domain,
		UniqueID: usn,
		Info: ssdp.ServiceInfo{
			USN:      usn,
			ST:       "urn:schemas-upnp-org:device:MediaServer:1",
			Location: "http://10.0.0.5:8200/rootDesc.xml",
			Headers: ssdp.NewHeaders(map[string]string{
				"usn": usn,
				"st":  "urn:schemas-upnp-org:device:MediaServer:1",
			}),
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestRepositoryCreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	flow := testFlow("f1", "dlna_dms", "uuid:abc::urn:x")
	if err := repo.Create(ctx, flow); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "f1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Domain != "dlna_dms" || got.UniqueID != "uuid:abc::urn:x" {
		t.Errorf("flow = %+v", got)
	}
	if got.Info.Location != flow.Info.Location {
		t.Errorf("Info.Location = %q", got.Info.Location)
	}
	if got.Info.Headers.Get("ST") != "urn:schemas-upnp-org:device:MediaServer:1" {
		t.Errorf("Info.Headers lost in round-trip: %+v", got.Info.Headers)
	}
	if !got.CreatedAt.Equal(flow.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, flow.CreatedAt)
	}
}

func TestRepositoryCreateDuplicate(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, testFlow("f1", "dlna_dms", "uuid:abc::urn:x")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := repo.Create(ctx, testFlow("f2", "dlna_dms", "uuid:abc::urn:x"))
	if !errors.Is(err, ErrFlowExists) {
		t.Errorf("Create(duplicate) error = %v, want ErrFlowExists", err)
	}

	// Same USN under a different domain is a distinct flow.
	if err := repo.Create(ctx, testFlow("f3", "other_domain", "uuid:abc::urn:x")); err != nil {
		t.Errorf("Create(other domain) error = %v", err)
	}
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrFlowNotFound) {
		t.Errorf("GetByID() error = %v, want ErrFlowNotFound", err)
	}
}

func TestRepositoryList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	older := testFlow("f1", "dlna_dms", "uuid:a::urn:x")
	older.CreatedAt = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	newer := testFlow("f2", "acme_hub", "uuid:b::urn:x")
	newer.CreatedAt = time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)
	for _, flow := range []*Flow{older, newer} {
		if err := repo.Create(ctx, flow); err != nil {
			t.Fatalf("Create(%s) error = %v", flow.ID, err)
		}
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 || all[0].ID != "f2" || all[1].ID != "f1" {
		t.Errorf("List() order = %+v", all)
	}

	byDomain, err := repo.ListByDomain(ctx, "dlna_dms")
	if err != nil {
		t.Fatalf("ListByDomain() error = %v", err)
	}
	if len(byDomain) != 1 || byDomain[0].ID != "f1" {
		t.Errorf("ListByDomain() = %+v", byDomain)
	}
}

func TestRepositoryDelete(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, testFlow("f1", "dlna_dms", "uuid:a::urn:x")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Delete(ctx, "f1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, "f1"); !errors.Is(err, ErrFlowNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrFlowNotFound", err)
	}
}
