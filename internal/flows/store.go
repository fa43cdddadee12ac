package flows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-discovery/internal/ssdp"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store provides flow creation with an in-memory seen-set in front of the
// repository. Creating a flow for a known (domain, unique_id) pair is a
// no-op, which the scanner relies on: it calls CreateFlow for every
// matched domain on every alive advertisement.
//
// All public methods are thread-safe.
type Store struct {
	repo   Repository
	logger Logger

	mu       sync.Mutex
	seen     map[string]struct{} // domain + "\x00" + unique_id
	onCreate func(Flow)
}

// NewStore creates a flow store backed by repo.
func NewStore(repo Repository) *Store {
	return &Store{
		repo:   repo,
		seen:   make(map[string]struct{}),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetOnCreate registers a callback invoked after each flow is actually
// created. Duplicate CreateFlow calls never fire it. Must be called before
// the store is handed to the scanner.
func (s *Store) SetOnCreate(callback func(Flow)) {
	s.onCreate = callback
}

// RefreshCache loads existing (domain, unique_id) pairs from the
// repository. This should be called on application startup.
func (s *Store) RefreshCache(ctx context.Context) error {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading flows: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{}, len(existing))
	for _, flow := range existing {
		s.seen[seenKey(flow.Domain, flow.UniqueID)] = struct{}{}
	}
	s.logger.Info("flow cache refreshed", "count", len(existing))
	return nil
}

// CreateFlow records a flow for domain keyed by the device's USN.
// Duplicates are no-ops.
func (s *Store) CreateFlow(ctx context.Context, domain string, info ssdp.ServiceInfo) error {
	key := seenKey(domain, info.USN)

	s.mu.Lock()
	if _, ok := s.seen[key]; ok {
		s.mu.Unlock()
		return nil
	}
	// Reserve the key before the insert so concurrent advertisements do
	// not race to create the same flow.
	s.seen[key] = struct{}{}
	s.mu.Unlock()

	flow := &Flow{
		ID:        uuid.NewString(),
		Domain:    domain,
		UniqueID:  info.USN,
		Info:      info,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, flow); err != nil {
		if errors.Is(err, ErrFlowExists) {
			// Already persisted by an earlier run.
			return nil
		}
		s.mu.Lock()
		delete(s.seen, key)
		s.mu.Unlock()
		return fmt.Errorf("creating flow: %w", err)
	}

	s.logger.Info("discovery flow created", "flow_id", flow.ID, "domain", domain, "unique_id", info.USN)
	if s.onCreate != nil {
		s.onCreate(*flow)
	}
	return nil
}

// Flows retrieves all flows, newest first.
func (s *Store) Flows(ctx context.Context) ([]Flow, error) {
	return s.repo.List(ctx)
}

// FlowsByDomain retrieves all flows for an integration domain.
func (s *Store) FlowsByDomain(ctx context.Context, domain string) ([]Flow, error) {
	return s.repo.ListByDomain(ctx, domain)
}

// Flow retrieves a flow by ID.
func (s *Store) Flow(ctx context.Context, id string) (*Flow, error) {
	return s.repo.GetByID(ctx, id)
}

// DeleteFlow removes a flow and frees its (domain, unique_id) pair, so
// the next matching advertisement creates a fresh one.
func (s *Store) DeleteFlow(ctx context.Context, id string) error {
	flow, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.seen, seenKey(flow.Domain, flow.UniqueID))
	s.mu.Unlock()
	return nil
}

func seenKey(domain, uniqueID string) string {
	return domain + "\x00" + uniqueID
}
