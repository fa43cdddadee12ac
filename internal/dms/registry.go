package dms

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps media-server sources by stable entry ID and by their
// human-facing source ID. Source IDs are slugs of the display name; a
// collision gets a numeric suffix (music_server, music_server_1, ...).
type Registry struct {
	mu         sync.Mutex
	byEntry    map[string]*Source
	bySourceID map[string]*Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byEntry:    make(map[string]*Source),
		bySourceID: make(map[string]*Source),
	}
}

// Add registers source and assigns it a source ID derived from its name.
// Adding an entry ID twice is an error.
func (r *Registry) Add(source *Source) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entryID := source.EntryID()
	if _, exists := r.byEntry[entryID]; exists {
		return "", fmt.Errorf("dms: entry %q already registered", entryID)
	}

	sourceID := r.allocateSourceIDLocked(source.Name())
	r.byEntry[entryID] = source
	r.bySourceID[sourceID] = source
	source.setIdentity(sourceID, "")
	return sourceID, nil
}

// Remove deregisters the source for entryID and returns it, or nil when
// the entry is unknown.
func (r *Registry) Remove(entryID string) *Source {
	r.mu.Lock()
	defer r.mu.Unlock()

	source, ok := r.byEntry[entryID]
	if !ok {
		return nil
	}
	delete(r.byEntry, entryID)
	delete(r.bySourceID, source.ID())
	source.setIdentity("", "")
	return source
}

// Rename changes a source's display name and reallocates its source ID
// from the new name.
func (r *Registry) Rename(entryID, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	source, ok := r.byEntry[entryID]
	if !ok {
		return "", fmt.Errorf("%w: entry %q", ErrUnknownSource, entryID)
	}
	delete(r.bySourceID, source.ID())
	sourceID := r.allocateSourceIDLocked(name)
	r.bySourceID[sourceID] = source
	source.setIdentity(sourceID, name)
	return sourceID, nil
}

// SourceByID returns the source answering to sourceID.
func (r *Registry) SourceByID(sourceID string) (*Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	source, ok := r.bySourceID[sourceID]
	return source, ok
}

// SourceByEntry returns the source registered under entryID.
func (r *Registry) SourceByEntry(entryID string) (*Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	source, ok := r.byEntry[entryID]
	return source, ok
}

// All returns every registered source ordered by source ID.
func (r *Registry) All() []*Source {
	r.mu.Lock()
	defer r.mu.Unlock()

	sources := make([]*Source, 0, len(r.bySourceID))
	ids := make([]string, 0, len(r.bySourceID))
	for id := range r.bySourceID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sources = append(sources, r.bySourceID[id])
	}
	return sources
}

// Count returns the number of registered sources.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byEntry)
}

func (r *Registry) allocateSourceIDLocked(name string) string {
	base := slugify(name)
	if base == "" {
		base = "server"
	}
	if _, taken := r.bySourceID[base]; !taken {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if _, taken := r.bySourceID[candidate]; !taken {
			return candidate
		}
	}
}

// slugify lowercases name and collapses every run of non-alphanumeric
// characters into a single underscore.
func slugify(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
