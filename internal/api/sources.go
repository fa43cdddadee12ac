package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-discovery/internal/dms"
)

// SourceSummary is the API representation of a media-server source.
type SourceSummary struct {
	SourceID  string `json:"source_id"`
	Name      string `json:"name"`
	UDN       string `json:"udn"`
	USN       string `json:"usn"`
	Location  string `json:"location,omitempty"`
	Available bool   `json:"available"`
}

func sourceSummary(source *dms.Source) SourceSummary {
	return SourceSummary{
		SourceID:  source.ID(),
		Name:      source.Name(),
		UDN:       source.UDN(),
		USN:       source.USN(),
		Location:  source.Location(),
		Available: source.Available(),
	}
}

// handleListSources returns all registered media-server sources.
func (s *Server) handleListSources(w http.ResponseWriter, _ *http.Request) {
	all := s.sources.All()
	summaries := make([]SourceSummary, 0, len(all))
	for _, source := range all {
		summaries = append(summaries, sourceSummary(source))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sources": summaries,
		"count":   len(summaries),
	})
}

// handleGetSource returns one source by ID.
func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	source, ok := s.sources.SourceByID(chi.URLParam(r, "source_id"))
	if !ok {
		writeNotFound(w, "source not found")
		return
	}
	writeJSON(w, http.StatusOK, sourceSummary(source))
}

// handleRenameSource changes a source's display name; its source ID is
// reallocated from the new name.
func (s *Server) handleRenameSource(w http.ResponseWriter, r *http.Request) {
	source, ok := s.sources.SourceByID(chi.URLParam(r, "source_id"))
	if !ok {
		writeNotFound(w, "source not found")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeBadRequest(w, "name is required")
		return
	}

	if _, err := s.sources.Rename(source.EntryID(), req.Name); err != nil {
		s.logger.Error("renaming source failed", "error", err)
		writeInternalError(w, "renaming source failed")
		return
	}
	writeJSON(w, http.StatusOK, sourceSummary(source))
}

// handleBrowseSource lists media under an identifier. The "identifier"
// query parameter uses the {flag}{payload} scheme; empty browses the root.
func (s *Server) handleBrowseSource(w http.ResponseWriter, r *http.Request) {
	source, ok := s.sources.SourceByID(chi.URLParam(r, "source_id"))
	if !ok {
		writeNotFound(w, "source not found")
		return
	}

	start := time.Now()
	item, err := source.BrowseMedia(r.Context(), r.URL.Query().Get("identifier"))
	if err != nil {
		writeBrowseError(w, err)
		return
	}
	s.recordBrowse(source.ID(), "browse", start, len(item.Children))
	writeJSON(w, http.StatusOK, item)
}

// handleResolveSource resolves an identifier to a single playable item.
func (s *Server) handleResolveSource(w http.ResponseWriter, r *http.Request) {
	source, ok := s.sources.SourceByID(chi.URLParam(r, "source_id"))
	if !ok {
		writeNotFound(w, "source not found")
		return
	}

	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		writeBadRequest(w, "identifier query parameter is required")
		return
	}

	start := time.Now()
	item, err := source.ResolveMedia(r.Context(), identifier)
	if err != nil {
		writeBrowseError(w, err)
		return
	}
	s.recordBrowse(source.ID(), "resolve", start, 1)
	writeJSON(w, http.StatusOK, item)
}

// recordBrowse reports one ContentDirectory request to the metrics sink.
func (s *Server) recordBrowse(sourceID, action string, start time.Time, items int) {
	if s.influx == nil {
		return
	}
	durationMs := float64(time.Since(start)) / float64(time.Millisecond)
	s.influx.WriteBrowseMetric(sourceID, action, durationMs, items)
}
