package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-discovery/internal/flows"
)

// handleListFlows returns recorded discovery flows, optionally filtered by
// the "domain" query parameter.
func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	var (
		result []flows.Flow
		err    error
	)
	if domain := r.URL.Query().Get("domain"); domain != "" {
		result, err = s.flowStore.FlowsByDomain(r.Context(), domain)
	} else {
		result, err = s.flowStore.Flows(r.Context())
	}
	if err != nil {
		s.logger.Error("listing flows failed", "error", err)
		writeInternalError(w, "listing flows failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"flows": result,
		"count": len(result),
	})
}

// handleGetFlow returns one flow by ID.
func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := s.flowStore.Flow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, flows.ErrFlowNotFound) {
			writeNotFound(w, "flow not found")
			return
		}
		s.logger.Error("fetching flow failed", "error", err)
		writeInternalError(w, "fetching flow failed")
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

// handleDeleteFlow removes a flow. The next matching advertisement will
// create a fresh one.
func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	err := s.flowStore.DeleteFlow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, flows.ErrFlowNotFound) {
			writeNotFound(w, "flow not found")
			return
		}
		s.logger.Error("deleting flow failed", "error", err)
		writeInternalError(w, "deleting flow failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
