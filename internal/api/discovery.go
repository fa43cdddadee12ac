package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

// handleListDiscovery returns every service currently known to the scanner.
func (s *Server) handleListDiscovery(w http.ResponseWriter, r *http.Request) {
	infos := s.scanner.AllDiscoveryInfo(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"services": infos,
		"count":    len(infos),
	})
}

// handleScan triggers an immediate search on all listeners.
func (s *Server) handleScan(w http.ResponseWriter, _ *http.Request) {
	s.scanner.Scan()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "scan requested",
	})
}

// handleDiscoveryByST returns all services advertising a service type.
func (s *Server) handleDiscoveryByST(w http.ResponseWriter, r *http.Request) {
	st, err := url.PathUnescape(chi.URLParam(r, "st"))
	if err != nil || st == "" {
		writeBadRequest(w, "invalid service type")
		return
	}
	infos := s.scanner.DiscoveryInfoByST(r.Context(), st)
	writeJSON(w, http.StatusOK, map[string]any{
		"services": infos,
		"count":    len(infos),
	})
}

// handleDiscoveryByUDN returns all services advertised by one device.
func (s *Server) handleDiscoveryByUDN(w http.ResponseWriter, r *http.Request) {
	udn, err := url.PathUnescape(chi.URLParam(r, "udn"))
	if err != nil || udn == "" {
		writeBadRequest(w, "invalid udn")
		return
	}
	infos := s.scanner.DiscoveryInfoByUDN(r.Context(), udn)
	writeJSON(w, http.StatusOK, map[string]any{
		"services": infos,
		"count":    len(infos),
	})
}

// handleDiscoveryByUDNST returns one specific service of one device.
func (s *Server) handleDiscoveryByUDNST(w http.ResponseWriter, r *http.Request) {
	udn, udnErr := url.PathUnescape(chi.URLParam(r, "udn"))
	st, stErr := url.PathUnescape(chi.URLParam(r, "st"))
	if udnErr != nil || stErr != nil || udn == "" || st == "" {
		writeBadRequest(w, "invalid udn or service type")
		return
	}

	info, ok := s.scanner.DiscoveryInfoByUDNST(r.Context(), udn, st)
	if !ok {
		writeNotFound(w, "service not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}
