package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/medcert/internal/server/icd"
)

// handleIcdSearch never surfaces upstream failures: the resolver degrades
// through its fallbacks and the worst case is an empty result list.
func (s *Server) handleIcdSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	release := r.URL.Query().Get("release")

	results := s.resolver.Search(r.Context(), query, release)
	if results == nil {
		results = []icd.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string][]icd.Entry{"results": results})
}
