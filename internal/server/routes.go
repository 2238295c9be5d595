package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Import pipeline
	mux.HandleFunc("/api/import", s.app.ImportHandler.Import)
	mux.HandleFunc("/api/import/check", s.app.ImportHandler.Check)
	mux.HandleFunc("/api/import/cache", s.app.ImportHandler.InvalidateCache)
	mux.HandleFunc("/api/import/cache/stats", s.app.ImportHandler.CacheStats)

	// Nodes
	mux.HandleFunc("/api/nodes", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			"GET":  s.app.NodeHandler.List,
			"POST": s.app.NodeHandler.Create,
		})
	})
	mux.HandleFunc("/api/nodes/", s.handleNodeRoutes)

	// Search
	mux.HandleFunc("/api/search", s.app.SearchHandler.Simple)
	mux.HandleFunc("/api/search/filtered", s.app.SearchHandler.Filtered)

	// Hierarchy trees
	mux.HandleFunc("/api/tree/", s.handleTreeRoutes)

	// Settings
	mux.HandleFunc("/api/settings/api-key", s.app.SettingsHandler.APIKey)

	// Health and metrics
	mux.HandleFunc("/health", s.app.HealthHandler.Health)
	mux.HandleFunc("/health/live", s.app.HealthHandler.Live)
	mux.HandleFunc("/health/ready", s.app.HealthHandler.Ready)
	mux.Handle("/metrics", s.app.Metrics.Handler())

	// Unmatched API paths
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})

	return mux
}

// handleNodeRoutes dispatches /api/nodes/{id} and its sub-resources:
//
//	GET|PUT|DELETE /api/nodes/{id}
//	POST           /api/nodes/{id}/merge
//	POST           /api/nodes/{id}/move
//	GET            /api/nodes/{id}/related
//	GET            /api/nodes/{id}/backlinks
//	GET            /api/nodes/{id}/history
func (s *Server) handleNodeRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/nodes/")
	if rest == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	segments := strings.SplitN(rest, "/", 2)
	id := segments[0]

	if len(segments) == 1 {
		RouteByMethod(w, r, MethodRouter{
			"GET":    func(w http.ResponseWriter, r *http.Request) { s.app.NodeHandler.Get(w, r, id) },
			"PUT":    func(w http.ResponseWriter, r *http.Request) { s.app.NodeHandler.Update(w, r, id) },
			"DELETE": func(w http.ResponseWriter, r *http.Request) { s.app.NodeHandler.Delete(w, r, id) },
		})
		return
	}

	switch segments[1] {
	case "merge":
		RouteByMethod(w, r, MethodRouter{
			"POST": func(w http.ResponseWriter, r *http.Request) { s.app.NodeHandler.Merge(w, r, id) },
		})
	case "move":
		RouteByMethod(w, r, MethodRouter{
			"POST": func(w http.ResponseWriter, r *http.Request) { s.app.NodeHandler.Move(w, r, id) },
		})
	case "related":
		RouteByMethod(w, r, MethodRouter{
			"GET": func(w http.ResponseWriter, r *http.Request) { s.app.NodeHandler.Related(w, r, id) },
		})
	case "backlinks":
		RouteByMethod(w, r, MethodRouter{
			"GET": func(w http.ResponseWriter, r *http.Request) { s.app.NodeHandler.Backlinks(w, r, id) },
		})
	case "history":
		RouteByMethod(w, r, MethodRouter{
			"GET": func(w http.ResponseWriter, r *http.Request) { s.app.NodeHandler.History(w, r, id) },
		})
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleTreeRoutes dispatches the hierarchy endpoints:
//
//	GET /api/tree/{view}
//	GET /api/tree/{view}/subtree/{path}
//	GET /api/tree/{view}/node/{code}
func (s *Server) handleTreeRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/tree/")
	if rest == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	segments := strings.SplitN(rest, "/", 3)
	view := segments[0]

	switch {
	case len(segments) == 1:
		s.app.TreeHandler.Tree(w, r, view)
	case len(segments) == 3 && segments[1] == "subtree":
		s.app.TreeHandler.Subtree(w, r, view, segments[2])
	case len(segments) == 3 && segments[1] == "node":
		s.app.TreeHandler.NodeByCode(w, r, view, segments[2])
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}
