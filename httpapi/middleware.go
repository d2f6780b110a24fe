package httpapi

import "net/http"

// authenticate enforces the X-API-Key shared-secret header unless
// DevBypassAuth is set, per spec.md §6's auth model.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Config.DevBypassAuth {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("X-API-Key") != s.Config.AuthSharedSecret || s.Config.AuthSharedSecret == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing X-API-Key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cors sets a single-origin CORS allowance. An empty CORSOrigin disables
// the headers entirely (same-origin callers only).
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Config.CORSOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.Config.CORSOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
