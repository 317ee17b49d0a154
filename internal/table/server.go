package table

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Server handles HTTP requests for the scanner UI and API
type Server struct {
	service   *Service
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			// Ensure CORS headers are set before error response
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Table Scanner"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
// Routes must be registered from most specific to least specific to avoid conflicts
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.requireAuth(s.handleStaticCSS))
	s.mux.HandleFunc("GET /static/app.js", s.requireAuth(s.handleStaticJS))

	// API endpoints - scanning and the current table
	s.mux.HandleFunc("POST /api/scans", s.requireAuth(s.handleScan))
	s.mux.HandleFunc("GET /api/table/pages/{n}", s.requireAuth(s.handleGetPage))
	s.mux.HandleFunc("GET /api/table/export.csv", s.requireAuth(s.handleExportCSV))
	s.mux.HandleFunc("GET /api/table/export.xlsx", s.requireAuth(s.handleExportXLSX))
	s.mux.HandleFunc("GET /api/table/clipboard", s.requireAuth(s.handleClipboard))
	s.mux.HandleFunc("PUT /api/table/rows", s.requireAuth(s.handleReplaceRows))
	s.mux.HandleFunc("DELETE /api/table/rows/{index}", s.requireAuth(s.handleDeleteRow))
	s.mux.HandleFunc("GET /api/table", s.requireAuth(s.handleGetTable))

	// API endpoints - settings
	s.mux.HandleFunc("PUT /api/settings/api-key", s.requireAuth(s.handleSetAPIKey))
	s.mux.HandleFunc("DELETE /api/settings/api-key", s.requireAuth(s.handleClearAPIKey))
	s.mux.HandleFunc("PUT /api/settings/model", s.requireAuth(s.handleSetModel))
	s.mux.HandleFunc("GET /api/settings", s.requireAuth(s.handleGetSettings))

	// Static HTML interface (register last as it's the catch-all)
	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	slog.Info("Starting server", "address", addr)

	// Wrap the mux with CORS middleware to handle all requests including OPTIONS
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.corsMiddleware(s.mux.ServeHTTP),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
