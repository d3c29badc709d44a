package capture

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
)

// Server exposes the capture service as a JSON API consumed by the
// annotation frontend.
type Server struct {
	service   *Service
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials. Empty credentials
// disable authentication.
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with a default mux.
func NewServer(service *Service, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing.
func NewServerWithMux(service *Service, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials.
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true
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

// requireAuth middleware.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Invoice Capture"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// corsMiddleware adds CORS headers and answers preflight requests; the
// annotation frontend is served from its own origin.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux.
// Routes must be registered from most specific to least specific.
func (s *Server) registerRoutes() {
	// Health check stays outside auth so load balancers can probe it.
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Profiles (zone templates)
	s.mux.HandleFunc("GET /api/profiles/{name}/image", s.requireAuth(s.handleProfileImage))
	s.mux.HandleFunc("GET /api/profiles/{name}", s.requireAuth(s.handleGetProfile))
	s.mux.HandleFunc("DELETE /api/profiles/{name}", s.requireAuth(s.handleDeleteProfile))
	s.mux.HandleFunc("GET /api/profiles", s.requireAuth(s.handleListProfiles))
	s.mux.HandleFunc("POST /api/profiles", s.requireAuth(s.handleSaveProfile))

	// Export-template field registry
	s.mux.HandleFunc("GET /api/fields/active", s.requireAuth(s.handleActiveFields))
	s.mux.HandleFunc("GET /api/fields", s.requireAuth(s.handleListFields))
	s.mux.HandleFunc("PUT /api/fields", s.requireAuth(s.handleSaveFields))

	// Ad-hoc OCR while drawing a template
	s.mux.HandleFunc("POST /api/ocr", s.requireAuth(s.handleTestOCR))

	// Saved queues
	s.mux.HandleFunc("GET /api/queues/{name}/images/{filename}", s.requireAuth(s.handleQueueImage))
	s.mux.HandleFunc("POST /api/queues/{name}/open", s.requireAuth(s.handleOpenQueue))
	s.mux.HandleFunc("GET /api/queues/{name}", s.requireAuth(s.handleGetQueue))
	s.mux.HandleFunc("DELETE /api/queues/{name}", s.requireAuth(s.handleDeleteQueue))
	s.mux.HandleFunc("GET /api/queues", s.requireAuth(s.handleListQueues))

	// Live capture sessions
	s.mux.HandleFunc("POST /api/sessions/{name}/pages/{page}/zones/{id}/move", s.requireAuth(s.handleMoveZone))
	s.mux.HandleFunc("POST /api/sessions/{name}/pages/{page}/zones/{id}/resize", s.requireAuth(s.handleResizeZone))
	s.mux.HandleFunc("POST /api/sessions/{name}/pages/{page}/zones/{id}/rename", s.requireAuth(s.handleRenameZone))
	s.mux.HandleFunc("POST /api/sessions/{name}/pages/{page}/zones/{id}/toggle-item", s.requireAuth(s.handleToggleItemZone))
	s.mux.HandleFunc("DELETE /api/sessions/{name}/pages/{page}/zones/{id}", s.requireAuth(s.handleDeleteZone))
	s.mux.HandleFunc("POST /api/sessions/{name}/pages/{page}/zones/apply-delta", s.requireAuth(s.handleApplyDelta))
	s.mux.HandleFunc("POST /api/sessions/{name}/pages/{page}/zones", s.requireAuth(s.handleCreateZone))
	s.mux.HandleFunc("POST /api/sessions/{name}/pages/{page}/rows", s.requireAuth(s.handleAddRow))
	s.mux.HandleFunc("DELETE /api/sessions/{name}/pages/{page}/rows/{rowId}", s.requireAuth(s.handleDeleteRow))
	s.mux.HandleFunc("PUT /api/sessions/{name}/pages/{page}/values/{property}", s.requireAuth(s.handleSetValue))
	s.mux.HandleFunc("PUT /api/sessions/{name}/pages/{page}/lock", s.requireAuth(s.handleSetLock))
	s.mux.HandleFunc("POST /api/sessions/{name}/pages/{page}/ocr", s.requireAuth(s.handleOCRPage))
	s.mux.HandleFunc("GET /api/sessions/{name}/pages/{page}/image", s.requireAuth(s.handlePageImage))
	s.mux.HandleFunc("POST /api/sessions/{name}/ocr-all", s.requireAuth(s.handleOCRAll))
	s.mux.HandleFunc("POST /api/sessions/{name}/save", s.requireAuth(s.handleSaveSession))
	s.mux.HandleFunc("POST /api/sessions/{name}/propagate", s.requireAuth(s.handlePropagateSession))
	s.mux.HandleFunc("GET /api/sessions/{name}/export", s.requireAuth(s.handleExportBatch))
	s.mux.HandleFunc("PUT /api/sessions/{name}/system-values", s.requireAuth(s.handleSetSystemValues))
	s.mux.HandleFunc("PUT /api/sessions/{name}/mapping", s.requireAuth(s.handleSetMapping))
	s.mux.HandleFunc("GET /api/sessions/{name}", s.requireAuth(s.handleGetSession))
	s.mux.HandleFunc("DELETE /api/sessions/{name}", s.requireAuth(s.handleCloseSession))
	s.mux.HandleFunc("GET /api/sessions", s.requireAuth(s.handleListSessions))
	s.mux.HandleFunc("POST /api/sessions", s.requireAuth(s.handleStartSession))

	// Overview invoice store
	s.mux.HandleFunc("POST /api/invoices/export", s.requireAuth(s.handleExportInvoices))
	s.mux.HandleFunc("PATCH /api/invoices/{id}", s.requireAuth(s.handleUpdateInvoice))
	s.mux.HandleFunc("DELETE /api/invoices/{id}", s.requireAuth(s.handleDeleteInvoice))
	s.mux.HandleFunc("DELETE /api/invoices", s.requireAuth(s.handleClearInvoices))
	s.mux.HandleFunc("GET /api/invoices", s.requireAuth(s.handleListInvoices))
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
