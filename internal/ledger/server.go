package ledger

import (
	"net/http"
)

// defaultMaxUploadSize is large enough for high-resolution phone photos
const defaultMaxUploadSize = int64(50 << 20)

// Server handles HTTP requests for uploads, transactions and analytics
type Server struct {
	service       *Service
	auth          Auth
	mux           *http.ServeMux
	handler       http.Handler
	metrics       http.Handler
	maxUploadSize int64
}

// ServerOption configures optional Server behaviour
type ServerOption func(*Server)

// WithMetricsHandler serves h on GET /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithMaxUploadSize limits multipart upload bodies to n bytes
func WithMaxUploadSize(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadSize = n
		}
	}
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, auth Auth, opts ...ServerOption) *Server {
	return NewServerWithMux(service, auth, http.NewServeMux(), opts...)
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, auth Auth, mux *http.ServeMux, opts ...ServerOption) *Server {
	s := &Server{
		service:       service,
		auth:          auth,
		mux:           mux,
		maxUploadSize: defaultMaxUploadSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	s.handler = requestLogger(s.corsMiddleware(mux))
	return s
}

// corsMiddleware adds CORS headers to responses and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth resolves the user and stores it in the request context
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.auth.Authenticate(r)
		if err != nil {
			loggerFrom(r.Context()).Warn("Rejected request", "error", err)
			w.Header().Set("WWW-Authenticate", `Basic realm="Finance Tracker"`)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := withUser(r.Context(), userID)
		ctx = withLogger(ctx, loggerFrom(ctx).With("user", userID))
		next(w, r.WithContext(ctx))
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	s.mux.HandleFunc("POST /api/uploads", s.requireAuth(s.handleUpload))

	s.mux.HandleFunc("GET /api/transactions/{id}", s.requireAuth(s.handleGetTransaction))
	s.mux.HandleFunc("PUT /api/transactions/{id}", s.requireAuth(s.handleUpdateTransaction))
	s.mux.HandleFunc("DELETE /api/transactions/{id}", s.requireAuth(s.handleDeleteTransaction))
	s.mux.HandleFunc("GET /api/transactions", s.requireAuth(s.handleListTransactions))
	s.mux.HandleFunc("POST /api/transactions", s.requireAuth(s.handleCreateTransactions))

	s.mux.HandleFunc("GET /api/analytics/summary", s.requireAuth(s.handleSummary))

	s.mux.HandleFunc("GET /api/categories", s.requireAuth(s.handleListCategories))
	s.mux.HandleFunc("POST /api/categories", s.requireAuth(s.handleAddCategory))

	s.mux.HandleFunc("GET /api/imports", s.requireAuth(s.handleListImports))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
