package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
	"github.com/psu6810110402/gemini-foundry/internal/auth"
	"github.com/psu6810110402/gemini-foundry/internal/config"
	"github.com/psu6810110402/gemini-foundry/internal/filter"
	"github.com/psu6810110402/gemini-foundry/internal/generator"
	"github.com/psu6810110402/gemini-foundry/internal/store"
	"github.com/psu6810110402/gemini-foundry/internal/throttle"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

var (
	//go:embed ui.html
	uiHTML string

	uiTemplate = template.Must(template.New("ui").Parse(uiHTML))
)

// Base64 images up to the attachment limit plus the JSON envelope.
const maxBodyBytes = 16 << 20

// Server wraps the landing page and API handlers.
type Server struct {
	cfg       *config.Config
	store     store.Store
	gen       *generator.Service
	auth      *auth.Authenticator
	limits    *throttle.Registry
	sanitizer *filter.Sanitizer
	logger    *slog.Logger
	mux       *http.ServeMux
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAuthenticator overrides the authenticator built from cfg.Auth.
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithRateLimiter overrides the per-actor limiter built from cfg.Server.RateLimit.
func WithRateLimiter(r *throttle.Registry) Option {
	return func(s *Server) { s.limits = r }
}

type uiData struct {
	Personas []persona
	Auth     bool
}

type persona struct {
	Name     string
	Endpoint string
	Field    string
}

// New constructs a new Server with routes registered.
func New(cfg *config.Config, st store.Store, gen *generator.Service, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if st == nil {
		return nil, errors.New("store is nil")
	}
	if gen == nil {
		return nil, errors.New("generator is nil")
	}

	srv := &Server{
		cfg:       cfg,
		store:     st,
		gen:       gen,
		sanitizer: filter.NewSanitizer(cfg.Sanitize),
		logger:    slog.Default(),
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.auth == nil {
		srv.auth = auth.New(cfg.Auth.JWTSecret, cfg.Auth.AdminEmail)
	}
	if srv.limits == nil {
		limits, err := throttle.NewRegistry(throttle.Config{
			MaxRequests: cfg.Server.RateLimit.MaxRequests,
			Window:      cfg.Server.RateLimit.Window,
			Cooldown:    cfg.Server.RateLimit.Window,
		})
		if err != nil {
			return nil, err
		}
		srv.limits = limits
	}
	srv.registerRoutes()
	return srv, nil
}

// Handler returns the http handler.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.secure(s.mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then drains open
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := make(chan struct{})
	defer close(stop)
	go s.limits.SweepEvery(time.Minute, stop)

	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// Structured generation.
	s.mux.HandleFunc("/api/investor-analysis", s.handleInvestorAnalysis)
	s.mux.HandleFunc("/api/market-synthesis", s.handleMarketSynthesis)
	s.mux.HandleFunc("/api/mvp-blueprint", s.handleMVPBlueprint)
	s.mux.HandleFunc("/api/pivot-strategy", s.handlePivotStrategy)
	s.mux.HandleFunc("/api/financial-outlook", s.handleFinancialOutlook)

	// Streamed generation.
	s.mux.HandleFunc("/api/investor-followup", s.handleInvestorFollowUp)
	s.mux.HandleFunc("/api/pivot", s.handlePivot)

	// Persistence.
	s.mux.HandleFunc("/api/sessions", s.handleSessions)
	s.mux.HandleFunc("/api/sessions/", s.handleSessionRoutes)
	s.mux.HandleFunc("/api/usage", s.handleUsage)

	// Admin.
	s.mux.HandleFunc("/api/admin/users", s.requireAdmin(s.handleAdminUsers))
	s.mux.HandleFunc("/api/admin/users/ban", s.requireAdmin(s.handleAdminBan(true)))
	s.mux.HandleFunc("/api/admin/users/unban", s.requireAdmin(s.handleAdminBan(false)))
	s.mux.HandleFunc("/api/admin/users/delete", s.requireAdmin(s.handleAdminDeleteUser))
	s.mux.HandleFunc("/api/admin/sessions", s.requireAdmin(s.handleAdminSessions))
	s.mux.HandleFunc("/api/admin/sessions/delete", s.requireAdmin(s.handleAdminDeleteSession))
	s.mux.HandleFunc("/api/admin/usage", s.requireAdmin(s.handleAdminUsage))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = uiTemplate.Execute(w, uiData{
		Auth: s.auth.Enabled(),
		Personas: []persona{
			{Name: generator.PersonaName(types.KindInvestor), Endpoint: "/api/investor-analysis", Field: "message"},
			{Name: generator.PersonaName(types.KindMarket), Endpoint: "/api/market-synthesis", Field: "marketData"},
			{Name: generator.PersonaName(types.KindMVP), Endpoint: "/api/mvp-blueprint", Field: "idea"},
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": s.gen.Provider().Name(),
		"model":    s.gen.Provider().Model(),
		"auth":     s.auth.Enabled(),
	})
}

// caller resolves the identity of r. A request without a token is anonymous
// and identified by its address; a banned profile is refused.
func (s *Server) caller(r *http.Request) (auth.Identity, string, error) {
	if _, err := auth.BearerToken(r); errors.Is(err, auth.ErrMissingToken) || !s.auth.Enabled() {
		return auth.Identity{}, "ip:" + clientIP(r), nil
	}
	id, err := s.auth.FromRequest(r)
	if err != nil {
		return auth.Identity{}, "", apierr.Wrap(apierr.Unauthorized, err, "Unauthorized")
	}
	ctx := r.Context()
	if err := s.store.UpsertProfile(ctx, types.Profile{ID: id.UserID, Email: id.Email, Role: id.Role}); err != nil {
		if errors.Is(err, store.ErrProfileDeleted) {
			return auth.Identity{}, "", apierr.Wrap(apierr.Forbidden, err, "This account has been deleted.")
		}
		return auth.Identity{}, "", err
	}
	profile, err := s.store.GetProfile(ctx, id.UserID)
	if err != nil {
		return auth.Identity{}, "", err
	}
	if profile.Banned {
		return auth.Identity{}, "", apierr.New(apierr.Forbidden, "Your account has been suspended.")
	}
	return id, "user:" + id.UserID, nil
}

// requireUser resolves a signed-in caller or writes the refusal.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	if !s.auth.Enabled() {
		writeError(w, apierr.New(apierr.Unauthorized, "Sign-in is not configured on this server."))
		return auth.Identity{}, false
	}
	id, _, err := s.caller(r)
	if err != nil {
		writeError(w, err)
		return auth.Identity{}, false
	}
	if id.UserID == "" {
		writeError(w, apierr.New(apierr.Unauthorized, "Unauthorized"))
		return auth.Identity{}, false
	}
	return id, true
}

func (s *Server) requireAdmin(next func(http.ResponseWriter, *http.Request, auth.Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.requireUser(w, r)
		if !ok {
			return
		}
		if !id.Admin {
			writeError(w, apierr.New(apierr.Forbidden, "Admin access required"))
			return
		}
		next(w, r.WithContext(auth.WithIdentity(r.Context(), id)), id)
	}
}

// allow charges one request to actor's rate limit.
func (s *Server) allow(actor string) error {
	t := s.limits.For(actor)
	if t.TryAcquire() {
		return nil
	}
	e := apierr.New(apierr.RateLimited, "Too many requests")
	e.RetryAfter = time.Duration(t.RemainingCooldownSeconds()) * time.Second
	return e
}

func (s *Server) secure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if strings.HasPrefix(r.URL.Path, "/api/") {
			setCORS(w, s.cfg.Server.CORSOrigin)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
		if s.logger.Enabled(r.Context(), slog.LevelDebug) {
			s.logger.Debug("http request headers", "path", r.URL.Path, "headers", s.sanitizer.Headers(r.Header))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierr.New(apierr.BadRequest, "Request body too large")
		}
		return apierr.Wrap(apierr.BadRequest, err, "invalid json")
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		err = apierr.Wrap(apierr.NotFound, err, "not found")
	}
	e := apierr.Classify(err)
	if e.Kind == apierr.RateLimited && e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int((e.RetryAfter+time.Second-1)/time.Second)))
	}
	writeJSON(w, apierr.HTTPStatus(e.Kind), errorBody{Error: apierr.UserMessage(e), Kind: e.Kind})
}

type errorBody struct {
	Error string      `json:"error"`
	Kind  apierr.Kind `json:"kind"`
}

func splitPath(fullPath, prefix string) (string, string, bool) {
	if !strings.HasPrefix(fullPath, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(fullPath, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	return id, tail, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func setCORS(w http.ResponseWriter, origin string) {
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Expose-Headers", "Retry-After")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
