package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"campuscanvas/internal/ratelimit"
	"campuscanvas/internal/util"
	"campuscanvas/pkg/domain"
	"campuscanvas/pkg/media"
	"campuscanvas/pkg/project"
	"campuscanvas/services/portal/internal/app"
)

const multipartMemory = 8 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                     *app.App
	Redis                   *redis.Client
	LoginRateLimitPerMinute int
	MaxUploadBytes          int64
	TrustedProxyCIDRs       []string
	AllowedOrigins          []string
}

// Server exposes the moderation workflow over HTTP.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	maxUploadBytes int64
	loginLimiter   *ratelimit.FixedWindowLimiter
	trusted        *util.TrustedProxies
	allowedOrigins []string
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	loginLimiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, ratelimit.DefaultPrefix+":login", loginLimit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init login limiter: %w", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
		loginLimiter:   loginLimiter,
		trusted:        trusted,
		allowedOrigins: cfg.AllowedOrigins,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("portal", util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/setup", s.handleSetup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.Handle("/api/me", s.authenticated(s.handleMe))

	// projects (approved listing and details are readable without a token)
	s.mux.HandleFunc("/api/projects", s.handleProjects)
	s.mux.HandleFunc("/api/projects/", s.handleProjectByID)

	// admin
	s.mux.Handle("/api/admin/projects", s.adminOnly(s.handleAdminProjects))
	s.mux.Handle("/api/admin/projects/", s.adminOnly(s.handleAdminProjectAction))
	s.mux.Handle("/api/admin/stats", s.adminOnly(s.handleAdminStats))
	s.mux.Handle("/api/admin/users", s.adminOnly(s.handleAdminUsers))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.Session)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.authorize(r)
		if !ok {
			s.audit(r, "portal.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		next(w, r, sess)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, sess domain.Session) {
		if sess.Role != domain.RoleAdmin {
			s.audit(r, "portal.admin.authorize", "fail", "user_id", sess.ID, "reason", "forbidden")
			writeError(w, http.StatusForbidden, "PROJECT_FORBIDDEN", "forbidden")
			return
		}
		next(w, r, sess)
	})
}

// authorize resolves the bearer token. The account is re-read on every request.
func (s *Server) authorize(r *http.Request) (domain.Session, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.Session{}, false
	}
	return s.app.SessionFromToken(r.Context(), token)
}

// optionalSession returns the anonymous session when no valid token is sent.
func (s *Server) optionalSession(r *http.Request) domain.Session {
	if r.Header.Get("Authorization") == "" {
		return domain.Session{}
	}
	sess, _ := s.authorize(r)
	return sess
}

type setupRequest struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string         `json:"token"`
	User  domain.Session `json:"user"`
}

// handleSetup creates the first administrator of an empty store.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many setup attempts") {
		s.audit(r, "portal.setup", "rate_limited")
		return
	}
	var req setupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "REQUEST_INVALID_JSON", "invalid JSON body")
		return
	}
	user, err := s.app.RegisterUser(r.Context(), domain.Session{}, app.NewUser{
		Username: req.Username,
		FullName: req.FullName,
		Password: req.Password,
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		s.audit(r, "portal.setup", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "portal.setup", "success", "user_id", user.Username)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "portal.login", "rate_limited")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "portal.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "REQUEST_INVALID_JSON", "invalid JSON body")
		return
	}
	sess, token, err := s.app.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.audit(r, "portal.login", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "portal.login", "success", "user_id", sess.ID)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: sess})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "portal.logout", "fail", "reason", "missing_token")
		writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
		return
	}
	if err := s.app.Logout(r.Context(), token); err != nil {
		s.audit(r, "portal.logout", "fail", "reason", err.Error())
		writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
		return
	}
	s.audit(r, "portal.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, sess domain.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		filter, err := project.ParseFilter(q.Get("category"), q.Get("q"))
		if err != nil {
			writeAppError(w, err)
			return
		}
		var projects []domain.Project
		switch scope := q.Get("scope"); scope {
		case "", "approved":
			projects, err = s.app.SearchApproved(r.Context(), filter)
		case "mine":
			sess, ok := s.authorize(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
				return
			}
			projects, err = s.app.ListMine(r.Context(), sess)
			projects = filter.Apply(projects)
		default:
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID_SCOPE", "scope must be approved or mine")
			return
		}
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeList(w, projects)
	case http.MethodPost:
		s.authenticated(s.handleSubmit).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, sess domain.Session) {
	files, ok := s.parseImages(w, r)
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()
	p, err := s.app.Submit(r.Context(), sess, app.Submission{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    domain.Category(r.FormValue("category")),
		Link:        r.FormValue("link"),
		Color:       r.FormValue("color"),
		Icon:        r.FormValue("icon"),
	}, files)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "project not found")
		return
	}

	// /api/projects/{id}/gallery and /api/projects/{id}/images/{n}
	switch {
	case len(parts) == 2 && parts[1] == "gallery":
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		s.authenticated(func(w http.ResponseWriter, r *http.Request, sess domain.Session) {
			s.handleReplaceGallery(w, r, sess, id)
		}).ServeHTTP(w, r)
		return
	case len(parts) == 3 && parts[1] == "images":
		s.handleProjectImage(w, r, id, parts[2])
		return
	case len(parts) > 1:
		writeError(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := s.app.Get(r.Context(), s.optionalSession(r), id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		s.authenticated(func(w http.ResponseWriter, r *http.Request, sess domain.Session) {
			if err := s.app.Remove(r.Context(), sess, id, confirmation(r)); err != nil {
				writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		}).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleReplaceGallery(w http.ResponseWriter, r *http.Request, sess domain.Session, id string) {
	files, ok := s.parseImages(w, r)
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()
	p, err := s.app.UpdateMedia(r.Context(), sess, id, files, confirmation(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProjectImage(w http.ResponseWriter, r *http.Request, id, index string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	n, err := strconv.Atoi(index)
	if err != nil || n < 0 {
		writeError(w, http.StatusNotFound, "PROJECT_IMAGE_NOT_FOUND", "image not found")
		return
	}
	p, err := s.app.Get(r.Context(), s.optionalSession(r), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if n >= len(p.Gallery) {
		writeError(w, http.StatusNotFound, "PROJECT_IMAGE_NOT_FOUND", "image not found")
		return
	}
	contentType, data, err := media.Decode(p.Gallery[n])
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR", "stored image is unreadable")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleAdminProjects(w http.ResponseWriter, r *http.Request, sess domain.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	projects, err := s.app.ListAll(r.Context(), sess)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if status := domain.ProjectStatus(r.URL.Query().Get("status")); status != "" {
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "PROJECT_VALIDATION_FAILED", "unknown status")
			return
		}
		filtered := projects[:0]
		for _, p := range projects {
			if p.Status == status {
				filtered = append(filtered, p)
			}
		}
		projects = filtered
	}
	writeList(w, projects)
}

func (s *Server) handleAdminProjectAction(w http.ResponseWriter, r *http.Request, sess domain.Session) {
	path := strings.TrimPrefix(r.URL.Path, "/api/admin/projects/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	id := parts[0]
	var err error
	switch parts[1] {
	case "approve":
		err = s.app.Approve(r.Context(), sess, id)
	case "reject":
		err = s.app.Reject(r.Context(), sess, id)
	default:
		writeError(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "not found")
		return
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	p, err := s.app.Get(r.Context(), sess, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request, sess domain.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Stats(r.Context(), sess)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type createUserRequest struct {
	Username string          `json:"username"`
	FullName string          `json:"fullName"`
	Password string          `json:"password"`
	Role     domain.UserRole `json:"role"`
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request, sess domain.Session) {
	switch r.Method {
	case http.MethodGet:
		users, err := s.app.ListUsers(r.Context(), sess)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": users,
			"count": len(users),
		})
	case http.MethodPost:
		var req createUserRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID_JSON", "invalid JSON body")
			return
		}
		user, err := s.app.RegisterUser(r.Context(), sess, app.NewUser(req))
		if err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "portal.admin.user_create", "success", "user_id", sess.ID, "target_user_id", user.Username)
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w)
	}
}

// parseImages reads the multipart "images" field. It writes the error response itself.
func (s *Server) parseImages(w http.ResponseWriter, r *http.Request) ([]media.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "REQUEST_INVALID_FORM", "invalid form data")
		return nil, false
	}
	headers := r.MultipartForm.File["images"]
	files := make([]media.File, 0, len(headers))
	for _, h := range headers {
		files = append(files, media.FromMultipart(h))
	}
	return files, true
}

// confirmation turns ?confirm=true into consent. Anything else declines.
func confirmation(r *http.Request) app.Confirmer {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return app.Answer(ok)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "REQUEST_METHOD_NOT_ALLOWED", "method not allowed")
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeList(w http.ResponseWriter, projects []domain.Project) {
	if projects == nil {
		projects = []domain.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": projects,
		"count": len(projects),
	})
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 8 << 20
	}
	return value
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	decision := limiter.Allow(r.Context(), key)
	if decision.Allowed {
		return true
	}
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", msg)
	return false
}
