package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"murojaat/internal/ratelimit"
	"murojaat/internal/util"
	"murojaat/pkg/domain"
	"murojaat/services/desk/internal/app"
	"murojaat/services/desk/internal/security"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server. Limiters and the
// alerter are optional.
type Config struct {
	App                *app.App
	LoginLimiter       ratelimit.Limiter
	RegisterLimiter    ratelimit.Limiter
	Alerter            *security.AuditAlerter
	TrustedProxies     *util.TrustedProxies
	CORSAllowedOrigins []string
}

// Server exposes the desk over JSON HTTP.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	loginLimiter    ratelimit.Limiter
	registerLimiter ratelimit.Limiter
	alerter         *security.AuditAlerter
	trustedProxies  *util.TrustedProxies
	corsOrigins     []string
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		loginLimiter:    cfg.LoginLimiter,
		registerLimiter: cfg.RegisterLimiter,
		alerter:         cfg.Alerter,
		trustedProxies:  cfg.TrustedProxies,
		corsOrigins:     cfg.CORSAllowedOrigins,
	}
	s.routes()
	return s
}

// Router returns the mux wrapped in the shared middleware chain.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithCORS(s.corsOrigins, h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog("desk", s.trustedProxies, h)
	return util.WithRequestID(h)
}

// Route is one endpoint of the public API. Ticket paths use {id}, the way
// openapi.yaml writes them.
type Route struct {
	Method string
	Path   string
}

// Routes lists every endpoint the router serves. openapi.yaml is checked
// against it.
var Routes = []Route{
	{http.MethodGet, "/healthz"},
	{http.MethodGet, "/api/faculties"},
	{http.MethodPost, "/api/auth/login"},
	{http.MethodPost, "/api/auth/register"},
	{http.MethodPost, "/api/auth/logout"},
	{http.MethodGet, "/api/users/me"},
	{http.MethodGet, "/api/tickets"},
	{http.MethodPost, "/api/tickets"},
	{http.MethodGet, "/api/tickets/{id}"},
	{http.MethodPost, "/api/tickets/{id}/messages"},
	{http.MethodPost, "/api/tickets/{id}/resolve"},
	{http.MethodPost, "/api/tickets/{id}/confirm"},
	{http.MethodPatch, "/api/tickets/{id}/status"},
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/faculties", s.handleFaculties)

	// auth
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.Handle("/api/users/me", s.authenticated(s.handleMe))

	// tickets
	s.mux.Handle("/api/tickets", s.authenticated(s.handleTickets))
	s.mux.Handle("/api/tickets/", s.authenticated(s.handleTicketByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFaculties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	faculties := s.app.Faculties()
	writeJSON(w, http.StatusOK, map[string]any{
		"items": faculties,
		"count": len(faculties),
	})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.UserFromToken(token)
		if err != nil {
			if !errors.Is(err, app.ErrNoSession) {
				util.LoggerFromContext(r.Context()).Error("session lookup failed", "err", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			s.audit(r, "desk.authorize", security.OutcomeFail, "reason", "unknown_session")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

// auth handlers
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "desk.login", security.OutcomeRateLimited)
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		s.audit(r, "desk.login", security.OutcomeFail, "reason", "invalid_json")
		return
	}
	user, token, err := s.app.Login(req.Identifier, req.Credential)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			s.audit(r, "desk.login", security.OutcomeFail, "reason", "invalid_credentials")
		}
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "desk.login", security.OutcomeSuccess, "user_id", user.ID, "role", user.Role())
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "too many registration attempts") {
		s.audit(r, "desk.register", security.OutcomeRateLimited)
		return
	}
	var req domain.Registration
	if !decodeJSON(w, r, &req) {
		s.audit(r, "desk.register", security.OutcomeFail, "reason", "invalid_json")
		return
	}
	user, token, err := s.app.Register(req)
	if err != nil {
		s.audit(r, "desk.register", security.OutcomeFail, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "desk.register", security.OutcomeSuccess, "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "desk.logout", security.OutcomeSuccess)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ticket handlers
func (s *Server) handleTickets(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		filter, ok := domain.ParseTicketFilter(r.URL.Query().Get("filter"))
		if !ok {
			s.writeAppError(w, r, app.ErrUnknownFilter)
			return
		}
		tickets, err := s.app.ListTickets(user, filter)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		items := app.Summaries(tickets)
		writeJSON(w, http.StatusOK, map[string]any{
			"items": items,
			"count": len(items),
		})
	case http.MethodPost:
		var req createTicketRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		ticket, err := s.app.CreateTicket(user, req.Title, req.Message)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, ticket)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleTicketByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	var (
		ticket domain.Ticket
		err    error
		event  string
	)
	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		event = "desk.ticket.get"
		ticket, err = s.app.GetTicket(user, id)
	case "messages":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req sendMessageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		event = "desk.ticket.message"
		ticket, err = s.app.SendMessage(user, id, req.Text)
	case "resolve":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		event = "desk.ticket.resolve"
		ticket, err = s.app.ResolveTicket(user, id)
	case "confirm":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		event = "desk.ticket.confirm"
		ticket, err = s.app.ConfirmResolution(user, id)
	case "status":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w)
			return
		}
		var req updateStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		status, ok := domain.ParseTicketStatus(req.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		event = "desk.ticket.status"
		ticket, err = s.app.UpdateTicketStatus(user, id, status)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		if errors.Is(err, app.ErrTicketNotFound) || errors.Is(err, app.ErrForbidden) {
			s.audit(r, event, security.OutcomeDenied, "user_id", user.ID, "ticket_id", id, "reason", err.Error())
		}
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// writeAppError maps desk errors to HTTP statuses. Anything unknown is a 500
// and is logged, not echoed.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrNoSession):
		status = http.StatusUnauthorized
	case errors.Is(err, app.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, app.ErrTicketNotFound):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrTicketResolved), errors.Is(err, app.ErrNotPendingConfirmation):
		status = http.StatusConflict
	case errors.Is(err, app.ErrTitleRequired),
		errors.Is(err, app.ErrMessageRequired),
		errors.Is(err, app.ErrRegistrationIncomplete),
		errors.Is(err, app.ErrUnknownFaculty),
		errors.Is(err, app.ErrCredentialTooLong),
		errors.Is(err, app.ErrUnknownFilter),
		errors.Is(err, app.ErrStatusTransition):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trustedProxies)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == security.OutcomeSuccess {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	client := util.ClientKey(r, s.trustedProxies)
	result, err := s.alerter.Observe(r.Context(), event, outcome, client)
	if err != nil {
		logger.Warn("security alert counter failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Warn("security_alert",
			"event", event,
			"outcome", outcome,
			"client", client,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientKey(r, s.trustedProxies)
	if limiter.Allow(r.Context(), key) {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(limiter.Window().Seconds())))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Credential string `json:"credential"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type createTicketRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		slog.Warn("empty bearer token", "path", r.URL.Path)
		return "", false
	}
	return token, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
