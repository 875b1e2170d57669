package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"codeplat/cmd/identity"
	"codeplat/cmd/internal/auth/session"
	"codeplat/cmd/internal/verify"
)

// Handler wires HTTP auth endpoints to identity/session services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	sessions *session.Service
	codes    *verify.Service
	audit    AuditLog

	now       func() time.Time
	dummyHash string
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithVerification enables the verification code and password reset endpoints.
func WithVerification(codes *verify.Service) HandlerOption {
	return func(h *Handler) {
		if h == nil || codes == nil {
			return
		}
		h.codes = codes
	}
}

// WithAuditLog overrides the default slog-backed audit log.
func WithAuditLog(a AuditLog) HandlerOption {
	return func(h *Handler) {
		if h == nil || a == nil {
			return
		}
		h.audit = a
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, users identity.Store, sessions *session.Service, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil {
		return nil, errors.New("auth: nil identity store")
	}
	if sessions == nil {
		return nil, errors.New("auth: nil session service")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg.Normalize(),
		users:    users,
		sessions: sessions,
		audit:    SlogAuditLog{Log: log},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}

	// Dummy hash for timing-resistant login checks.
	if hash, err := identity.HashPassword("dummy-password-for-timing-only", identity.DefaultArgon2idParams()); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/validate", h.handleValidate)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/logout_all", h.handleLogoutAll)
	mux.HandleFunc("/auth/sessions", h.handleSessions)
	mux.HandleFunc("/me", h.handleMe)

	if h.codes != nil {
		mux.HandleFunc("/auth/verification/send", h.handleVerificationSend)
		mux.HandleFunc("/auth/verification/check", h.handleVerificationCheck)
		mux.HandleFunc("/auth/password/reset", h.handlePasswordReset)
	}
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Username: req.Username,
		Email:    trimPtr(req.Email),
		Password: req.Password,
		Now:      h.now().UTC(),
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "conflict", "username or email already exists")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "db_unavailable", "please retry later")
		}
		return
	}

	h.auditRegister(ctx, u.ID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	writeJSON(w, http.StatusCreated, registerResponse{User: toUserResponse(u)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	username, email, password, ok := normalizeLoginRequest(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "username/email and password are required")
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())
	identifier := loginIdentifier(username, email)

	userAuth, err := h.lookupUserForLogin(ctx, username, email)
	if err != nil {
		if !identity.IsNotFound(err) {
			h.log.Error("auth.login.lookup.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "db_unavailable", "please retry later")
			return
		}
		// Timing resistance: perform a dummy verify when user is missing.
		if h.dummyHash != "" {
			_, _ = identity.VerifyPassword(password, h.dummyHash)
		}
		h.auditLoginFailed(ctx, nil, ip, ua, identifier, "not_found")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	okPw, err := identity.VerifyPassword(password, userAuth.PasswordHash)
	if err != nil || !okPw {
		h.auditLoginFailed(ctx, &userAuth.User.ID, ip, ua, identifier, "bad_password")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	issued, err := h.sessions.CreateSession(ctx, now, userAuth.User.ID, session.DeviceContext{IP: ip, UserAgent: ua})
	if err != nil {
		// The user vanished between lookup and insert.
		if errors.Is(err, session.ErrUserNotFound) {
			h.auditLoginFailed(ctx, &userAuth.User.ID, ip, ua, identifier, "not_found")
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.issue_session.fail", "err", err)
		writeSessionError(w, err)
		return
	}

	h.auditLoginSuccess(ctx, userAuth.User.ID, issued.SessionID, ip, ua, identifier)

	if h.cfg.CookieEnabled {
		if _, err := h.setWebSessionCookies(w, issued.Token, issued.ExpiresAt); err != nil {
			h.log.Error("auth.login.web_cookie.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		User:      toUserResponse(userAuth.User),
	})
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tok, _ := h.presentedToken(r)
	res, err := h.sessions.ValidateSession(r.Context(), h.now().UTC(), tok)
	if err != nil {
		h.log.Error("auth.validate.fail", "err", err)
		writeSessionError(w, err)
		return
	}
	if !res.Valid {
		writeJSON(w, http.StatusUnauthorized, validateResponse{Valid: false, Reason: "invalid_session"})
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:    true,
		UserID:   res.UserID,
		Username: res.Username,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tok, fromCookie := h.presentedToken(r)
	if fromCookie && !h.csrfDoubleSubmitValid(r) {
		writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
		return
	}

	ctx := r.Context()
	now := h.now().UTC()

	// Best-effort attribution for the audit trail; logout succeeds either way.
	var caller *validatedCaller
	if tok != "" {
		if res, err := h.sessions.ValidateSession(ctx, now, tok); err == nil && res.Valid {
			caller = &validatedCaller{UserID: res.UserID, SessionID: res.SessionID}
		}
	}

	if err := h.sessions.InvalidateSession(ctx, tok); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeSessionError(w, err)
		return
	}

	if caller != nil {
		h.auditLogout(ctx, *caller, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	}
	h.clearWebSessionCookies(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	caller, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	n, err := h.sessions.InvalidateAll(ctx, caller.UserID)
	if err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		writeSessionError(w, err)
		return
	}

	h.auditLogoutAll(ctx, caller.UserID, n, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	h.clearWebSessionCookies(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true, Revoked: &n})
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	caller, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	list, err := h.sessions.ListSessions(r.Context(), h.now().UTC(), caller.UserID)
	if err != nil {
		h.log.Error("auth.sessions.list.fail", "err", err)
		writeSessionError(w, err)
		return
	}

	out := make([]sessionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, toSessionResponse(s, caller.SessionID))
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: out})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	caller, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	u, err := h.users.GetUserByID(r.Context(), caller.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "not_found", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "db_unavailable", "please retry later")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

// ---- helpers ----

// validatedCaller is the identity behind an authenticated request.
type validatedCaller struct {
	UserID    string
	Username  string
	SessionID string
}

// presentedToken returns the bearer token, falling back to the session cookie.
func (h *Handler) presentedToken(r *http.Request) (tok string, fromCookie bool) {
	if tok := bearerToken(r); tok != "" {
		return tok, false
	}
	if tok, ok := h.tokenFromCookie(r); ok {
		return tok, true
	}
	return "", false
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (validatedCaller, bool) {
	tok, fromCookie := h.presentedToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return validatedCaller{}, false
	}
	if fromCookie && r.Method != http.MethodGet && !h.csrfDoubleSubmitValid(r) {
		writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
		return validatedCaller{}, false
	}

	res, err := h.sessions.ValidateSession(r.Context(), h.now().UTC(), tok)
	if err != nil {
		h.log.Error("auth.require_auth.fail", "err", err)
		writeSessionError(w, err)
		return validatedCaller{}, false
	}
	if !res.Valid {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return validatedCaller{}, false
	}
	return validatedCaller{UserID: res.UserID, Username: res.Username, SessionID: res.SessionID}, true
}

// writeSessionError maps session service failures onto HTTP.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrPersistenceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "db_unavailable", "please retry later")
	case errors.Is(err, session.ErrUserNotFound):
		writeError(w, http.StatusUnauthorized, "unauthorized", "user not found")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func normalizeLoginRequest(req loginRequest) (username *string, email *string, password string, ok bool) {
	username = trimPtr(req.Username)
	email = trimPtr(req.Email)
	password = req.Password
	if strings.TrimSpace(password) == "" {
		return nil, nil, "", false
	}
	if (username == nil && email == nil) || (username != nil && email != nil) {
		return nil, nil, "", false
	}
	return username, email, password, true
}

func loginIdentifier(username, email *string) string {
	if username != nil {
		return identity.NormalizeUsername(*username)
	}
	if email != nil {
		return identity.NormalizeEmail(*email)
	}
	return ""
}

func (h *Handler) lookupUserForLogin(ctx context.Context, username, email *string) (identity.UserAuth, error) {
	if username != nil {
		return h.users.GetUserAuthByUsername(ctx, *username)
	}
	if email != nil {
		return h.users.GetUserAuthByEmail(ctx, *email)
	}
	return identity.UserAuth{}, identity.OpError{Op: "auth.lookupUser", Kind: identity.ErrInvalidInput}
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
