package authapi

import (
	"errors"
	"net/http"
	"strings"

	"codeplat/cmd/identity"
	"codeplat/cmd/internal/verify"
)

func (h *Handler) handleVerificationSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req verificationSendRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	email := identity.NormalizeEmail(req.Email)
	if !identity.ValidEmail(email) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid email")
		return
	}

	// Unknown addresses get the same answer as known ones.
	if _, err := h.users.GetUserByEmail(ctx, email); err != nil {
		if identity.IsNotFound(err) {
			writeJSON(w, http.StatusOK, successResponse{Success: true})
			return
		}
		h.log.Error("auth.verification.lookup.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "db_unavailable", "please retry later")
		return
	}

	if err := h.codes.Send(ctx, h.now().UTC(), email); err != nil {
		var te verify.ThrottledError
		switch {
		case errors.As(err, &te):
			writeRateLimited(w, te.RetryAfter)
		case errors.Is(err, verify.ErrInvalidEmail):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid email")
		default:
			h.log.Error("auth.verification.send.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "send_failed", "please retry later")
		}
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) handleVerificationCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req verificationCheckRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and code are required")
		return
	}

	if err := h.codes.Check(r.Context(), h.now().UTC(), req.Email, strings.TrimSpace(req.Code)); err != nil {
		h.writeCodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req passwordResetRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email, code and new_password are required")
		return
	}

	// Reject a bad password before the code is spent.
	if err := identity.CheckPasswordPolicy(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid password")
		return
	}

	ctx := r.Context()
	u, err := h.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusBadRequest, "code_invalid", "invalid verification code")
			return
		}
		h.log.Error("auth.password_reset.lookup.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "db_unavailable", "please retry later")
		return
	}

	if err := h.codes.Consume(ctx, h.now().UTC(), req.Email, strings.TrimSpace(req.Code)); err != nil {
		h.writeCodeError(w, err)
		return
	}

	if err := h.users.SetPassword(ctx, u.ID, req.NewPassword); err != nil {
		switch {
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid password")
		case identity.IsNotFound(err):
			writeError(w, http.StatusBadRequest, "code_invalid", "invalid verification code")
		default:
			h.log.Error("auth.password_reset.set.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "db_unavailable", "please retry later")
		}
		return
	}

	// A new password ends every existing session.
	n, err := h.sessions.InvalidateAll(ctx, u.ID)
	if err != nil {
		h.log.Error("auth.password_reset.revoke.fail", "err", err)
		writeSessionError(w, err)
		return
	}

	h.auditPasswordReset(ctx, u.ID, n, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	writeJSON(w, http.StatusOK, successResponse{Success: true, Revoked: &n})
}

func (h *Handler) writeCodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, verify.ErrCodeInvalid):
		writeError(w, http.StatusBadRequest, "code_invalid", "invalid verification code")
	case errors.Is(err, verify.ErrCodeExpired):
		writeError(w, http.StatusBadRequest, "code_expired", "verification code expired")
	case errors.Is(err, verify.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "too_many_attempts", "too many attempts")
	default:
		h.log.Error("auth.verification.check.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "db_unavailable", "please retry later")
	}
}
