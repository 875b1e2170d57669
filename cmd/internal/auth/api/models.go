package authapi

import "time"

type registerRequest struct {
	Username string  `json:"username"`
	Email    *string `json:"email"`
	Password string  `json:"password"`
}

type loginRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password string  `json:"password"`
}

type verificationSendRequest struct {
	Email string `json:"email"`
}

type verificationCheckRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type passwordResetRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     *string   `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type registerResponse struct {
	User userResponse `json:"user"`
}

type loginResponse struct {
	Success   bool         `json:"success"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

type validateResponse struct {
	Valid    bool   `json:"valid"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Revoked *int64 `json:"revoked,omitempty"`
}

type sessionResponse struct {
	ID             string    `json:"id"`
	Current        bool      `json:"current"`
	IPAddress      *string   `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type sessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type meResponse struct {
	User userResponse `json:"user"`
}
