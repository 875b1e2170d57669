package authapi

import (
	"codeplat/cmd/identity"
	"codeplat/cmd/internal/auth/session"
)

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func toSessionResponse(s session.SessionInfo, currentID string) sessionResponse {
	var ip *string
	if s.IPAddress != nil {
		v := s.IPAddress.String()
		ip = &v
	}
	return sessionResponse{
		ID:             s.ID,
		Current:        s.ID == currentID,
		IPAddress:      ip,
		UserAgent:      s.UserAgent,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
	}
}
