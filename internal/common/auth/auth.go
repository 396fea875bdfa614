// Package auth resolves a bearer credential to the calling user.
package auth

import (
	"context"
	"fmt"
	"strings"

	"template-ingest/internal/common/config"
)

// Identity is the authenticated caller. Roles are checked separately.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Source string `json:"source"`
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func NewVerifier(cfg config.AuthConfig) (Verifier, error) {
	switch cfg.Mode {
	case config.AuthModeJWT:
		return NewJWTVerifier(cfg.JWT.Secret), nil
	case config.AuthModeKeycloak:
		return NewKeycloakClient(cfg.Keycloak.URL, cfg.Keycloak.Realm, cfg.Keycloak.ClientID, cfg.Keycloak.ClientSecret), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}
