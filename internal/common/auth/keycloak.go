package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"template-ingest/internal/common/errors"
	commonhttp "template-ingest/internal/common/http"
)

const introspectPath = "/realms/%s/protocol/openid-connect/token/introspect"

// KeycloakClient verifies bearer tokens through the realm's introspection endpoint.
type KeycloakClient struct {
	endpoint     string
	clientID     string
	clientSecret string
	http         *commonhttp.Client
	now          func() time.Time
}

func NewKeycloakClient(baseURL, realm, clientID, clientSecret string) *KeycloakClient {
	return &KeycloakClient{
		endpoint:     strings.TrimSuffix(baseURL, "/") + fmt.Sprintf(introspectPath, url.PathEscape(realm)),
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         commonhttp.NewClient(15 * time.Second),
		now:          time.Now,
	}
}

// introspection is the subset of RFC 7662 fields the service reads.
type introspection struct {
	Active            bool   `json:"active"`
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Exp               int64  `json:"exp"`
}

// Verify maps an active token to an Identity. Upstream outages stay retryable;
// everything else about the token is reported as unauthorized.
func (k *KeycloakClient) Verify(ctx context.Context, token string) (*Identity, error) {
	info, err := k.introspect(ctx, token)
	if err != nil {
		return nil, err
	}

	switch {
	case !info.Active:
		return nil, errors.NewUnauthorizedError("token is not active")
	case info.Sub == "":
		return nil, errors.NewUnauthorizedError("token has no subject")
	case info.Exp > 0 && k.now().Unix() >= info.Exp:
		return nil, errors.NewUnauthorizedError("token expired")
	}

	email := info.Email
	if email == "" && strings.Contains(info.PreferredUsername, "@") {
		email = info.PreferredUsername
	}
	return &Identity{UserID: info.Sub, Email: email, Source: "keycloak"}, nil
}

func (k *KeycloakClient) introspect(ctx context.Context, token string) (*introspection, error) {
	form := url.Values{
		"token":           {token},
		"token_type_hint": {"access_token"},
		"client_id":       {k.clientID},
		"client_secret":   {k.clientSecret},
	}

	req, err := http.NewRequest(http.MethodPost, k.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.NewAuthenticationError(err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := k.http.DoWithContext(ctx, req)
	if err != nil {
		return nil, errors.NewExternalServiceError("keycloak", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &errors.StandardError{
			Code:      errors.ErrCodeExternalService,
			Message:   "Keycloak introspection failed",
			Details:   fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			Retryable: resp.StatusCode >= http.StatusInternalServerError,
			Timestamp: time.Now(),
		}
	}

	var info introspection
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.NewUnauthorizedError("malformed introspection response")
	}
	return &info, nil
}
