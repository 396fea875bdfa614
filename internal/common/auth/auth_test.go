package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"template-ingest/internal/common/config"
	"template-ingest/internal/common/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := BearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ==========================
// JWT
// ==========================

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier("s3cret")

	token, err := v.Sign(Claims{
		Sub:              "user-1",
		Email:            "admin@example.com",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, &Identity{UserID: "user-1", Email: "admin@example.com", Source: "jwt"}, id)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	good := NewJWTVerifier("s3cret")
	other := NewJWTVerifier("other")

	expired, err := good.Sign(Claims{Sub: "u", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	require.NoError(t, err)
	wrongKey, err := other.Sign(Claims{Sub: "u"})
	require.NoError(t, err)
	noSubject, err := good.Sign(Claims{})
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":    expired,
		"wrong key":  wrongKey,
		"no subject": noSubject,
		"garbage":    "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := good.Verify(context.Background(), token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
		})
	}
}

// ==========================
// Keycloak
// ==========================

func TestKeycloakClient_Verify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realms/invites/protocol/openid-connect/token/introspect", r.URL.Path)
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("token") == "live" {
			w.Write([]byte(`{"active":true,"sub":"kc-user","email":"a@example.com"}`))
			return
		}
		w.Write([]byte(`{"active":false}`))
	}))
	defer srv.Close()

	kc := NewKeycloakClient(srv.URL+"/", "invites", "ingest", "secret")

	id, err := kc.Verify(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, "kc-user", id.UserID)
	assert.Equal(t, "keycloak", id.Source)

	_, err = kc.Verify(context.Background(), "revoked")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
}

func TestKeycloakClient_VerifyUpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewKeycloakClient(srv.URL, "invites", "ingest", "secret").Verify(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeExternalService))
}

func TestNewVerifier(t *testing.T) {
	var cfg config.AuthConfig
	cfg.Mode = config.AuthModeJWT
	cfg.JWT.Secret = "x"
	v, err := NewVerifier(cfg)
	require.NoError(t, err)
	assert.IsType(t, &JWTVerifier{}, v)

	cfg.Mode = "ldap"
	_, err = NewVerifier(cfg)
	assert.Error(t, err)
}

func TestKeycloakClient_VerifyExpiredAndUsernameFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"active":true,"sub":"kc-user","preferred_username":"ops@example.com","exp":1000}`))
	}))
	defer srv.Close()

	kc := NewKeycloakClient(srv.URL, "invites", "ingest", "secret")

	kc.now = func() time.Time { return time.Unix(999, 0) }
	id, err := kc.Verify(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", id.Email)

	kc.now = func() time.Time { return time.Unix(1000, 0) }
	_, err = kc.Verify(context.Background(), "live")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
}
