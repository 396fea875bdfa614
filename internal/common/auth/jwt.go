package auth

import (
	"context"
	stderrors "errors"

	"github.com/golang-jwt/jwt/v5"

	"template-ingest/internal/common/errors"
)

// Claims represents JWT claims
type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier accepts HMAC-signed tokens issued with the shared secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, stderrors.New("invalid signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, errors.NewUnauthorizedError(err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Sub == "" {
		return nil, errors.NewUnauthorizedError("token has no subject")
	}

	return &Identity{UserID: claims.Sub, Email: claims.Email, Source: "jwt"}, nil
}

// Sign issues a token with the same secret; used by tooling and tests.
func (v *JWTVerifier) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
