package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"template-ingest/internal/common/auth"
	"template-ingest/internal/common/errors"
	"template-ingest/internal/common/logger"
)

const identityKey = "identity"

var corsAllowedHeaders = "authorization, x-client-info, apikey, content-type"

// LoggerMiddleware logs one line per request.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"duration":  time.Since(start).String(),
			"client_ip": c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.Errors()
			log.Error("HTTP request with errors", fields)
			return
		}
		if strings.HasPrefix(c.Request.URL.Path, "/health") || c.Request.URL.Path == "/metrics" {
			log.Debug("HTTP request", fields)
			return
		}
		log.Info("HTTP request", fields)
	}
}

// CORSMiddleware answers preflight requests with 200 and an empty body.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return func(c *gin.Context) {
		if origin := allowedOrigin(c.GetHeader("Origin"), allowedOrigins); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Headers", corsAllowedHeaders)
			if origin != "*" {
				c.Header("Vary", "Origin")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func allowedOrigin(origin string, allowed []string) string {
	for _, o := range allowed {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

// Authenticate resolves the bearer token to an identity before any handler
// runs. Role checks belong to the pipeline.
func Authenticate(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok || verifier == nil {
			abortWithError(c, errors.NewUnauthorizedError("missing bearer token"))
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			stdErr := errors.AsStandardError(err)
			if stdErr.Code != errors.ErrCodeUnauthorized {
				// the identity provider itself failed
				_ = c.Error(err)
			}
			abortWithError(c, errors.NewUnauthorizedError(stdErr.Details))
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

func identityFrom(c *gin.Context) *auth.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*auth.Identity)
	return identity
}

func abortWithError(c *gin.Context, err error) {
	stdErr := errors.AsStandardError(err)
	c.AbortWithStatusJSON(errors.HTTPStatus(stdErr.Code), gin.H{"error": stdErr.Message})
}
