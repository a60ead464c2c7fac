package middleware

import (
	"errors"
	"strings"

	pkgAuth "ludo-service/pkg/auth"
	appErr "ludo-service/pkg/errors"
	"ludo-service/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ContextPlayerIDKey = "playerID"
	ContextIdentityKey = "identity"
)

// AuthRequired accepts a bearer token, or a token query parameter for
// websocket upgrades where browsers cannot set headers.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			token = strings.TrimSpace(c.Query("token"))
		}
		if token == "" {
			response.AbortError(c, appErr.ErrUnauthorized)
			return
		}

		claims, err := pkgAuth.ParsePlayerToken(token)
		if err != nil {
			response.AbortError(c, appErr.ErrUnauthorized)
			return
		}

		c.Set(ContextPlayerIDKey, claims.PlayerID)
		c.Set(ContextIdentityKey, claims.Identity)
		c.Next()
	}
}

// PlayerID returns the authenticated player, or "" outside AuthRequired.
func PlayerID(c *gin.Context) string {
	return c.GetString(ContextPlayerIDKey)
}

func Identity(c *gin.Context) string {
	return c.GetString(ContextIdentityKey)
}

func extractBearerToken(authHeader string) (string, error) {
	if strings.TrimSpace(authHeader) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
