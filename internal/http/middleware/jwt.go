package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"user-admin-server/internal/utils"
)

const UserIDKey = "user_id"

type TokenVerifier interface {
	Verify(token string) (uint, error)
}

// JWTAuth rejects requests without a valid bearer token and stores the
// token's user id under UserIDKey. Every failure answers with the same
// body; the reason is only logged.
func JWTAuth(tokens TokenVerifier, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, tokenStr, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenStr) == "" {
			abortUnauthorized(c)
			return
		}

		userID, err := tokens.Verify(strings.TrimSpace(tokenStr))
		if err != nil {
			log.Debug("token rejected", "reason", err, "path", c.Request.URL.Path)
			abortUnauthorized(c)
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID returns the identity attached by JWTAuth.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

func abortUnauthorized(c *gin.Context) {
	utils.RespondError(c, utils.NewAppError(http.StatusUnauthorized, "UNAUTHORIZED", "not authorized", nil))
	c.Abort()
}
