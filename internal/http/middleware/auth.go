package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

const (
	headerAdminKey = "X-Admin-Key"
	adminRole      = "admin"
)

var errNotAdmin = errors.New("admin role required")

// AdminAuth guards operator routes. A request passes with either an HS256
// bearer token whose role claim is "admin", or an X-Admin-Key header
// matching the configured bcrypt hash.
type AdminAuth struct {
	log        *logger.Logger
	jwtSecret  []byte
	apiKeyHash []byte
}

func NewAdminAuth(log *logger.Logger, jwtSecret, apiKeyHash string) *AdminAuth {
	a := &AdminAuth{log: log.With("Middleware", "AdminAuth")}
	if s := strings.TrimSpace(jwtSecret); s != "" {
		a.jwtSecret = []byte(s)
	}
	if h := strings.TrimSpace(apiKeyHash); h != "" {
		a.apiKeyHash = []byte(h)
	}
	if a.jwtSecret == nil && a.apiKeyHash == nil {
		a.log.Warn("no admin credentials configured; recovery routes will reject every request")
	}
	return a
}

func (a *AdminAuth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := strings.TrimSpace(c.GetHeader(headerAdminKey)); key != "" && a.apiKeyHash != nil {
			if bcrypt.CompareHashAndPassword(a.apiKeyHash, []byte(key)) == nil {
				c.Set("admin_via", "api_key")
				c.Next()
				return
			}
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "invalid admin key")
			return
		}

		token := bearerToken(c)
		if token == "" || a.jwtSecret == nil {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		sub, err := a.verify(token)
		if errors.Is(err, errNotAdmin) {
			abortAuth(c, http.StatusForbidden, "forbidden", err.Error())
			return
		}
		if err != nil {
			a.log.Debug("admin token rejected", "error", err)
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		c.Set("admin_via", "jwt")
		c.Set("admin_subject", sub)
		c.Next()
	}
}

func (a *AdminAuth) verify(token string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	role, _ := claims["role"].(string)
	if role != adminRole {
		return "", errNotAdmin
	}
	sub, _ := claims.GetSubject()
	return sub, nil
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func abortAuth(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{"message": msg, "code": code},
	})
}
