package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/MikeMC777/autoparts-orders/internal/session"
	"github.com/MikeMC777/autoparts-orders/internal/user"
)

const userKey = "user"

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("rid", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		rid, _ := c.Get("rid")
		fields := log.Fields{
			"rid":    rid,
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"dur":    time.Since(start).String(),
		}
		if u := CurrentUser(c); u != nil {
			fields["user"] = u.ID
		}
		entry := log.WithFields(fields)
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("[http] request failed")
			return
		}
		entry.Info("[http] request")
	}
}

type UserGetter interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Auth resolves the bearer token to a user and aborts with 401 otherwise.
func Auth(sessions session.Store, users UserGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		uid, err := sessions.Resolve(c.Request.Context(), token)
		if errors.Is(err, session.ErrUnknownToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			return
		}
		u, err := users.GetByID(c.Request.Context(), uid)
		if errors.Is(err, user.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

func CurrentUser(c *gin.Context) *user.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*user.User)
	return u
}

// RequireRoles lets through only users holding one of roles. Use after Auth.
func RequireRoles(roles ...user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		for _, r := range roles {
			if u.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role " + string(u.Role) + " may not perform this action"})
	}
}
