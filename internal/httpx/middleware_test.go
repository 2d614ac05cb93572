package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/autoparts-orders/internal/session"
	"github.com/MikeMC777/autoparts-orders/internal/user"
)

type stubUsers map[string]*user.User

func (s stubUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, user.ErrNotFound
}

func newRouter(t *testing.T, roles ...user.Role) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := session.NewMemoryStore(time.Hour)
	users := stubUsers{"u1": {ID: "u1", Role: user.RoleCustomer}}
	token, _, err := sessions.Issue(context.Background(), "u1")
	require.NoError(t, err)

	r := gin.New()
	r.Use(RequestID())
	chain := []gin.HandlerFunc{Auth(sessions, users)}
	if len(roles) > 0 {
		chain = append(chain, RequireRoles(roles...))
	}
	chain = append(chain, func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).ID)
	})
	r.GET("/me", chain...)
	return r, token
}

func TestAuth_RejectsMissingToken(t *testing.T) {
	r, _ := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAuth_RejectsUnknownToken(t *testing.T) {
	r, _ := newRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_ResolvesUser(t *testing.T) {
	r, token := newRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())
}

func TestRequireRoles_Forbids(t *testing.T) {
	r, token := newRouter(t, user.RoleAdmin, user.RoleSupplier)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
