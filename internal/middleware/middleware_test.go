package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/config"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/database"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const secret = "mw-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Init(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "mw.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// openSession persists a session and signs a token for it.
func openSession(t *testing.T, db *gorm.DB, user *models.User, role string, ttl time.Duration) (string, *models.Session) {
	t.Helper()
	sess := models.Session{ID: uuid.NewString(), UserID: user.ID, ExpiresAt: time.Now().Add(ttl)}
	require.NoError(t, db.Omit("User").Create(&sess).Error)
	tok, err := util.GenerateToken(secret, "test", sess.ID, user.ID, role, time.Hour)
	require.NoError(t, err)
	return tok, &sess
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	db := setupDB(t)
	user := models.User{Username: "C0001", Role: models.RoleStudent}
	require.NoError(t, db.Create(&user).Error)

	r := gin.New()
	r.GET("/p", AuthMiddleware(secret, db), RequireRole(models.RoleStudent), func(c *gin.Context) {
		u, ok := CurrentUser(c)
		require.True(t, ok)
		c.String(http.StatusOK, u.Username)
	})
	r.GET("/admin", AuthMiddleware(secret, db), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tok, _ := openSession(t, db, &user, user.Role, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "C0001", w.Body.String())

	// query parameter fallback
	w = serve(r, httptest.NewRequest(http.MethodGet, "/p?token="+tok, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = serve(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// missing, foreign and stale-role tokens
	w = serve(r, httptest.NewRequest(http.MethodGet, "/p", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	foreign, err := util.GenerateToken("other", "test", uuid.NewString(), user.ID, user.Role, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+foreign)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	asJuror, _ := openSession(t, db, &user, models.RoleJuror, time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+asJuror)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	ghost, err := util.GenerateToken(secret, "test", uuid.NewString(), 999, models.RoleStudent, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+ghost)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}

func TestAuthMiddleware_Sessions(t *testing.T) {
	db := setupDB(t)
	user := models.User{Username: "C0002", Role: models.RoleStudent}
	require.NoError(t, db.Create(&user).Error)

	r := gin.New()
	r.GET("/p", AuthMiddleware(secret, db), func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		require.True(t, ok)
		c.String(http.StatusOK, sess.ID)
	})
	call := func(tok string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		return serve(r, req)
	}

	tok, sess := openSession(t, db, &user, user.Role, time.Hour)
	w := call(tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sess.ID, w.Body.String())

	// revoked
	require.NoError(t, db.Model(sess).Update("revoked", true).Error)
	assert.Equal(t, http.StatusUnauthorized, call(tok).Code)

	// session already past its expiry while the jwt is still valid
	expiredTok, _ := openSession(t, db, &user, user.Role, -time.Minute)
	assert.Equal(t, http.StatusUnauthorized, call(expiredTok).Code)

	// signed token whose session was never persisted
	orphan, err := util.GenerateToken(secret, "test", uuid.NewString(), user.ID, user.Role, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(orphan).Code)

	// another user's session id
	other := models.User{Username: "C0003", Role: models.RoleStudent}
	require.NoError(t, db.Create(&other).Error)
	_, otherSess := openSession(t, db, &other, other.Role, time.Hour)
	stolen, err := util.GenerateToken(secret, "test", otherSess.ID, user.ID, user.Role, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(stolen).Code)
}

func TestRequireRole_NoUser(t *testing.T) {
	r := gin.New()
	r.GET("/x", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(RequestLogger(log))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/items/7", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := serve(r, req)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "req-123", line["request_id"])
	assert.Equal(t, "/items/:id", line["path"])
	assert.EqualValues(t, http.StatusNotFound, line["status"])

	// generated id when the client sends none
	buf.Reset()
	w = serve(r, httptest.NewRequest(http.MethodGet, "/items/8", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(20 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
			c.String(http.StatusGatewayTimeout, c.Request.Context().Err().Error())
		case <-time.After(time.Second):
			c.Status(http.StatusOK)
		}
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), "deadline exceeded")
}
