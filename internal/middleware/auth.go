package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Context keys set by AuthMiddleware.
const (
	CurrentUserKey    = "currentUser"
	CurrentSessionKey = "currentSession"
)

// AuthMiddleware verifies the session JWT and stores the current user in
// the context.
func AuthMiddleware(jwtSecret string, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenStr string

		// 1) Header: Authorization: Bearer xxx
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenStr = strings.TrimSpace(parts[1])
			}
		}

		// 2) ?token=xxx, for clients that cannot set headers
		if tokenStr == "" {
			tokenStr = c.Query("token")
		}

		if tokenStr == "" {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "No autenticado")
			c.Abort()
			return
		}

		claims, err := util.ParseToken(jwtSecret, tokenStr)
		if err != nil {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Sesión inválida o expirada")
			c.Abort()
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Usuario no existe")
			} else {
				util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar usuario")
			}
			c.Abort()
			return
		}
		if user.Role != claims.Role {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Sesión inválida o expirada")
			c.Abort()
			return
		}

		// 3) the session behind the token must not be revoked
		var session models.Session
		err = db.WithContext(c.Request.Context()).
			Where("id = ? AND user_id = ?", claims.ID, user.ID).First(&session).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar sesión")
			c.Abort()
			return
		}
		if err != nil || !session.Active(time.Now()) {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Sesión cerrada o expirada")
			c.Abort()
			return
		}

		c.Set(CurrentUserKey, &user)
		c.Set(CurrentSessionKey, &session)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the current user has one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "No autenticado")
			c.Abort()
			return
		}
		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "No autorizado")
		c.Abort()
	}
}

// CurrentUser returns the user stored by AuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(CurrentUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}

// CurrentSession returns the session stored by AuthMiddleware.
func CurrentSession(c *gin.Context) (*models.Session, bool) {
	v, ok := c.Get(CurrentSessionKey)
	if !ok {
		return nil, false
	}
	session, ok := v.(*models.Session)
	return session, ok && session != nil
}
