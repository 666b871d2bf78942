package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/middleware"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthHandler issues session tokens for the three kinds of accounts.
type AuthHandler struct {
	DB        *gorm.DB
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

func NewAuthHandler(db *gorm.DB, jwtSecret, issuer string, ttlHours int) *AuthHandler {
	if ttlHours <= 0 {
		ttlHours = 24
	}
	return &AuthHandler{
		DB:        db,
		JWTSecret: jwtSecret,
		Issuer:    issuer,
		TokenTTL:  time.Duration(ttlHours) * time.Hour,
	}
}

// issue records the login, opens a session and signs its token.
func (h *AuthHandler) issue(c *gin.Context, user *models.User) (string, bool) {
	now := time.Now()
	user.LastLoginAt = &now
	user.LastLoginIP = c.ClientIP()

	session := models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(h.TokenTTL),
		ClientIP:  user.LastLoginIP,
	}
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("User").Create(&session).Error; err != nil {
			return err
		}
		return tx.Model(user).
			Updates(map[string]interface{}{"last_login_at": now, "last_login_ip": user.LastLoginIP}).Error
	})
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al iniciar sesión")
		return "", false
	}

	token, err := util.GenerateToken(h.JWTSecret, h.Issuer, session.ID, user.ID, user.Role, h.TokenTTL)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al generar token")
		return "", false
	}
	return token, true
}

// revokeSessions revokes every open session of a user.
func revokeSessions(tx *gorm.DB, userID uint, now time.Time) error {
	return tx.Model(&models.Session{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Updates(map[string]interface{}{"revoked": true, "revoked_at": now}).Error
}

// Logout POST /api/logout revokes the session of the presented token.
func (h *AuthHandler) Logout(c *gin.Context) {
	session, ok := middleware.CurrentSession(c)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "No autenticado")
		return
	}

	now := time.Now()
	if err := h.DB.WithContext(c.Request.Context()).Model(session).
		Updates(map[string]interface{}{"revoked": true, "revoked_at": now}).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al cerrar sesión")
		return
	}
	util.Success(c, util.Response{"message": "Sesión cerrada correctamente"})
}

// ---------- admin ----------

type adminLoginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) LoginAdmin(c *gin.Context) {
	var req adminLoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Parámetros inválidos")
		return
	}

	var user models.User
	err := h.DB.WithContext(c.Request.Context()).
		Where("LOWER(username) = LOWER(?) AND role = ?", strings.TrimSpace(req.Username), models.RoleAdmin).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Las credenciales son incorrectas")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar usuario")
		}
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Las credenciales son incorrectas")
		return
	}

	token, ok := h.issue(c, &user)
	if !ok {
		return
	}
	util.Success(c, util.Response{
		"message": "Login exitoso",
		"token":   token,
		"user":    userJSON(&user),
	})
}

// ---------- student ----------

type studentLoginReq struct {
	DNI         string `json:"dni" binding:"required"`
	StudentCode string `json:"student_code" binding:"required"`
}

func (h *AuthHandler) LoginStudent(c *gin.Context) {
	var req studentLoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Parámetros inválidos")
		return
	}
	req.DNI = strings.TrimSpace(req.DNI)
	if err := util.ValidateDNI(req.DNI); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "El DNI debe tener 8 dígitos")
		return
	}

	var student models.Student
	err := h.DB.WithContext(c.Request.Context()).Preload("User").
		Where("dni = ? AND student_code = ?", req.DNI, strings.TrimSpace(req.StudentCode)).
		First(&student).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Las credenciales son incorrectas")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar estudiante")
		}
		return
	}

	token, ok := h.issue(c, &student.User)
	if !ok {
		return
	}
	util.Success(c, util.Response{
		"message": "Login exitoso",
		"token":   token,
		"user":    userJSON(&student.User),
		"student": studentJSON(&student),
	})
}

// ---------- juror ----------

type jurorLoginReq struct {
	Username string `json:"username" binding:"required"`
	DNI      string `json:"dni" binding:"required"`
}

func (h *AuthHandler) LoginJuror(c *gin.Context) {
	var req jurorLoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Parámetros inválidos")
		return
	}
	req.DNI = strings.TrimSpace(req.DNI)
	if err := util.ValidateDNI(req.DNI); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "El DNI debe tener 8 dígitos")
		return
	}

	var juror models.Juror
	err := h.DB.WithContext(c.Request.Context()).Preload("User").
		Where("username = ? AND dni = ?", strings.TrimSpace(req.Username), req.DNI).
		First(&juror).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "Las credenciales son incorrectas")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar jurado")
		}
		return
	}

	token, ok := h.issue(c, &juror.User)
	if !ok {
		return
	}
	util.Success(c, util.Response{
		"message": "Login exitoso",
		"token":   token,
		"user":    userJSON(&juror.User),
		"juror":   jurorJSON(&juror),
	})
}
