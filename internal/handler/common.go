package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/attendance"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/middleware"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const dateTimeLayout = "2006-01-02 15:04:05"

// currentUser writes 401 and returns false when no user is logged in.
func currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "No autenticado")
		return nil, false
	}
	return user, true
}

// currentStudent resolves the student profile of the logged-in user.
func currentStudent(c *gin.Context, db *gorm.DB) (*models.Student, bool) {
	user, ok := currentUser(c)
	if !ok {
		return nil, false
	}
	var student models.Student
	if err := db.WithContext(c.Request.Context()).Where("user_id = ?", user.ID).First(&student).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "Estudiante no encontrado")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar estudiante")
		}
		return nil, false
	}
	return &student, true
}

// currentJuror resolves the juror profile of the logged-in user.
func currentJuror(c *gin.Context, db *gorm.DB) (*models.Juror, bool) {
	user, ok := currentUser(c)
	if !ok {
		return nil, false
	}
	var juror models.Juror
	if err := db.WithContext(c.Request.Context()).Where("user_id = ?", user.ID).First(&juror).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "Jurado no encontrado")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar jurado")
		}
		return nil, false
	}
	return &juror, true
}

// paramID parses a positive numeric path parameter.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "ID inválido")
		return 0, false
	}
	return uint(id), true
}

// writeAttendanceError maps the attendance error taxonomy to HTTP replies.
func writeAttendanceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrInvalidToken):
		util.Error(c, http.StatusUnprocessableEntity, util.CodeQRInvalid, "QR inválido o manipulado")
	case errors.Is(err, attendance.ErrExpired):
		util.Error(c, http.StatusUnprocessableEntity, util.CodeQRExpired, "El QR ha expirado")
	case errors.Is(err, attendance.ErrAlreadyRegistered):
		util.Error(c, http.StatusConflict, util.CodeConflict, "Ya has registrado tu asistencia a este artículo")
	case errors.Is(err, attendance.ErrForbidden):
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "No autorizado para esta operación")
	case errors.Is(err, attendance.ErrNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "Recurso no encontrado")
	case errors.Is(err, context.DeadlineExceeded):
		util.Error(c, http.StatusGatewayTimeout, util.CodeServerTimeout, "Tiempo de espera agotado")
	default:
		_ = c.Error(err)
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error interno")
	}
}
