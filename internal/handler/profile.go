package handler

import (
	"net/http"
	"time"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ChangePasswordReq changes the password of an administrator account.
type ChangePasswordReq struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// ChangePassword PUT /api/admin/password
// Students and jurors log in with their identity documents and have no
// password to change.
func ChangePassword(db *gorm.DB, cost int) gin.HandlerFunc {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		if user.Role != models.RoleAdmin {
			util.Error(c, http.StatusForbidden, util.CodeForbidden, "No autorizado")
			return
		}

		var req ChangePasswordReq
		if err := c.ShouldBindJSON(&req); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Parámetros inválidos")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "La contraseña actual es incorrecta")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), cost)
		if err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al cifrar la contraseña")
			return
		}

		// every open session, this one included, must log in again
		err = db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(user).Update("password_hash", string(hash)).Error; err != nil {
				return err
			}
			return revokeSessions(tx, user.ID, time.Now())
		})
		if err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al actualizar la contraseña")
			return
		}

		util.Success(c, util.Response{
			"message": "Contraseña actualizada, vuelve a iniciar sesión",
		})
	}
}
