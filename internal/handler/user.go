package handler

import (
	"errors"
	"net/http"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func userJSON(u *models.User) gin.H {
	return gin.H{
		"id":         u.ID,
		"username":   u.Username,
		"role":       u.Role,
		"created_at": u.CreatedAt,
	}
}

func studentJSON(s *models.Student) gin.H {
	return gin.H{
		"id":           s.ID,
		"dni":          s.DNI,
		"student_code": s.StudentCode,
		"first_name":   s.FirstName,
		"last_name":    s.LastName,
		"full_name":    s.FullName(),
		"type":         s.Type,
		"campus":       s.Campus,
		"school":       s.School,
		"cycle":        s.Cycle,
	}
}

func jurorJSON(j *models.Juror) gin.H {
	return gin.H{
		"id":         j.ID,
		"username":   j.Username,
		"first_name": j.FirstName,
		"last_name":  j.LastName,
		"full_name":  j.FullName(),
		"specialty":  j.Specialty,
	}
}

// GetMe returns the current account with its student or juror profile.
func GetMe(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}

		resp := util.Response{"user": userJSON(user)}
		ctx := c.Request.Context()
		switch user.Role {
		case models.RoleStudent:
			var s models.Student
			err := db.WithContext(ctx).Where("user_id = ?", user.ID).First(&s).Error
			switch {
			case err == nil:
				resp["student"] = studentJSON(&s)
			case !errors.Is(err, gorm.ErrRecordNotFound):
				util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar estudiante")
				return
			}
		case models.RoleJuror:
			var j models.Juror
			err := db.WithContext(ctx).Where("user_id = ?", user.ID).First(&j).Error
			switch {
			case err == nil:
				resp["juror"] = jurorJSON(&j)
			case !errors.Is(err, gorm.ErrRecordNotFound):
				util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar jurado")
				return
			}
		}
		util.Success(c, resp)
	}
}
