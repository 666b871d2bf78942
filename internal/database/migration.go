package database

import (
	"fmt"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"

	"gorm.io/gorm"
)

// AutoMigrate runs database schema migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Student{},
		&models.Juror{},
		&models.Article{},
		&models.ArticleJuror{},
		&models.QRToken{},
		&models.Attendance{},
		&models.Evaluation{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
