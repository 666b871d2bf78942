package database

import (
	"path/filepath"
	"testing"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/config"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestInitAndMigrate(t *testing.T) {
	db, err := Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "nested", "test.db"),
	})
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, AutoMigrate(db))

	for _, table := range []string{"users", "sessions", "students", "jurors", "articles", "article_jurors", "article_qr_codes", "attendances", "evaluations"} {
		assert.True(t, db.Migrator().HasTable(table), "table %s", table)
	}
	assert.True(t, db.Migrator().HasIndex(&models.Attendance{}, "idx_attendance_article_student"))
}

func TestInit_UnknownDriver(t *testing.T) {
	_, err := Init(config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
}

func TestSeedAdmin(t *testing.T) {
	db, err := Init(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "seed.db")})
	require.NoError(t, err)
	defer Close(db)
	require.NoError(t, AutoMigrate(db))

	created, err := SeedAdmin(db, "admin", "Admin123", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, created)

	// second call is a no-op
	created, err = SeedAdmin(db, "admin2", "Other123", bcrypt.MinCost)
	require.NoError(t, err)
	assert.False(t, created)

	var admins []models.User
	require.NoError(t, db.Where("role = ?", models.RoleAdmin).Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.Equal(t, "admin", admins[0].Username)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admins[0].PasswordHash), []byte("Admin123")))

	// empty credentials skip seeding
	created, err = SeedAdmin(db, "", "", bcrypt.MinCost)
	require.NoError(t, err)
	assert.False(t, created)
}
