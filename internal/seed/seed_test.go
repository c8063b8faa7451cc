package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"biblio/internal/config"
	"biblio/internal/database"
	"biblio/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	return db
}

func TestEnsureAdmin(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.Config{AdminUsername: "admin@localhost", AdminPassword: "bootstrap-secret"}

	require.NoError(t, EnsureAdmin(context.Background(), db, cfg))

	var admin models.User
	require.NoError(t, db.Where("username = ?", "admin@localhost").First(&admin).Error)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte("bootstrap-secret")))

	// idempotent: a second run creates nothing
	require.NoError(t, EnsureAdmin(context.Background(), db, cfg))
	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnsureAdminGeneratesPassword(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.Config{AdminUsername: "admin@localhost"}

	require.NoError(t, EnsureAdmin(context.Background(), db, cfg))

	var admin models.User
	require.NoError(t, db.Where("username = ?", "admin@localhost").First(&admin).Error)
	assert.NotEmpty(t, admin.Password)
}

func TestSeedPopulatesCatalog(t *testing.T) {
	db := newTestDB(t)
	s := NewSeeder(db)

	require.NoError(t, s.Seed(Options{
		NumAuthors:      5,
		NumPublications: 8,
		NumRequests:     4,
		ShouldClean:     true,
	}))

	var authors, publications, requests, categories int64
	require.NoError(t, db.Model(&models.Author{}).Count(&authors).Error)
	require.NoError(t, db.Model(&models.Publication{}).Count(&publications).Error)
	require.NoError(t, db.Model(&models.Request{}).Count(&requests).Error)
	require.NoError(t, db.Model(&models.Category{}).Count(&categories).Error)

	assert.Equal(t, int64(5), authors)
	assert.Equal(t, int64(8), publications)
	assert.Equal(t, int64(4), requests)
	assert.Equal(t, int64(len(categoryNames)), categories)

	var pending int64
	require.NoError(t, db.Model(&models.Request{}).
		Where("status = ?", models.RequestStatusPending).Count(&pending).Error)
	assert.Equal(t, requests, pending)
}

func TestClearAllRemovesSeededData(t *testing.T) {
	db := newTestDB(t)
	s := NewSeeder(db)
	require.NoError(t, s.Seed(Options{NumAuthors: 2, NumPublications: 3, NumRequests: 2}))

	require.NoError(t, s.ClearAll())

	var publications int64
	require.NoError(t, db.Model(&models.Publication{}).Count(&publications).Error)
	assert.Zero(t, publications)
}
