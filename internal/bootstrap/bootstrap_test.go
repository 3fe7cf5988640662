package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/testutil"
	"github.com/Skotchmaster/storefront/pkg/hash"
)

func TestSeed_Idempotent(t *testing.T) {
	t.Parallel()
	db := testutil.NewDB(t)
	s := &Seeder{DB: db, AdminEmail: "Admin@Example.com", AdminPassword: "Admin1234#"}
	ctx := context.Background()

	first, err := s.Seed(ctx)
	require.NoError(t, err)
	second, err := s.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var admins, categories int64
	require.NoError(t, db.Model(&models.User{}).Where("email = ?", "admin@example.com").Count(&admins).Error)
	require.NoError(t, db.Model(&models.Category{}).Where("name = ?", models.DefaultCategoryName).Count(&categories).Error)
	assert.EqualValues(t, 1, admins)
	assert.EqualValues(t, 1, categories)

	var admin models.User
	require.NoError(t, db.First(&admin, "id = ?", first.AdminID).Error)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.Equal(t, "admin", admin.Username)
	assert.True(t, hash.CheckPassword(admin.PasswordHash, "Admin1234#"))
}

func TestEnsureDefaultCategory_KeepsExistingRow(t *testing.T) {
	t.Parallel()
	db := testutil.NewDB(t)
	existing := &models.Category{Name: models.DefaultCategoryName, Description: "custom", Status: models.StatusActive}
	require.NoError(t, db.Create(existing).Error)

	cat, err := (&Seeder{DB: db}).EnsureDefaultCategory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, existing.ID, cat.ID)
	assert.Equal(t, "custom", cat.Description)
}

func TestEnsureDefaultAdmin_RequiresCredentials(t *testing.T) {
	t.Parallel()
	_, err := (&Seeder{DB: testutil.NewDB(t)}).EnsureDefaultAdmin(context.Background())
	assert.Error(t, err)
}

func TestEnsureDefaultAdmin_UsernameHeldByAnotherEmail(t *testing.T) {
	t.Parallel()
	db := testutil.NewDB(t)
	ctx := context.Background()
	require.NoError(t, db.Create(&models.User{
		Name: "Old", Surname: "Admin", Username: "admin", Email: "old@example.com",
		PasswordHash: "x", Phone: "87654321", Role: models.RoleClient, Status: models.StatusActive,
	}).Error)

	_, err := (&Seeder{DB: db, AdminEmail: "new@example.com", AdminPassword: "Admin1234#"}).Seed(ctx)
	require.ErrorIs(t, err, ErrAdminUsernameTaken)
	assert.Contains(t, err.Error(), "DEFAULT_ADMIN_USERNAME")

	known, err := (&Seeder{
		DB: db, AdminEmail: "new@example.com", AdminPassword: "Admin1234#", AdminUsername: "root",
	}).Seed(ctx)
	require.NoError(t, err)

	var admin models.User
	require.NoError(t, db.First(&admin, "id = ?", known.AdminID).Error)
	assert.Equal(t, "root", admin.Username)
	assert.Equal(t, "new@example.com", admin.Email)
	assert.Equal(t, models.RoleAdmin, admin.Role)
}
