// Package bootstrap creates the rows every deployment relies on: the first administrator and the
// fallback product category.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/pkg/hash"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

const (
	defaultCategoryDescription = "Products without a category of their own"
	defaultAdminUsername       = "admin"
)

// ErrAdminUsernameTaken means the admin username belongs to an account with another email.
var ErrAdminUsernameTaken = errors.New("admin username is used by another account")

type Seeder struct {
	DB            *gorm.DB
	AdminEmail    string
	AdminPassword string
	// AdminUsername defaults to "admin".
	AdminUsername string
}

// WellKnown holds the ids of seeded rows so callers never look them up by name again.
type WellKnown struct {
	AdminID           uuid.UUID
	DefaultCategoryID uuid.UUID
}

func (s *Seeder) Seed(ctx context.Context) (WellKnown, error) {
	admin, err := s.EnsureDefaultAdmin(ctx)
	if err != nil {
		return WellKnown{}, fmt.Errorf("seed admin: %w", err)
	}
	cat, err := s.EnsureDefaultCategory(ctx)
	if err != nil {
		return WellKnown{}, fmt.Errorf("seed default category: %w", err)
	}
	return WellKnown{AdminID: admin.ID, DefaultCategoryID: cat.ID}, nil
}

// EnsureDefaultAdmin creates the administrator identified by AdminEmail unless it already exists.
func (s *Seeder) EnsureDefaultAdmin(ctx context.Context) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "bootstrap.admin")
	email := strings.ToLower(strings.TrimSpace(s.AdminEmail))
	if email == "" || s.AdminPassword == "" {
		return nil, errors.New("admin email and password are required")
	}

	var existing models.User
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		l.Info("admin_present", "user_id", existing.ID)
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	username := strings.TrimSpace(s.AdminUsername)
	if username == "" {
		username = defaultAdminUsername
	}
	if err := s.usernameFree(ctx, username); err != nil {
		return nil, err
	}

	pw, err := hash.HashPassword(s.AdminPassword)
	if err != nil {
		return nil, err
	}
	admin := models.User{
		Name:         "Admin",
		Surname:      "User",
		Username:     username,
		Email:        email,
		PasswordHash: pw,
		Phone:        "12345678",
		Role:         models.RoleAdmin,
		Status:       models.StatusActive,
	}
	res := s.DB.WithContext(ctx).Where("email = ?", email).FirstOrCreate(&admin)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return s.reread(ctx, email, username)
		}
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		l.Info("admin_created", "user_id", admin.ID, "email", email)
	}
	return &admin, nil
}

func (s *Seeder) usernameFree(ctx context.Context, username string) error {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %q, set DEFAULT_ADMIN_USERNAME or DEFAULT_ADMIN_EMAIL to the existing admin", ErrAdminUsernameTaken, username)
	}
	return nil
}

// reread handles losing a create race to another instance.
func (s *Seeder) reread(ctx context.Context, email, username string) (*models.User, error) {
	var u models.User
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if ferr := s.usernameFree(ctx, username); ferr != nil {
			return nil, ferr
		}
		return nil, fmt.Errorf("admin %s: %w", email, err)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureDefaultCategory creates CATEGORY_DEFAULT unless it already exists.
func (s *Seeder) EnsureDefaultCategory(ctx context.Context) (*models.Category, error) {
	l := logging.FromContext(ctx).With("svc", "bootstrap.category")

	cat := models.Category{
		Name:        models.DefaultCategoryName,
		Description: defaultCategoryDescription,
		Status:      models.StatusActive,
	}
	res := s.DB.WithContext(ctx).Where("name = ?", models.DefaultCategoryName).FirstOrCreate(&cat)
	if res.Error != nil {
		if !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, res.Error
		}
		if err := s.DB.WithContext(ctx).Where("name = ?", models.DefaultCategoryName).First(&cat).Error; err != nil {
			return nil, err
		}
		return &cat, nil
	}
	if res.RowsAffected == 1 {
		l.Info("default_category_created", "category_id", cat.ID)
	}
	return &cat, nil
}
