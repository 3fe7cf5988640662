package repo

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/pkg/apperr"
)

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, apperr.FromDB(err, "user")
	}
	return &u, nil
}

func (r *GormRepo) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, apperr.FromDB(err, "user "+username)
	}
	return &u, nil
}

// UserByLogin treats identifier as an email when it contains "@", otherwise as a username.
func (r *GormRepo) UserByLogin(ctx context.Context, identifier string) (*models.User, error) {
	if strings.Contains(identifier, "@") {
		return r.UserByEmail(ctx, identifier)
	}
	return r.UserByUsername(ctx, identifier)
}

func (r *GormRepo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&u).Error; err != nil {
		return nil, apperr.FromDB(err, "user "+email)
	}
	return &u, nil
}

// Taken reports whether column already holds value on a user other than except.
func (r *GormRepo) Taken(ctx context.Context, column, value string, except uuid.UUID) (bool, error) {
	var n int64
	q := r.DB.WithContext(ctx).Model(&models.User{}).Where(column+" = ?", value)
	if except != uuid.Nil {
		q = q.Where("id <> ?", except)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	return apperr.FromDB(r.DB.WithContext(ctx).Create(u).Error, "user "+u.Username)
}

func (r *GormRepo) UpdateUser(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	err := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields).Error
	return apperr.FromDB(err, "user")
}

func (r *GormRepo) ListActiveUsers(ctx context.Context, offset, limit int) (int64, []models.User, error) {
	q := r.DB.WithContext(ctx).Model(&models.User{}).Where("status = ?", models.StatusActive)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, err
	}
	var users []models.User
	if err := q.Order("username ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return 0, nil, err
	}
	return total, users, nil
}

// SetPassword stores hash and revokes every refresh token of the user.
func (r *GormRepo) SetPassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", id).Update("password_hash", hash).Error; err != nil {
			return err
		}
		return revokeAll(tx, id)
	})
}

// Deactivate marks the user inactive and revokes its refresh tokens.
func (r *GormRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND status = ?", id, models.StatusActive).
			Update("status", models.StatusInactive)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrAlreadyInactive
		}
		return revokeAll(tx, id)
	})
}
