package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	jwthelp "github.com/Skotchmaster/storefront/pkg/jwt"
)

func revokeAll(tx *gorm.DB, userID uuid.UUID) error {
	return tx.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
}

func (r *GormRepo) StoreRefresh(ctx context.Context, t *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

// RotateRefresh revokes the token identified by oldJTI and raw value, then stores next.
// Unknown, revoked or expired tokens are ErrUnauthorized.
func (r *GormRepo) RotateRefresh(ctx context.Context, oldJTI, raw string, now time.Time, next *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("jti = ? AND token = ? AND revoked = ? AND expires_at > ?", oldJTI, jwthelp.Sha256Hex(raw), false, now).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("refresh token expired, revoked or unknown: %w", apperr.ErrUnauthorized)
		}
		return tx.Create(next).Error
	})
}

func (r *GormRepo) RevokeRefresh(ctx context.Context, raw string) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token = ?", jwthelp.Sha256Hex(raw)).
		Update("revoked", true).Error
}
