package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/pkg/apperr"
)

// ErrStale means another writer bumped the cart version first.
var ErrStale = errors.New("cart changed concurrently")

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) GetCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.DB.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Lines.Product").
		Where("user_id = ?", userID).
		First(&cart).Error; err != nil {
		return nil, apperr.FromDB(err, "cart")
	}
	return &cart, nil
}

func (r *GormRepo) ProductByName(ctx context.Context, name string, activeOnly bool) (*models.Product, error) {
	q := r.DB.WithContext(ctx).Where("name = ?", name)
	if activeOnly {
		q = q.Where("status = ?", models.StatusActive)
	}
	var prod models.Product
	if err := q.First(&prod).Error; err != nil {
		return nil, apperr.FromDB(err, "product "+name)
	}
	return &prod, nil
}

// SaveCart writes name and lines if the stored version still equals cart.Version, then bumps it.
// A cart with a nil ID is inserted; losing the insert race to the unique user index is reported as ErrStale.
func (r *GormRepo) SaveCart(ctx context.Context, cart *models.Cart, lines []models.CartLine) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cart.ID == uuid.Nil {
			cart.Version = 1
			if err := tx.Omit(clause.Associations).Create(cart).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrStale
				}
				return err
			}
		} else {
			res := tx.Model(&models.Cart{}).
				Where("id = ? AND version = ?", cart.ID, cart.Version).
				Updates(map[string]any{
					"name":    cart.Name,
					"version": gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrStale
			}
			cart.Version++
		}

		if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.CartLine{}).Error; err != nil {
			return err
		}
		if len(lines) == 0 {
			return nil
		}
		for i := range lines {
			lines[i].ID = uuid.Nil
			lines[i].CartID = cart.ID
			lines[i].Position = i
			lines[i].Product = nil
		}
		return tx.Create(&lines).Error
	})
}
