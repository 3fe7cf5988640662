package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/pkg/apperr"
)

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var cat models.Category
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&cat).Error; err != nil {
		return nil, apperr.FromDB(err, "category")
	}
	return &cat, nil
}

// GetCategoryByName ignores status so callers can tell a deleted category from a missing one.
func (r *GormRepo) GetCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	var cat models.Category
	if err := r.DB.WithContext(ctx).Where("name = ?", name).First(&cat).Error; err != nil {
		return nil, apperr.FromDB(err, "category "+name)
	}
	return &cat, nil
}

func (r *GormRepo) ListCategories(ctx context.Context) ([]models.Category, error) {
	var cats []models.Category
	if err := r.DB.WithContext(ctx).
		Where("status = ?", models.StatusActive).
		Order("name ASC").
		Find(&cats).Error; err != nil {
		return nil, err
	}
	return cats, nil
}

func (r *GormRepo) CreateCategory(ctx context.Context, cat *models.Category) error {
	return apperr.FromDB(r.DB.WithContext(ctx).Create(cat).Error, "category "+cat.Name)
}

func (r *GormRepo) UpdateCategory(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	err := r.DB.WithContext(ctx).Model(&models.Category{}).Where("id = ?", id).Updates(fields).Error
	return apperr.FromDB(err, "category")
}

// DeactivateCategory moves every product of id onto fallback and marks id inactive in one transaction.
// It returns the ids of the moved products.
func (r *GormRepo) DeactivateCategory(ctx context.Context, id, fallback uuid.UUID) ([]uuid.UUID, error) {
	var moved []uuid.UUID
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Category{}).
			Where("id = ? AND status = ?", id, models.StatusActive).
			Update("status", models.StatusInactive)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrAlreadyInactive
		}

		if err := tx.Model(&models.Product{}).
			Where("category_id = ?", id).
			Order("id").
			Pluck("id", &moved).Error; err != nil {
			return err
		}
		if len(moved) == 0 {
			return nil
		}
		return tx.Model(&models.Product{}).
			Where("id IN ?", moved).
			Update("category_id", fallback).Error
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

func (r *GormRepo) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var prod models.Product
	if err := r.DB.WithContext(ctx).Preload("Category").Where("id = ?", id).First(&prod).Error; err != nil {
		return nil, apperr.FromDB(err, "product")
	}
	return &prod, nil
}

func (r *GormRepo) GetActiveProductByName(ctx context.Context, name string) (*models.Product, error) {
	var prod models.Product
	if err := r.DB.WithContext(ctx).Preload("Category").
		Where("name = ? AND status = ?", name, models.StatusActive).
		First(&prod).Error; err != nil {
		return nil, apperr.FromDB(err, "product "+name)
	}
	return &prod, nil
}

func (r *GormRepo) ProductNameTaken(ctx context.Context, name string, except uuid.UUID) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.Product{}).
		Where("name = ? AND id <> ?", name, except).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) CreateProduct(ctx context.Context, prod *models.Product) error {
	err := r.DB.WithContext(ctx).Omit(clause.Associations).Create(prod).Error
	return apperr.FromDB(err, "product "+prod.Name)
}

// PatchProduct writes only the named columns of product id.
func (r *GormRepo) PatchProduct(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.DB.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return apperr.FromDB(res.Error, "product")
	}
	if res.RowsAffected == 0 {
		return apperr.FromDB(gorm.ErrRecordNotFound, "product")
	}
	return nil
}

func (r *GormRepo) DeactivateProduct(ctx context.Context, id uuid.UUID) error {
	res := r.DB.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Update("status", models.StatusInactive)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrAlreadyInactive
	}
	return nil
}

type ProductFilter struct {
	CategoryID  uuid.UUID
	BestSellers bool
}

func (r *GormRepo) ListProducts(ctx context.Context, f ProductFilter, offset, limit int) (int64, []models.Product, error) {
	q := r.DB.WithContext(ctx).Model(&models.Product{}).Where("status = ?", models.StatusActive)
	if f.CategoryID != uuid.Nil {
		q = q.Where("category_id = ?", f.CategoryID)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	order := "name ASC"
	if f.BestSellers {
		order = "sold_quantity DESC, name ASC"
	}

	items := make([]models.Product, 0, limit)
	if err := q.Session(&gorm.Session{}).Preload("Category").
		Order(order).Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) OutOfStock(ctx context.Context) ([]models.Product, error) {
	var items []models.Product
	if err := r.DB.WithContext(ctx).Preload("Category").
		Where("stock = 0 AND status = ?", models.StatusActive).
		Order("name ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) BestSellers(ctx context.Context, limit int) ([]models.Product, error) {
	var items []models.Product
	if err := r.DB.WithContext(ctx).Preload("Category").
		Where("status = ?", models.StatusActive).
		Order("sold_quantity DESC, name ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
