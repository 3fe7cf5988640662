package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/pkg/apperr"
)

// ErrStale means the cart or invoice version moved between read and write.
var ErrStale = errors.New("changed concurrently")

type GormRepo struct {
	DB *gorm.DB
}

func orderedLines(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }

func (r *GormRepo) CartForUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.DB.WithContext(ctx).
		Preload("Lines", orderedLines).
		Preload("Lines.Product").
		Where("user_id = ?", userID).
		First(&cart).Error; err != nil {
		return nil, apperr.FromDB(err, "cart")
	}
	return &cart, nil
}

func (r *GormRepo) CartExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.Cart{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, apperr.FromDB(err, "user")
	}
	return &user, nil
}

func (r *GormRepo) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, apperr.FromDB(err, "user "+username)
	}
	return &user, nil
}

func (r *GormRepo) ProductByName(ctx context.Context, name string) (*models.Product, error) {
	var prod models.Product
	if err := r.DB.WithContext(ctx).Where("name = ?", name).First(&prod).Error; err != nil {
		return nil, apperr.FromDB(err, "product "+name)
	}
	return &prod, nil
}

func (r *GormRepo) GetInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	if err := r.DB.WithContext(ctx).Preload("Lines", orderedLines).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, apperr.FromDB(err, "invoice")
	}
	return &inv, nil
}

func (r *GormRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error) {
	var items []models.Invoice
	if err := r.DB.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// takeStock decrements stock and raises sold quantity only while enough stock remains.
func takeStock(tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	res := tx.Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Updates(map[string]any{
			"stock":         gorm.Expr("stock - ?", qty),
			"sold_quantity": gorm.Expr("sold_quantity + ?", qty),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func giveStock(tx *gorm.DB, productID uuid.UUID, qty int) error {
	return tx.Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"stock":         gorm.Expr("stock + ?", qty),
			"sold_quantity": gorm.Expr("CASE WHEN sold_quantity >= ? THEN sold_quantity - ? ELSE 0 END", qty, qty),
		}).Error
}

func insertLines(tx *gorm.DB, invoiceID uuid.UUID, lines []models.InvoiceLine) error {
	for i := range lines {
		lines[i].ID = uuid.Nil
		lines[i].InvoiceID = invoiceID
		lines[i].Position = i
	}
	return tx.Create(&lines).Error
}

// byProduct orders row locks the same way in every transaction.
func byProduct(lines []models.InvoiceLine) []models.InvoiceLine {
	out := append([]models.InvoiceLine(nil), lines...)
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID.String() < out[j].ProductID.String() })
	return out
}

// Commit takes stock for every line, stores the invoice and empties the cart, all or nothing.
func (r *GormRepo) Commit(ctx context.Context, inv *models.Invoice, cartVersion int64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Cart{}).
			Where("id = ? AND version = ?", inv.CartID, cartVersion).
			Update("version", gorm.Expr("version + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStale
		}

		for _, line := range byProduct(inv.Lines) {
			ok, err := takeStock(tx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("not enough %q in stock for %d: %w", line.Name, line.Quantity, apperr.ErrInsufficientStock)
			}
		}

		lines := inv.Lines
		inv.Lines = nil
		inv.Version = 1
		if err := tx.Omit(clause.Associations).Create(inv).Error; err != nil {
			return err
		}
		if err := insertLines(tx, inv.ID, lines); err != nil {
			return err
		}
		inv.Lines = lines

		return tx.Where("cart_id = ?", inv.CartID).Delete(&models.CartLine{}).Error
	})
}

// Revise applies per-product stock deltas and replaces the invoice lines if inv.Version is still current.
func (r *GormRepo) Revise(ctx context.Context, inv *models.Invoice, deltas map[uuid.UUID]int, names map[uuid.UUID]string, lines []models.InvoiceLine, total decimal.Decimal) error {
	ids := make([]uuid.UUID, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND version = ?", inv.ID, inv.Version).
			Updates(map[string]any{
				"total_amount": total,
				"version":      gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStale
		}

		for _, id := range ids {
			d := deltas[id]
			switch {
			case d > 0:
				ok, err := takeStock(tx, id, d)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("not enough %q in stock for %d more: %w", names[id], d, apperr.ErrInsufficientStock)
				}
			case d < 0:
				if err := giveStock(tx, id, -d); err != nil {
					return err
				}
			}
		}

		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceLine{}).Error; err != nil {
			return err
		}
		return insertLines(tx, inv.ID, lines)
	})
}

func (r *GormRepo) SetDocument(ctx context.Context, id uuid.UUID, state models.DocumentState, key string) error {
	return r.DB.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ?", id).
		Updates(map[string]any{"document_state": state, "document_key": key}).Error
}
