package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Skotchmaster/storefront/internal/catalog/repo"
	"github.com/Skotchmaster/storefront/internal/catalog/transport"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	"github.com/Skotchmaster/storefront/pkg/events"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/search"
	"github.com/Skotchmaster/storefront/pkg/util"
)

const (
	maxCategoryName        = 25
	maxCategoryDescription = 200
	maxProductName         = 100
	defaultStock           = 50
	defaultBestSellers     = 10
)

var ErrSearchDisabled = errors.New("product search is not configured")

type Indexer interface {
	IndexProduct(ctx context.Context, doc search.ProductDoc) error
	DeleteProduct(ctx context.Context, id string) error
	Search(ctx context.Context, query string, from, size int) (int64, []search.ProductDoc, error)
}

type CatalogService struct {
	Repo              *repo.GormRepo
	Events            events.Publisher
	Index             Indexer
	DefaultCategoryID uuid.UUID
}

func requireAdmin(actor models.Actor, what string) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("only admins can %s: %w", what, apperr.ErrForbidden)
	}
	return nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.Repo.ListCategories(ctx)
}

func validateCategory(name, description string) error {
	if name == "" {
		return fmt.Errorf("category name is required: %w", apperr.ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxCategoryName {
		return fmt.Errorf("category name must be at most %d characters: %w", maxCategoryName, apperr.ErrValidation)
	}
	if utf8.RuneCountInString(description) > maxCategoryDescription {
		return fmt.Errorf("category description must be at most %d characters: %w", maxCategoryDescription, apperr.ErrValidation)
	}
	return nil
}

func (s *CatalogService) categoryNameFree(ctx context.Context, name string) error {
	_, err := s.Repo.GetCategoryByName(ctx, name)
	switch {
	case err == nil:
		return fmt.Errorf("category %q already exists: %w", name, apperr.ErrConflict)
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *CatalogService) CreateCategory(ctx context.Context, actor models.Actor, name, description string) (*models.Category, error) {
	if err := requireAdmin(actor, "create categories"); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := validateCategory(name, description); err != nil {
		return nil, err
	}
	if err := s.categoryNameFree(ctx, name); err != nil {
		return nil, err
	}

	cat := &models.Category{Name: name, Description: description, Status: models.StatusActive}
	if err := s.Repo.CreateCategory(ctx, cat); err != nil {
		return nil, err
	}

	events.Emit(ctx, s.Events, events.TopicCategory, cat.ID.String(), map[string]any{
		"type":       "category_created",
		"categoryID": cat.ID,
		"name":       cat.Name,
	})
	return cat, nil
}

// UpdateCategory changes name and description of an active category. The default category keeps its name.
func (s *CatalogService) UpdateCategory(ctx context.Context, actor models.Actor, id uuid.UUID, req transport.PatchCategoryRequest) (*models.Category, error) {
	if err := requireAdmin(actor, "update categories"); err != nil {
		return nil, err
	}
	cat, err := s.Repo.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cat.Status.Active() {
		return nil, fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}

	name, description := cat.Name, cat.Description
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		description = *req.Description
	}
	if err := validateCategory(name, description); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if name != cat.Name {
		if id == s.DefaultCategoryID {
			return nil, fmt.Errorf("the default category cannot be renamed: %w", apperr.ErrForbidden)
		}
		if err := s.categoryNameFree(ctx, name); err != nil {
			return nil, err
		}
		fields["name"] = name
	}
	if description != cat.Description {
		fields["description"] = description
	}
	if err := s.Repo.UpdateCategory(ctx, id, fields); err != nil {
		return nil, err
	}

	events.Emit(ctx, s.Events, events.TopicCategory, id.String(), map[string]any{
		"type":       "category_updated",
		"categoryID": id,
		"name":       name,
	})
	return s.Repo.GetCategory(ctx, id)
}

// DeleteCategory deactivates the category and returns how many products moved to the default category.
func (s *CatalogService) DeleteCategory(ctx context.Context, actor models.Actor, id uuid.UUID) (int64, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.delete_category")

	if err := requireAdmin(actor, "delete categories"); err != nil {
		return 0, err
	}
	cat, err := s.Repo.GetCategory(ctx, id)
	if err != nil {
		return 0, err
	}
	if id == s.DefaultCategoryID {
		return 0, fmt.Errorf("the default category cannot be deleted: %w", apperr.ErrForbidden)
	}
	if !cat.Status.Active() {
		return 0, fmt.Errorf("category %q: %w", cat.Name, apperr.ErrAlreadyInactive)
	}

	movedIDs, err := s.Repo.DeactivateCategory(ctx, id, s.DefaultCategoryID)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyInactive) {
			return 0, fmt.Errorf("category %q: %w", cat.Name, err)
		}
		return 0, err
	}
	moved := int64(len(movedIDs))
	l.Info("category_deactivated", "category_id", id, "moved_products", moved)
	s.reindex(ctx, movedIDs)

	events.Emit(ctx, s.Events, events.TopicCategory, id.String(), map[string]any{
		"type":          "category_deleted",
		"categoryID":    id,
		"movedProducts": moved,
	})
	return moved, nil
}

func (s *CatalogService) activeCategory(ctx context.Context, name string) (*models.Category, error) {
	cat, err := s.Repo.GetCategoryByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !cat.Status.Active() {
		return nil, fmt.Errorf("category %q: %w", name, apperr.ErrNotFound)
	}
	return cat, nil
}

func (s *CatalogService) productNameFree(ctx context.Context, name string, except uuid.UUID) error {
	taken, err := s.Repo.ProductNameTaken(ctx, name, except)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("product %q already exists: %w", name, apperr.ErrConflict)
	}
	return nil
}

func validateProductName(name string) error {
	if name == "" {
		return fmt.Errorf("product name is required: %w", apperr.ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxProductName {
		return fmt.Errorf("product name must be at most %d characters: %w", maxProductName, apperr.ErrValidation)
	}
	return nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, actor models.Actor, req transport.CreateProductRequest) (*models.Product, error) {
	if err := requireAdmin(actor, "create products"); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := validateProductName(name); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("product description is required: %w", apperr.ErrValidation)
	}
	stock := defaultStock
	if req.Stock != nil {
		stock = *req.Stock
	}
	if stock < 0 {
		return nil, fmt.Errorf("stock cannot be negative: %w", apperr.ErrValidation)
	}
	if req.Price == nil {
		return nil, fmt.Errorf("price is required: %w", apperr.ErrValidation)
	}
	if !req.Price.IsPositive() {
		return nil, fmt.Errorf("price must be greater than zero: %w", apperr.ErrInvalidPrice)
	}

	cat, err := s.activeCategory(ctx, req.Category)
	if err != nil {
		return nil, err
	}
	if err := s.productNameFree(ctx, name, uuid.Nil); err != nil {
		return nil, err
	}

	prod := &models.Product{
		Name:        name,
		Stock:       stock,
		Description: req.Description,
		Price:       *req.Price,
		CategoryID:  cat.ID,
		Status:      models.StatusActive,
	}
	if err := s.Repo.CreateProduct(ctx, prod); err != nil {
		return nil, err
	}
	prod.Category = cat

	s.index(ctx, prod)
	events.Emit(ctx, s.Events, events.TopicProduct, prod.ID.String(), map[string]any{
		"type":      "product_created",
		"productID": prod.ID,
		"name":      prod.Name,
	})
	return prod, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, actor models.Actor, id uuid.UUID, req transport.PatchProductRequest) (*models.Product, error) {
	if err := requireAdmin(actor, "update products"); err != nil {
		return nil, err
	}
	prod, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if err := validateProductName(name); err != nil {
			return nil, err
		}
		if name != prod.Name {
			if err := s.productNameFree(ctx, name, prod.ID); err != nil {
				return nil, err
			}
			fields["name"] = name
		}
	}
	if req.Description != nil {
		if strings.TrimSpace(*req.Description) == "" {
			return nil, fmt.Errorf("product description cannot be empty: %w", apperr.ErrValidation)
		}
		fields["description"] = *req.Description
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, fmt.Errorf("stock cannot be negative: %w", apperr.ErrValidation)
		}
		fields["stock"] = *req.Stock
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return nil, fmt.Errorf("price must be greater than zero: %w", apperr.ErrInvalidPrice)
		}
		fields["price"] = *req.Price
	}
	if req.Category != nil {
		cat, err := s.activeCategory(ctx, *req.Category)
		if err != nil {
			return nil, err
		}
		fields["category_id"] = cat.ID
	}

	if err := s.Repo.PatchProduct(ctx, id, fields); err != nil {
		return nil, err
	}
	if prod, err = s.Repo.GetProduct(ctx, id); err != nil {
		return nil, err
	}

	s.index(ctx, prod)
	events.Emit(ctx, s.Events, events.TopicProduct, prod.ID.String(), map[string]any{
		"type":      "product_updated",
		"productID": prod.ID,
		"name":      prod.Name,
	})
	return prod, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	l := logging.FromContext(ctx).With("svc", "catalog.delete_product")

	if err := requireAdmin(actor, "delete products"); err != nil {
		return err
	}
	prod, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Repo.DeactivateProduct(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrAlreadyInactive) {
			return fmt.Errorf("product %q: %w", prod.Name, err)
		}
		return err
	}

	if s.Index != nil {
		if err := s.Index.DeleteProduct(ctx, id.String()); err != nil {
			l.Error("search_delete_failed", "product_id", id, "error", err)
		}
	}
	events.Emit(ctx, s.Events, events.TopicProduct, id.String(), map[string]any{
		"type":      "product_deleted",
		"productID": id,
	})
	return nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return s.Repo.GetProduct(ctx, id)
}

func (s *CatalogService) GetProductByName(ctx context.Context, name string) (*models.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("product name is required: %w", apperr.ErrValidation)
	}
	return s.Repo.GetActiveProductByName(ctx, name)
}

func (s *CatalogService) ListProducts(ctx context.Context, q transport.ProductQuery) (*util.Page[models.Product], error) {
	var filter repo.ProductFilter
	if q.Category != "" {
		cat, err := s.activeCategory(ctx, q.Category)
		if err != nil {
			return nil, err
		}
		filter.CategoryID = cat.ID
	}
	switch q.Sort {
	case "":
	case transport.SortBestSellers:
		filter.BestSellers = true
	default:
		return nil, fmt.Errorf("unknown sort %q: %w", q.Sort, apperr.ErrValidation)
	}

	offset, limit, page := util.Calculate(q.Page, q.Size)
	total, items, err := s.Repo.ListProducts(ctx, filter, offset, limit)
	if err != nil {
		return nil, err
	}
	return &util.Page[models.Product]{Data: items, Meta: util.NewMeta(page, limit, total)}, nil
}

func (s *CatalogService) ListOutOfStock(ctx context.Context) ([]models.Product, error) {
	return s.Repo.OutOfStock(ctx)
}

func (s *CatalogService) ListBestSellers(ctx context.Context, limit int) ([]models.Product, error) {
	if limit <= 0 {
		limit = defaultBestSellers
	}
	if limit > util.MaxPageSize {
		limit = util.MaxPageSize
	}
	return s.Repo.BestSellers(ctx, limit)
}

func (s *CatalogService) SearchProducts(ctx context.Context, q string, page, size int) (*util.Page[search.ProductDoc], error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("query is required: %w", apperr.ErrValidation)
	}
	if s.Index == nil {
		return nil, ErrSearchDisabled
	}
	offset, limit, page := util.Calculate(page, size)
	total, docs, err := s.Index.Search(ctx, q, offset, limit)
	if err != nil {
		return nil, err
	}
	return &util.Page[search.ProductDoc]{Data: docs, Meta: util.NewMeta(page, limit, total)}, nil
}

func (s *CatalogService) index(ctx context.Context, prod *models.Product) {
	if s.Index == nil {
		return
	}
	if err := s.Index.IndexProduct(ctx, ToDoc(prod)); err != nil {
		logging.FromContext(ctx).Error("search_index_failed", "product_id", prod.ID, "error", err)
	}
}

func (s *CatalogService) reindex(ctx context.Context, ids []uuid.UUID) {
	if s.Index == nil {
		return
	}
	for _, id := range ids {
		prod, err := s.Repo.GetProduct(ctx, id)
		if err != nil {
			logging.FromContext(ctx).Error("search_reindex_failed", "product_id", id, "error", err)
			continue
		}
		if prod.Status.Active() {
			s.index(ctx, prod)
		}
	}
}

// ToDoc carries the fields search matches and displays; stock is read from the product.
func ToDoc(p *models.Product) search.ProductDoc {
	doc := search.ProductDoc{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
	}
	if p.Category != nil {
		doc.Category = p.Category.Name
	}
	return doc
}
