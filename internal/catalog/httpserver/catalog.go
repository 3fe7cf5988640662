package httpserver

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/catalog/service"
	"github.com/Skotchmaster/storefront/internal/catalog/transport"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/util"
)

type CatalogHTTP struct {
	Svc *service.CatalogService
}

func parseID(c echo.Context, l *slog.Logger, event string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn(event, "status", 400, "reason", "id is not a uuid", "error", err)
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "id is not a uuid")
	}
	return id, nil
}

func (h *CatalogHTTP) ListCategories(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.list_categories")

	cats, err := h.Svc.ListCategories(ctx)
	if err != nil {
		return apperr.HTTP(l, "list_categories_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "categories": cats})
}

func (h *CatalogHTTP) CreateCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.create_category")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "create_category_failed", err)
	}
	var req transport.CategoryRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_category_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	cat, err := h.Svc.CreateCategory(ctx, actor, req.Name, req.Description)
	if err != nil {
		return apperr.HTTP(l, "create_category_failed", err)
	}

	l.Info("create_category_success", "category_id", cat.ID)
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "category": cat})
}

func (h *CatalogHTTP) UpdateCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.update_category")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "update_category_failed", err)
	}
	id, err := parseID(c, l, "update_category_failed")
	if err != nil {
		return err
	}
	var req transport.PatchCategoryRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_category_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	cat, err := h.Svc.UpdateCategory(ctx, actor, id, req)
	if err != nil {
		return apperr.HTTP(l, "update_category_failed", err)
	}
	l.Info("update_category_success", "category_id", id)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "category": cat})
}

func (h *CatalogHTTP) DeleteCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.delete_category")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "delete_category_failed", err)
	}
	id, err := parseID(c, l, "delete_category_failed")
	if err != nil {
		return err
	}

	moved, err := h.Svc.DeleteCategory(ctx, actor, id)
	if err != nil {
		return apperr.HTTP(l, "delete_category_failed", err)
	}
	l.Info("delete_category_success", "category_id", id, "moved_products", moved)
	return c.JSON(http.StatusOK, echo.Map{
		"success":       true,
		"message":       "category deleted",
		"movedProducts": moved,
	})
}

func (h *CatalogHTTP) ListProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.list_products")

	page, err := h.Svc.ListProducts(ctx, transport.ProductQuery{
		Category: strings.TrimSpace(c.QueryParam("category")),
		Sort:     c.QueryParam("sort"),
		Page:     util.ParseIntDefault(c.QueryParam("page"), 1),
		Size:     util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize),
	})
	if err != nil {
		return apperr.HTTP(l, "list_products_failed", err)
	}

	l.Info("list_products_success", "total", page.Meta.Total)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": page.Data, "meta": page.Meta})
}

func (h *CatalogHTTP) SearchProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.search_products")

	page, err := h.Svc.SearchProducts(ctx,
		c.QueryParam("q"),
		util.ParseIntDefault(c.QueryParam("page"), 1),
		util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize),
	)
	if err != nil {
		return apperr.HTTP(l, "search_products_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": page.Data, "meta": page.Meta})
}

func (h *CatalogHTTP) ListOutOfStock(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.out_of_stock")

	items, err := h.Svc.ListOutOfStock(ctx)
	if err != nil {
		return apperr.HTTP(l, "out_of_stock_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "products": items})
}

func (h *CatalogHTTP) ListBestSellers(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.best_sellers")

	items, err := h.Svc.ListBestSellers(ctx, util.ParseIntDefault(c.QueryParam("limit"), 0))
	if err != nil {
		return apperr.HTTP(l, "best_sellers_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "products": items})
}

func (h *CatalogHTTP) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_product")

	id, err := parseID(c, l, "get_product_failed")
	if err != nil {
		return err
	}
	prod, err := h.Svc.GetProduct(ctx, id)
	if err != nil {
		return apperr.HTTP(l, "get_product_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "product": prod})
}

func (h *CatalogHTTP) GetProductByName(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_product_by_name")

	prod, err := h.Svc.GetProductByName(ctx, c.Param("name"))
	if err != nil {
		return apperr.HTTP(l, "get_product_by_name_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "product": prod})
}

func (h *CatalogHTTP) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.create_product")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "create_product_failed", err)
	}
	var req transport.CreateProductRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_product_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	prod, err := h.Svc.CreateProduct(ctx, actor, req)
	if err != nil {
		return apperr.HTTP(l, "create_product_failed", err)
	}

	l.Info("create_product_success", "product_id", prod.ID)
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "product": prod})
}

func (h *CatalogHTTP) PatchProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.patch_product")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "patch_product_failed", err)
	}
	id, err := parseID(c, l, "patch_product_failed")
	if err != nil {
		return err
	}
	var req transport.PatchProductRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("patch_product_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	prod, err := h.Svc.UpdateProduct(ctx, actor, id, req)
	if err != nil {
		return apperr.HTTP(l, "patch_product_failed", err)
	}

	l.Info("patch_product_success", "product_id", id)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "product": prod})
}

func (h *CatalogHTTP) DeleteProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.delete_product")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "delete_product_failed", err)
	}
	id, err := parseID(c, l, "delete_product_failed")
	if err != nil {
		return err
	}
	if err := h.Svc.DeleteProduct(ctx, actor, id); err != nil {
		return apperr.HTTP(l, "delete_product_failed", err)
	}

	l.Info("delete_product_success", "product_id", id)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "product deleted"})
}
