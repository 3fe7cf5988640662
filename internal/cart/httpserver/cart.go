package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/cart/service"
	"github.com/Skotchmaster/storefront/internal/cart/transport"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

type CartHTTP struct {
	Svc *service.CartService
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.get_cart")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "get_cart_failed", err)
	}
	cart, err := h.Svc.GetCart(ctx, actor.ID)
	if err != nil {
		return apperr.HTTP(l, "get_cart_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "cart": cart})
}

func (h *CartHTTP) UpsertCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.upsert_cart")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "upsert_cart_failed", err)
	}
	var req transport.UpsertCartRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("upsert_cart_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTP(l, "upsert_cart_failed", err)
	}

	cart, err := h.Svc.UpsertCart(ctx, actor.ID, req)
	if err != nil {
		return apperr.HTTP(l, "upsert_cart_failed", err)
	}

	l.Info("upsert_cart_success", "cart_id", cart.ID, "lines", len(cart.Lines))
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "products added to cart", "cart": cart})
}

func (h *CartHTTP) RemoveLine(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove_line")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "remove_line_failed", err)
	}
	var req transport.RemoveLineRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("remove_line_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTP(l, "remove_line_failed", err)
	}

	cart, err := h.Svc.RemoveLine(ctx, actor.ID, req.Product, req.Quantity)
	if err != nil {
		return apperr.HTTP(l, "remove_line_failed", err)
	}

	l.Info("remove_line_success", "cart_id", cart.ID)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "product removed from cart", "cart": cart})
}

func (h *CartHTTP) ClearCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.clear_cart")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "clear_cart_failed", err)
	}
	if err := h.Svc.ClearCart(ctx, actor.ID); err != nil {
		return apperr.HTTP(l, "clear_cart_failed", err)
	}
	l.Info("clear_cart_success")
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "cart cleared"})
}
