package httpserver

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/invoice/receipt"
	"github.com/Skotchmaster/storefront/internal/invoice/service"
	"github.com/Skotchmaster/storefront/internal/invoice/transport"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

type InvoiceHTTP struct {
	Svc *service.InvoiceService
}

func (h *InvoiceHTTP) CreateInvoice(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "invoice.create_invoice")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "create_invoice_failed", err)
	}
	inv, err := h.Svc.CreateInvoice(ctx, actor.ID)
	if err != nil {
		return apperr.HTTP(l, "create_invoice_failed", err)
	}

	l.Info("create_invoice_success", "invoice_id", inv.ID, "document_state", inv.DocumentState)
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "invoice created", "invoice": inv})
}

func (h *InvoiceHTTP) ListInvoices(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "invoice.list_invoices")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "list_invoices_failed", err)
	}
	items, err := h.Svc.ListInvoicesForUser(ctx, actor, c.QueryParam("username"))
	if err != nil {
		return apperr.HTTP(l, "list_invoices_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "invoices": items})
}

func invoiceID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "id is not a uuid")
	}
	return id, nil
}

func (h *InvoiceHTTP) UpdateInvoice(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "invoice.update_invoice")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "update_invoice_failed", err)
	}
	id, err := invoiceID(c)
	if err != nil {
		l.Warn("update_invoice_failed", "status", 400, "reason", "id is not a uuid", "error", err)
		return err
	}
	var req transport.UpdateInvoiceRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_invoice_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTP(l, "update_invoice_failed", err)
	}

	inv, err := h.Svc.UpdateInvoice(ctx, actor, id, req)
	if err != nil {
		return apperr.HTTP(l, "update_invoice_failed", err)
	}

	l.Info("update_invoice_success", "invoice_id", id)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "invoice updated", "invoice": inv})
}

func (h *InvoiceHTTP) GetInvoiceLines(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "invoice.get_lines")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "get_invoice_lines_failed", err)
	}
	id, err := invoiceID(c)
	if err != nil {
		l.Warn("get_invoice_lines_failed", "status", 400, "reason", "id is not a uuid", "error", err)
		return err
	}
	lines, err := h.Svc.GetInvoiceLines(ctx, actor, id)
	if err != nil {
		return apperr.HTTP(l, "get_invoice_lines_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "products": lines})
}

func (h *InvoiceHTTP) GetReceipt(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "invoice.get_receipt")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "get_receipt_failed", err)
	}
	id, err := invoiceID(c)
	if err != nil {
		l.Warn("get_receipt_failed", "status", 400, "reason", "id is not a uuid", "error", err)
		return err
	}
	rc, name, err := h.Svc.Receipt(ctx, actor, id)
	if err != nil {
		return apperr.HTTP(l, "get_receipt_failed", err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Stream(http.StatusOK, receipt.ContentType, rc)
}
