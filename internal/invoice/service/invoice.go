package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/internal/invoice/receipt"
	"github.com/Skotchmaster/storefront/internal/invoice/repo"
	"github.com/Skotchmaster/storefront/internal/invoice/transport"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	"github.com/Skotchmaster/storefront/pkg/events"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/metrics"
	"github.com/Skotchmaster/storefront/pkg/storage"
)

type InvoiceService struct {
	Repo    *repo.GormRepo
	Store   storage.Store
	Events  events.Publisher
	Metrics *metrics.CheckoutMetrics
	// Render defaults to receipt.Render.
	Render func(receipt.Receipt) ([]byte, error)
	// Now dates receipts of invoices without a creation time.
	Now func() time.Time
}

func (s *InvoiceService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *InvoiceService) transition(l *slog.Logger, state string, args ...any) {
	l.Info("checkout_"+strings.ToLower(state), args...)
	s.Metrics.Transition(state)
}

func (s *InvoiceService) reject(l *slog.Logger, err error) error {
	l.Warn("checkout_rejected", "reason", apperr.Kind(err), "error", err)
	s.Metrics.Transition(StateRejected)
	return err
}

func canSee(actor models.Actor, inv *models.Invoice) bool {
	return actor.ID == inv.UserID || actor.IsAdmin()
}

// CreateInvoice turns the user's cart into an invoice, taking stock atomically for every line.
func (s *InvoiceService) CreateInvoice(ctx context.Context, userID uuid.UUID) (*models.Invoice, error) {
	started := time.Now()
	l := logging.FromContext(ctx).With("svc", "invoice.checkout", "user_id", userID)
	s.transition(l, StatePending)

	cart, err := s.Repo.CartForUser(ctx, userID)
	if err != nil {
		return nil, s.reject(l, err)
	}
	if len(cart.Lines) == 0 {
		return nil, s.reject(l, fmt.Errorf("cart is empty: %w", apperr.ErrValidation))
	}

	inv := &models.Invoice{
		UserID:        userID,
		CartID:        cart.ID,
		Status:        models.StatusActive,
		DocumentState: models.DocumentPending,
	}
	total := decimal.Zero
	for _, line := range cart.Lines {
		prod := line.Product
		if prod == nil || !prod.Status.Active() {
			return nil, s.reject(l, fmt.Errorf("product %s: %w", line.ProductID, apperr.ErrNotFound))
		}
		if !prod.Price.IsPositive() {
			return nil, s.reject(l, fmt.Errorf("product %q has no valid price: %w", prod.Name, apperr.ErrInvalidPrice))
		}
		if line.Quantity > prod.Stock {
			return nil, s.reject(l, fmt.Errorf("%q has %d in stock, %d requested: %w", prod.Name, prod.Stock, line.Quantity, apperr.ErrInsufficientStock))
		}
		subtotal := prod.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(subtotal)
		inv.Lines = append(inv.Lines, models.InvoiceLine{
			ProductID:   prod.ID,
			Name:        prod.Name,
			Description: prod.Description,
			UnitPrice:   prod.Price,
			Quantity:    line.Quantity,
			Subtotal:    subtotal,
		})
	}
	inv.TotalAmount = total
	s.transition(l, StateStockValidated, "lines", len(inv.Lines))

	if err := s.Repo.Commit(ctx, inv, cart.Version); err != nil {
		if errors.Is(err, repo.ErrStale) {
			err = fmt.Errorf("cart changed during checkout, retry: %w", apperr.ErrConflict)
		}
		return nil, s.reject(l, err)
	}
	s.transition(l, StateCommitted, "invoice_id", inv.ID, "total", inv.TotalAmount.StringFixed(2))

	s.emitDocument(ctx, l, inv)
	s.Metrics.ObserveDuration(time.Since(started))

	events.Emit(ctx, s.Events, events.TopicInvoice, inv.ID.String(), map[string]any{
		"type":        "invoice_created",
		"invoiceID":   inv.ID,
		"userID":      inv.UserID,
		"totalAmount": inv.TotalAmount.StringFixed(2),
	})
	return inv, nil
}

// emitDocument renders and stores the receipt. Failure only marks the document as failed.
func (s *InvoiceService) emitDocument(ctx context.Context, l *slog.Logger, inv *models.Invoice) {
	key, err := s.storeReceipt(ctx, inv)
	if err != nil {
		l.Error("receipt_failed", "invoice_id", inv.ID, "error", err)
		inv.DocumentState, inv.DocumentKey = models.DocumentFailed, ""
		if err := s.Repo.SetDocument(ctx, inv.ID, models.DocumentFailed, ""); err != nil {
			l.Error("receipt_state_failed", "invoice_id", inv.ID, "error", err)
		}
		s.transition(l, StateCommittedFailed, "invoice_id", inv.ID)
		return
	}
	if err := s.Repo.SetDocument(ctx, inv.ID, models.DocumentEmitted, key); err != nil {
		l.Error("receipt_state_failed", "invoice_id", inv.ID, "error", err)
		s.transition(l, StateCommittedFailed, "invoice_id", inv.ID)
		return
	}
	inv.DocumentState, inv.DocumentKey = models.DocumentEmitted, key
	s.transition(l, StateDocumentEmitted, "invoice_id", inv.ID, "key", key)
}

func (s *InvoiceService) storeReceipt(ctx context.Context, inv *models.Invoice) (string, error) {
	if s.Store == nil {
		return "", errors.New("no receipt storage configured")
	}
	customer := "customer"
	if u, err := s.Repo.GetUser(ctx, inv.UserID); err == nil {
		customer = strings.TrimSpace(u.Name + " " + u.Surname)
	}

	render := s.Render
	if render == nil {
		render = receipt.Render
	}
	date := inv.CreatedAt
	if date.IsZero() {
		date = s.now()
	}
	data, err := render(receipt.FromInvoice(inv, customer, date))
	if err != nil {
		return "", err
	}

	key := receipt.Key(inv.ID)
	if err := s.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), receipt.ContentType); err != nil {
		return "", err
	}
	return key, nil
}

type wanted struct {
	name     string
	quantity int
}

func validateLines(lines []transport.LineRequest) ([]wanted, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("at least one product is required: %w", apperr.ErrValidation)
	}
	var out []wanted
	index := map[string]int{}
	for _, l := range lines {
		name := strings.TrimSpace(l.Product)
		if name == "" {
			return nil, fmt.Errorf("product name is required: %w", apperr.ErrValidation)
		}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("quantity for %q must be at least 1: %w", name, apperr.ErrValidation)
		}
		if i, ok := index[name]; ok {
			out[i].quantity += l.Quantity
			continue
		}
		index[name] = len(out)
		out = append(out, wanted{name: name, quantity: l.Quantity})
	}
	return out, nil
}

// UpdateInvoice replaces the invoice lines. Stock moves by the per-product difference; products already
// on the invoice keep their captured price, new ones are priced now.
func (s *InvoiceService) UpdateInvoice(ctx context.Context, actor models.Actor, id uuid.UUID, req transport.UpdateInvoiceRequest) (*models.Invoice, error) {
	l := logging.FromContext(ctx).With("svc", "invoice.update", "invoice_id", id)

	inv, err := s.Repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	exists, err := s.Repo.CartExists(ctx, inv.CartID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("cart of invoice %s: %w", id, apperr.ErrNotFound)
	}
	if !canSee(actor, inv) {
		return nil, fmt.Errorf("invoice belongs to another user: %w", apperr.ErrForbidden)
	}
	want, err := validateLines(req.Products)
	if err != nil {
		return nil, err
	}
	if !inv.Status.Active() {
		return nil, fmt.Errorf("invoice %s: %w", id, apperr.ErrAlreadyInactive)
	}

	old := map[uuid.UUID]models.InvoiceLine{}
	deltas := map[uuid.UUID]int{}
	names := map[uuid.UUID]string{}
	for _, line := range inv.Lines {
		old[line.ProductID] = line
		deltas[line.ProductID] -= line.Quantity
		names[line.ProductID] = line.Name
	}

	var lines []models.InvoiceLine
	total := decimal.Zero
	for _, w := range want {
		prod, err := s.Repo.ProductByName(ctx, w.name)
		if err != nil {
			return nil, err
		}
		line, kept := old[prod.ID]
		if !kept {
			if !prod.Status.Active() {
				return nil, fmt.Errorf("product %q: %w", w.name, apperr.ErrNotFound)
			}
			if !prod.Price.IsPositive() {
				return nil, fmt.Errorf("product %q has no valid price: %w", prod.Name, apperr.ErrInvalidPrice)
			}
			line = models.InvoiceLine{
				ProductID:   prod.ID,
				Name:        prod.Name,
				Description: prod.Description,
				UnitPrice:   prod.Price,
			}
		}
		line.Quantity = w.quantity
		line.Subtotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(w.quantity)))
		total = total.Add(line.Subtotal)
		lines = append(lines, line)
		deltas[prod.ID] += w.quantity
		names[prod.ID] = prod.Name
	}

	if err := s.Repo.Revise(ctx, inv, deltas, names, lines, total); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return nil, fmt.Errorf("invoice changed concurrently, retry: %w", apperr.ErrConflict)
		}
		return nil, err
	}
	l.Info("invoice_updated", "total", total.StringFixed(2), "lines", len(lines))

	updated, err := s.Repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emitDocument(ctx, l, updated)

	events.Emit(ctx, s.Events, events.TopicInvoice, id.String(), map[string]any{
		"type":        "invoice_updated",
		"invoiceID":   id,
		"userID":      updated.UserID,
		"totalAmount": updated.TotalAmount.StringFixed(2),
	})
	return updated, nil
}

// ListInvoicesForUser lists the invoices of username, or of the actor when username is empty.
func (s *InvoiceService) ListInvoicesForUser(ctx context.Context, actor models.Actor, username string) ([]models.Invoice, error) {
	target := actor.ID
	if username = strings.TrimSpace(username); username != "" {
		u, err := s.Repo.UserByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		target = u.ID
	}
	if target != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("only admins can list other users' invoices: %w", apperr.ErrForbidden)
	}
	return s.Repo.ListByUser(ctx, target)
}

func (s *InvoiceService) GetInvoiceLines(ctx context.Context, actor models.Actor, id uuid.UUID) ([]transport.LineView, error) {
	inv, err := s.Repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, inv) {
		return nil, fmt.Errorf("invoice belongs to another user: %w", apperr.ErrForbidden)
	}
	return Lines(inv), nil
}

func Lines(inv *models.Invoice) []transport.LineView {
	out := make([]transport.LineView, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		out = append(out, transport.LineView{
			ProductID:   l.ProductID,
			Name:        l.Name,
			Description: l.Description,
			Price:       l.UnitPrice,
			Quantity:    l.Quantity,
			Subtotal:    l.Subtotal,
		})
	}
	return out
}

// Receipt opens the stored PDF, producing it again when it is missing or its last render failed.
func (s *InvoiceService) Receipt(ctx context.Context, actor models.Actor, id uuid.UUID) (io.ReadCloser, string, error) {
	l := logging.FromContext(ctx).With("svc", "invoice.receipt", "invoice_id", id)

	inv, err := s.Repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !canSee(actor, inv) {
		return nil, "", fmt.Errorf("invoice belongs to another user: %w", apperr.ErrForbidden)
	}
	if s.Store == nil {
		return nil, "", errors.New("no receipt storage configured")
	}

	if inv.DocumentState == models.DocumentEmitted && inv.DocumentKey != "" {
		rc, err := s.Store.Get(ctx, inv.DocumentKey)
		if err == nil {
			return rc, receipt.FileName(id), nil
		}
		if !errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", err
		}
		l.Warn("receipt_missing", "key", inv.DocumentKey)
	}

	s.emitDocument(ctx, l, inv)
	if inv.DocumentState != models.DocumentEmitted {
		return nil, "", fmt.Errorf("receipt for invoice %s could not be produced", id)
	}
	rc, err := s.Store.Get(ctx, inv.DocumentKey)
	if err != nil {
		return nil, "", err
	}
	return rc, receipt.FileName(id), nil
}
