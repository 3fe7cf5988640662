package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Skotchmaster/storefront/internal/cart/repo"
	"github.com/Skotchmaster/storefront/internal/cart/transport"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	"github.com/Skotchmaster/storefront/pkg/events"
	"github.com/Skotchmaster/storefront/pkg/logging"
)

const (
	maxCartName = 100
	maxAttempts = 5
)

type CartService struct {
	Repo   *repo.GormRepo
	Events events.Publisher
}

func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return s.Repo.GetCart(ctx, userID)
}

type wanted struct {
	name     string
	quantity int
}

func validateUpsert(name string, lines []transport.LineRequest) ([]wanted, error) {
	if name == "" {
		return nil, fmt.Errorf("cart name is required: %w", apperr.ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxCartName {
		return nil, fmt.Errorf("cart name must be at most %d characters: %w", maxCartName, apperr.ErrValidation)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("at least one product is required: %w", apperr.ErrValidation)
	}

	// duplicates are summed, first occurrence keeps its place
	var out []wanted
	index := map[string]int{}
	for _, l := range lines {
		product := strings.TrimSpace(l.Product)
		if product == "" {
			return nil, fmt.Errorf("product name is required: %w", apperr.ErrValidation)
		}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("quantity for %q must be at least 1: %w", product, apperr.ErrValidation)
		}
		if i, ok := index[product]; ok {
			out[i].quantity += l.Quantity
			continue
		}
		index[product] = len(out)
		out = append(out, wanted{name: product, quantity: l.Quantity})
	}
	return out, nil
}

// UpsertCart merges the requested lines into the user's cart, creating the cart on first use.
// Nothing is written unless every line resolves and fits the current stock.
func (s *CartService) UpsertCart(ctx context.Context, userID uuid.UUID, req transport.UpsertCartRequest) (*models.Cart, error) {
	l := logging.FromContext(ctx).With("svc", "cart.upsert")

	name := strings.TrimSpace(req.Name)
	want, err := validateUpsert(name, req.Products)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cart, err := s.Repo.GetCart(ctx, userID)
		if errors.Is(err, apperr.ErrNotFound) {
			cart, err = &models.Cart{UserID: userID, Status: models.StatusActive}, nil
		}
		if err != nil {
			return nil, err
		}

		lines := append([]models.CartLine(nil), cart.Lines...)
		pos := map[uuid.UUID]int{}
		for i, line := range lines {
			pos[line.ProductID] = i
		}

		for _, w := range want {
			prod, err := s.Repo.ProductByName(ctx, w.name, true)
			if err != nil {
				return nil, err
			}
			qty := w.quantity
			i, ok := pos[prod.ID]
			if ok {
				qty += lines[i].Quantity
			}
			if qty > prod.Stock {
				return nil, fmt.Errorf("%q has %d in stock, %d requested: %w", prod.Name, prod.Stock, qty, apperr.ErrInsufficientStock)
			}
			if ok {
				lines[i].Quantity = qty
				continue
			}
			pos[prod.ID] = len(lines)
			lines = append(lines, models.CartLine{ProductID: prod.ID, Quantity: qty})
		}

		cart.Name = name
		err = s.Repo.SaveCart(ctx, cart, lines)
		if errors.Is(err, repo.ErrStale) {
			l.Debug("cart_version_conflict", "user_id", userID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.publish(ctx, "cart_updated", cart)
		return s.Repo.GetCart(ctx, userID)
	}
	return nil, fmt.Errorf("cart kept changing, retry later: %w", apperr.ErrConflict)
}

// RemoveLine decrements a line by quantity, or drops it when quantity is nil or covers the whole line.
func (s *CartService) RemoveLine(ctx context.Context, userID uuid.UUID, productName string, quantity *int) (*models.Cart, error) {
	productName = strings.TrimSpace(productName)
	if productName == "" {
		return nil, fmt.Errorf("product name is required: %w", apperr.ErrValidation)
	}
	if quantity != nil && *quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1: %w", apperr.ErrValidation)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cart, err := s.Repo.GetCart(ctx, userID)
		if err != nil {
			return nil, err
		}
		prod, err := s.Repo.ProductByName(ctx, productName, false)
		if err != nil {
			return nil, err
		}

		idx := -1
		for i, line := range cart.Lines {
			if line.ProductID == prod.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("product %q is not in the cart: %w", productName, apperr.ErrNotFound)
		}

		lines := append([]models.CartLine(nil), cart.Lines...)
		if quantity != nil && lines[idx].Quantity > *quantity {
			lines[idx].Quantity -= *quantity
		} else {
			lines = append(lines[:idx], lines[idx+1:]...)
		}

		err = s.Repo.SaveCart(ctx, cart, lines)
		if errors.Is(err, repo.ErrStale) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.publish(ctx, "cart_updated", cart)
		return s.Repo.GetCart(ctx, userID)
	}
	return nil, fmt.Errorf("cart kept changing, retry later: %w", apperr.ErrConflict)
}

func (s *CartService) ClearCart(ctx context.Context, userID uuid.UUID) error {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cart, err := s.Repo.GetCart(ctx, userID)
		if err != nil {
			return err
		}
		err = s.Repo.SaveCart(ctx, cart, nil)
		if errors.Is(err, repo.ErrStale) {
			continue
		}
		if err != nil {
			return err
		}
		s.publish(ctx, "cart_cleared", cart)
		return nil
	}
	return fmt.Errorf("cart kept changing, retry later: %w", apperr.ErrConflict)
}

func (s *CartService) publish(ctx context.Context, kind string, cart *models.Cart) {
	events.Emit(ctx, s.Events, events.TopicCart, cart.UserID.String(), map[string]any{
		"type":    kind,
		"cartID":  cart.ID,
		"userID":  cart.UserID,
		"version": cart.Version,
	})
}
