package transport

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LineRequest struct {
	Product  string `json:"product"  validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

type UpdateInvoiceRequest struct {
	Products []LineRequest `json:"products" validate:"required,min=1,dive"`
}

// LineView is the denormalized product line returned by invoice queries.
type LineView struct {
	ProductID   uuid.UUID       `json:"productId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}
