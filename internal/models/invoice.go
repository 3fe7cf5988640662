package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Invoice struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"                             json:"id"`
	UserID        uuid.UUID       `gorm:"type:uuid;index;not null"                         json:"userId"`
	CartID        uuid.UUID       `gorm:"type:uuid;not null"                               json:"cartId"`
	TotalAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null;check:total_amount>=0" json:"totalAmount"`
	Status        Status          `gorm:"size:10;not null"                                 json:"status"`
	DocumentState DocumentState   `gorm:"size:10;not null"                                 json:"documentState"`
	DocumentKey   string          `gorm:"not null"                                         json:"documentKey,omitempty"`
	Version       int64           `gorm:"not null"                                         json:"version"`
	Lines         []InvoiceLine   `gorm:"foreignKey:InvoiceID"                             json:"lines"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Status == "" {
		i.Status = StatusActive
	}
	if i.DocumentState == "" {
		i.DocumentState = DocumentPending
	}
	return nil
}

func (Invoice) TableName() string {
	return "invoices"
}

// InvoiceLine is the cart snapshot: name and price are captured when the line is written.
type InvoiceLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"                       json:"id"`
	InvoiceID   uuid.UUID       `gorm:"type:uuid;index;not null"                   json:"invoiceId"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null"                         json:"productId"`
	Name        string          `gorm:"size:100;not null"                          json:"name"`
	Description string          `gorm:"not null"                                   json:"description"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null"                json:"price"`
	Quantity    int             `gorm:"not null;check:quantity>0"                  json:"quantity"`
	Subtotal    decimal.Decimal `gorm:"type:numeric(12,2);not null"                json:"subtotal"`
	Position    int             `gorm:"not null"                                   json:"-"`
}

func (l *InvoiceLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (InvoiceLine) TableName() string {
	return "invoice_lines"
}
