package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Cart struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"              json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null"    json:"userId"`
	Name      string     `gorm:"size:100;not null"                 json:"name"`
	Status    Status     `gorm:"size:10;not null"                  json:"status"`
	Version   int64      `gorm:"not null"                          json:"version"`
	Lines     []CartLine `gorm:"foreignKey:CartID"                 json:"lines"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	return nil
}

func (Cart) TableName() string {
	return "carts"
}

type CartLine struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"                          json:"id"`
	CartID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_cart_product;not null" json:"cartId"`
	ProductID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_cart_product;not null" json:"productId"`
	Product   *Product  `gorm:"foreignKey:ProductID"                          json:"product,omitempty"`
	Quantity  int       `gorm:"not null;check:quantity>0"                     json:"quantity"`
	Position  int       `gorm:"not null"                                      json:"position"`
}

func (l *CartLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (CartLine) TableName() string {
	return "cart_lines"
}
