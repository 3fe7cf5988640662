package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Category struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"         json:"id"`
	Name        string    `gorm:"size:25;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"size:200;not null"            json:"description"`
	Status      Status    `gorm:"size:10;not null"             json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	return nil
}

func (Category) TableName() string {
	return "categories"
}

type Product struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"                      json:"id"`
	Name         string          `gorm:"size:100;uniqueIndex;not null"             json:"name"`
	Stock        int             `gorm:"not null;check:stock>=0"                   json:"stock"`
	Description  string          `gorm:"not null"                                  json:"description"`
	Price        decimal.Decimal `gorm:"type:numeric(12,2);not null;check:price>0" json:"price"`
	SoldQuantity int             `gorm:"not null;check:sold_quantity>=0"           json:"soldQuantity"`
	CategoryID   uuid.UUID       `gorm:"type:uuid;index;not null"                  json:"categoryId"`
	Category     *Category       `gorm:"foreignKey:CategoryID"                     json:"category,omitempty"`
	Status       Status          `gorm:"size:10;not null"                          json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	return nil
}

func (Product) TableName() string {
	return "products"
}
