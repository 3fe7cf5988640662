package transport

import "github.com/shopspring/decimal"

type CategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type PatchCategoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type CreateProductRequest struct {
	Name        string           `json:"name"`
	Stock       *int             `json:"stock"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    string           `json:"category"`
}

type PatchProductRequest struct {
	Name        *string          `json:"name"`
	Stock       *int             `json:"stock"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"`
}

type ProductQuery struct {
	Category string
	Sort     string
	Page     int
	Size     int
}

const SortBestSellers = "best_sellers"
