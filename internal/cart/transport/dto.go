package transport

type LineRequest struct {
	Product  string `json:"product"  validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

type UpsertCartRequest struct {
	Name     string        `json:"name"     validate:"required,max=100"`
	Products []LineRequest `json:"products" validate:"required,min=1,dive"`
}

type RemoveLineRequest struct {
	Product  string `json:"product"  validate:"required"`
	Quantity *int   `json:"quantity" validate:"omitempty,gte=1"`
}
