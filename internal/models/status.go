package models

import "github.com/google/uuid"

// Status is the lifecycle of every persisted entity. Rows are never hard deleted.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Active() bool { return s == StatusActive }

type Role string

const (
	RoleAdmin  Role = "ADMIN_ROLE"
	RoleClient Role = "CLIENT_ROLE"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleClient }

type DocumentState string

const (
	DocumentPending DocumentState = "pending"
	DocumentEmitted DocumentState = "emitted"
	DocumentFailed  DocumentState = "failed"
)

const DefaultCategoryName = "CATEGORY_DEFAULT"

// All lists every model in creation order for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&RefreshToken{},
		&Category{},
		&Product{},
		&Cart{},
		&CartLine{},
		&Invoice{},
		&InvoiceLine{},
	}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
