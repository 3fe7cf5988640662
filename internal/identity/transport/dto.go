package transport

import "time"

type RegisterRequest struct {
	Name     string `json:"name"     validate:"required,max=100"`
	Surname  string `json:"surname"  validate:"max=100"`
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,strongpassword"`
	Phone    string `json:"phone"    validate:"max=30"`
}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ChangePasswordRequest targets the caller when Username is empty.
type ChangePasswordRequest struct {
	Username    string `json:"username"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type DeactivateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateProfileRequest targets Target, or the caller when Target is empty. Nil fields are left alone.
type UpdateProfileRequest struct {
	Target   string  `json:"target"`
	Name     *string `json:"name"     validate:"omitempty,min=1,max=100"`
	Surname  *string `json:"surname"  validate:"omitempty,max=100"`
	Username *string `json:"username" validate:"omitempty,min=1,max=50"`
	Email    *string `json:"email"    validate:"omitempty,email,max=255"`
	Phone    *string `json:"phone"    validate:"omitempty,max=30"`
	Role     *string `json:"role"`
}

type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	AccessExp    time.Time `json:"accessExpiresAt"`
	RefreshExp   time.Time `json:"refreshExpiresAt"`
}
