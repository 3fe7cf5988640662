package validate

import (
	"testing"

	"github.com/Skotchmaster/storefront/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,strongpassword"`
	Name     string `json:"name"     validate:"required,max=5"`
}

func TestValidator_Messages(t *testing.T) {
	t.Parallel()

	v := New()
	err := v.Validate(&signup{Email: "nope", Password: "weak", Name: "toolongname"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "email must be a valid email")
	assert.Contains(t, err.Error(), "name must be at most 5")
	assert.Contains(t, err.Error(), "password must have 8+ characters")

	require.NoError(t, v.Validate(&signup{Email: "a@b.io", Password: "Str0ng#pw", Name: "Ana"}))
}

func TestStrongPassword(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"Admin1234#/SFDS=)": true,
		"short1#A":          true,
		"alllowercase1#":    false,
		"NoDigits#here":     false,
		"NoSymbol123":       false,
		"S1#a":              false,
	}
	for pw, want := range tests {
		assert.Equal(t, want, StrongPassword(pw), pw)
	}
}
