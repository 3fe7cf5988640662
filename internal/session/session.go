// Package session turns the identity left on the echo context by the auth middleware into a models.Actor.
package session

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	authmw "github.com/Skotchmaster/storefront/pkg/middleware/auth"
)

func Actor(c echo.Context) (models.Actor, error) {
	id, err := authmw.UserID(c)
	if err != nil {
		return models.Actor{}, fmt.Errorf("missing credential: %w", apperr.ErrUnauthorized)
	}
	return models.Actor{ID: id, Role: models.Role(authmw.Role(c))}, nil
}

// Set is the inverse of Actor, used by handler tests.
func Set(c echo.Context, a models.Actor) {
	authmw.SetIdentity(c, a.ID, string(a.Role))
}
