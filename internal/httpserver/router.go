package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	carthttp "github.com/Skotchmaster/storefront/internal/cart/httpserver"
	cataloghttp "github.com/Skotchmaster/storefront/internal/catalog/httpserver"
	identityhttp "github.com/Skotchmaster/storefront/internal/identity/httpserver"
	invoicehttp "github.com/Skotchmaster/storefront/internal/invoice/httpserver"
	authmw "github.com/Skotchmaster/storefront/pkg/middleware/auth"
	"github.com/Skotchmaster/storefront/pkg/middleware/idempotency"
	"github.com/Skotchmaster/storefront/pkg/redisstore"
)

type Deps struct {
	Identity *identityhttp.IdentityHTTP
	Catalog  *cataloghttp.CatalogHTTP
	Cart     *carthttp.CartHTTP
	Invoice  *invoicehttp.InvoiceHTTP
	Auth     *authmw.AutoRefreshMiddleware

	// Idempotency enables Idempotency-Key replay on checkout when set.
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration

	Metrics http.Handler
	Ready   func(ctx context.Context) error
}

func userScope(c echo.Context) string {
	id, err := authmw.UserID(c)
	if err != nil {
		return "anonymous"
	}
	return id.String()
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"success": false, "message": err.Error()})
			}
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	v1 := e.Group("/api/v1")
	auth := d.Auth.RequireAuth
	admin := d.Auth.RequireAdmin

	a := v1.Group("/auth")
	a.POST("/register", d.Identity.Register)
	a.POST("/login", d.Identity.Login)
	a.POST("/refresh", d.Identity.Refresh)
	a.POST("/logout", d.Identity.Logout)

	users := v1.Group("/users")
	users.GET("/me", d.Identity.Me, auth)
	users.GET("", d.Identity.ListUsers, admin)
	users.PUT("", d.Identity.UpdateProfile, auth)
	users.PATCH("/password", d.Identity.ChangePassword, auth)
	users.PATCH("/picture", d.Identity.UpdatePicture, auth)
	users.DELETE("", d.Identity.Deactivate, auth)

	categories := v1.Group("/categories")
	categories.GET("", d.Catalog.ListCategories, auth)
	categories.POST("", d.Catalog.CreateCategory, admin)
	categories.PUT("/:id", d.Catalog.UpdateCategory, admin)
	categories.DELETE("/:id", d.Catalog.DeleteCategory, admin)

	products := v1.Group("/products")
	products.GET("", d.Catalog.ListProducts, auth)
	products.GET("/search", d.Catalog.SearchProducts, auth)
	products.GET("/out-of-stock", d.Catalog.ListOutOfStock, admin)
	products.GET("/best-sellers", d.Catalog.ListBestSellers, auth)
	products.GET("/by-name/:name", d.Catalog.GetProductByName, auth)
	products.GET("/:id", d.Catalog.GetProduct, auth)
	products.POST("", d.Catalog.CreateProduct, admin)
	products.PATCH("/:id", d.Catalog.PatchProduct, admin)
	products.DELETE("/:id", d.Catalog.DeleteProduct, admin)

	cart := v1.Group("/cart", auth)
	cart.GET("", d.Cart.GetCart)
	cart.POST("", d.Cart.UpsertCart)
	cart.DELETE("/lines", d.Cart.RemoveLine)
	cart.DELETE("", d.Cart.ClearCart)

	invoices := v1.Group("/invoices", auth)
	checkout := []echo.MiddlewareFunc{}
	if d.Idempotency != nil {
		checkout = append(checkout, idempotency.Middleware(d.Idempotency, d.IdempotencyTTL,
			func(k string) string { return redisstore.Key("idem", "checkout", k) }, userScope))
	}
	invoices.POST("", d.Invoice.CreateInvoice, checkout...)
	invoices.GET("", d.Invoice.ListInvoices)
	invoices.PUT("/:id", d.Invoice.UpdateInvoice)
	invoices.GET("/:id/lines", d.Invoice.GetInvoiceLines)
	invoices.GET("/:id/receipt", d.Invoice.GetReceipt)
}
