package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	carthttp "github.com/Skotchmaster/storefront/internal/cart/httpserver"
	cataloghttp "github.com/Skotchmaster/storefront/internal/catalog/httpserver"
	identityhttp "github.com/Skotchmaster/storefront/internal/identity/httpserver"
	invoicehttp "github.com/Skotchmaster/storefront/internal/invoice/httpserver"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	authmw "github.com/Skotchmaster/storefront/pkg/middleware/auth"
	"github.com/Skotchmaster/storefront/pkg/tokens"
)

var secret = []byte("router-test")

func newServer(t *testing.T, ready func(context.Context) error) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = apperr.ErrorHandler
	Register(e, &Deps{
		Identity: &identityhttp.IdentityHTTP{},
		Catalog:  &cataloghttp.CatalogHTTP{},
		Cart:     &carthttp.CartHTTP{},
		Invoice:  &invoicehttp.InvoiceHTTP{},
		Auth:     authmw.NewAutoRefreshMiddleware(secret, nil, string(models.RoleAdmin)),
		Metrics:  promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		Ready:    ready,
	})
	return e
}

func bearer(t *testing.T, role models.Role) string {
	t.Helper()
	issuer := &tokens.Issuer{AccessSecret: secret, RefreshSecret: secret, AccessTTL: time.Minute, RefreshTTL: time.Hour}
	tok, _, err := issuer.Access("00000000-0000-0000-0000-000000000001", string(role))
	require.NoError(t, err)
	return "Bearer " + tok
}

func serve(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	e := newServer(t, nil)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/health/ready", "").Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/metrics", "").Code)

	down := newServer(t, func(context.Context) error { return errors.New("db down") })
	assert.Equal(t, http.StatusServiceUnavailable, serve(down, http.MethodGet, "/health/ready", "").Code)
}

func TestRoutesRequireCredentials(t *testing.T) {
	t.Parallel()
	e := newServer(t, nil)
	client := bearer(t, models.RoleClient)

	tests := []struct {
		method, path, auth string
		want               int
	}{
		{http.MethodGet, "/api/v1/cart", "", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/invoices", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/products", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/users/me", "Bearer nonsense", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/categories", client, http.StatusForbidden},
		{http.MethodDelete, "/api/v1/products/00000000-0000-0000-0000-000000000009", client, http.StatusForbidden},
		{http.MethodGet, "/api/v1/products/out-of-stock", client, http.StatusForbidden},
		{http.MethodGet, "/api/v1/users", client, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, serve(e, tt.method, tt.path, tt.auth).Code)
		})
	}
}

func TestRouteTable(t *testing.T) {
	t.Parallel()
	e := newServer(t, nil)

	have := map[string]bool{}
	for _, r := range e.Routes() {
		have[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/auth/login",
		"PATCH /api/v1/users/picture",
		"DELETE /api/v1/categories/:id",
		"GET /api/v1/products/by-name/:name",
		"DELETE /api/v1/cart/lines",
		"POST /api/v1/invoices",
		"GET /api/v1/invoices/:id/receipt",
	} {
		assert.True(t, have[want], want)
	}
}
