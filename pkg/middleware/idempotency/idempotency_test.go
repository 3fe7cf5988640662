package idempotency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore { return &memStore{data: map[string]string{}} }

func (m *memStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func newServer(store Store, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	mw := Middleware(store, time.Hour, func(k string) string { return "test:" + k }, func(c echo.Context) string {
		return c.Request().Header.Get("X-User")
	})
	e.POST("/invoices", handler, mw)
	return e
}

func do(e *echo.Echo, key, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/invoices", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	req.Header.Set("X-User", user)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_ReplaysSuccessfulResponse(t *testing.T) {
	t.Parallel()

	calls := 0
	e := newServer(newMemStore(), func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusCreated, echo.Map{"success": true, "n": calls})
	})

	first := do(e, "k1", "u1", `{}`)
	second := do(e, "k1", "u1", `{}`)

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
}

func TestMiddleware_DifferentBodyConflicts(t *testing.T) {
	t.Parallel()

	e := newServer(newMemStore(), func(c echo.Context) error {
		return c.JSON(http.StatusCreated, echo.Map{"success": true})
	})

	require.Equal(t, http.StatusCreated, do(e, "k1", "u1", `{"a":1}`).Code)
	assert.Equal(t, http.StatusConflict, do(e, "k1", "u1", `{"a":2}`).Code)
}

func TestMiddleware_ScopedPerCaller(t *testing.T) {
	t.Parallel()

	calls := 0
	e := newServer(newMemStore(), func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusCreated, echo.Map{"success": true})
	})

	do(e, "k1", "u1", `{}`)
	do(e, "k1", "u2", `{}`)
	assert.Equal(t, 2, calls)
}

func TestMiddleware_FailureReleasesKey(t *testing.T) {
	t.Parallel()

	calls := 0
	e := newServer(newMemStore(), func(c echo.Context) error {
		calls++
		if calls == 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "insufficient stock").SetInternal(errors.New("x"))
		}
		return c.JSON(http.StatusCreated, echo.Map{"success": true})
	})

	assert.Equal(t, http.StatusBadRequest, do(e, "k1", "u1", `{}`).Code)
	assert.Equal(t, http.StatusCreated, do(e, "k1", "u1", `{}`).Code)
	assert.Equal(t, 2, calls)
}

func TestMiddleware_NoKeyPassesThrough(t *testing.T) {
	t.Parallel()

	calls := 0
	e := newServer(newMemStore(), func(c echo.Context) error {
		calls++
		return c.NoContent(http.StatusCreated)
	})

	do(e, "", "u1", `{}`)
	do(e, "", "u1", `{}`)
	assert.Equal(t, 2, calls)
}
