package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Skotchmaster/storefront/pkg/apperr"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/labstack/echo/v4"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"
	DefaultTTL     = 7 * 24 * time.Hour
	pendingTTL     = time.Minute
)

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

type record struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
}

type captureWriter struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Middleware replays the first successful response for a repeated Idempotency-Key.
// Requests without the header pass through untouched. scope should identify the caller.
func Middleware(store Store, ttl time.Duration, namespace func(string) string, scope func(echo.Context) string) echo.MiddlewareFunc {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			idemKey := strings.TrimSpace(c.Request().Header.Get(HeaderKey))
			if store == nil || idemKey == "" {
				return next(c)
			}
			ctx := c.Request().Context()
			l := logging.FromContext(ctx).With("middleware", "idempotency")

			body, err := io.ReadAll(c.Request().Body)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
			}
			c.Request().Body = io.NopCloser(bytes.NewReader(body))

			reqHash := hashOf(body)
			key := namespace(hashOf([]byte(scope(c) + "|" + c.Request().Method + "|" + c.Request().URL.Path)) + ":" + idemKey)

			pending, _ := json.Marshal(record{Pending: true, RequestHash: reqHash})
			acquired, err := store.SetNX(ctx, key, string(pending), pendingTTL)
			if err != nil {
				l.Error("idempotency_store_failed", "error", err)
				return next(c)
			}
			if !acquired {
				return replay(c, store, key, reqHash)
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer}
			c.Response().Writer = cw

			err = next(c)
			status := c.Response().Status
			if err != nil || status < 200 || status >= 300 {
				if delErr := store.Del(ctx, key); delErr != nil {
					l.Warn("idempotency_release_failed", "error", delErr)
				}
				return err
			}

			done, _ := json.Marshal(record{
				Status:      status,
				ContentType: c.Response().Header().Get(echo.HeaderContentType),
				Body:        base64.StdEncoding.EncodeToString(cw.body.Bytes()),
				RequestHash: reqHash,
			})
			if setErr := store.Set(ctx, key, string(done), ttl); setErr != nil {
				l.Warn("idempotency_persist_failed", "error", setErr)
			}
			return nil
		}
	}
}

func replay(c echo.Context, store Store, key, reqHash string) error {
	raw, found, err := store.Get(c.Request().Context(), key)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected error").SetInternal(err)
	}
	if !found {
		return echo.NewHTTPError(http.StatusConflict, "request with this idempotency key is in progress").SetInternal(apperr.ErrConflict)
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected error").SetInternal(err)
	}
	if rec.RequestHash != reqHash {
		return echo.NewHTTPError(http.StatusConflict, "idempotency key reused with different request body").SetInternal(apperr.ErrConflict)
	}
	if rec.Pending {
		return echo.NewHTTPError(http.StatusConflict, "request with this idempotency key is in progress").SetInternal(apperr.ErrConflict)
	}
	body, err := base64.StdEncoding.DecodeString(rec.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected error").SetInternal(err)
	}
	c.Response().Header().Set(HeaderReplayed, "true")
	return c.Blob(rec.Status, rec.ContentType, body)
}

func hashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
