package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/storefront/internal/identity/service"
	"github.com/Skotchmaster/storefront/internal/identity/transport"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	jwthelp "github.com/Skotchmaster/storefront/pkg/jwt"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/tokens"
	"github.com/Skotchmaster/storefront/pkg/util"
)

const pictureField = "profilePicture"

type IdentityHTTP struct {
	Svc *service.IdentityService
}

func setSession(c echo.Context, pair *tokens.Pair) transport.Session {
	c.SetCookie(jwthelp.CreateCookie(jwthelp.AccessCookie, pair.AccessToken, "/", pair.AccessExp))
	c.SetCookie(jwthelp.CreateCookie(jwthelp.RefreshCookie, pair.RefreshToken, "/", pair.RefreshExp))
	return transport.Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		AccessExp:    pair.AccessExp,
		RefreshExp:   pair.RefreshExp,
	}
}

func clearSession(c echo.Context) {
	c.SetCookie(jwthelp.DeleteCookie(jwthelp.AccessCookie, "/"))
	c.SetCookie(jwthelp.DeleteCookie(jwthelp.RefreshCookie, "/"))
}

// refreshToken prefers the cookie and falls back to the JSON body.
func refreshToken(c echo.Context) string {
	if ck, err := c.Cookie(jwthelp.RefreshCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	var req transport.RefreshRequest
	if err := c.Bind(&req); err == nil {
		return strings.TrimSpace(req.RefreshToken)
	}
	return ""
}

func (h *IdentityHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.register")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	u, err := h.Svc.Register(ctx, req)
	if err != nil {
		return apperr.HTTP(l, "register_failed", err)
	}

	l.Info("register_success", "user_id", u.ID)
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "user registered", "user": u})
}

func (h *IdentityHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	u, pair, err := h.Svc.Login(ctx, req.Identifier, req.Password)
	if err != nil {
		return apperr.HTTP(l, "login_failed", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "logged in",
		"user":    u,
		"session": setSession(c, pair),
	})
}

func (h *IdentityHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.refresh")

	raw := refreshToken(c)
	if raw == "" {
		l.Warn("refresh_failed", "status", 401, "reason", "refresh token missing")
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
	}
	pair, err := h.Svc.Refresh(ctx, raw)
	if err != nil {
		clearSession(c)
		return apperr.HTTP(l, "refresh_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "session": setSession(c, pair)})
}

func (h *IdentityHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.logout")

	err := h.Svc.Logout(ctx, refreshToken(c))
	clearSession(c)
	if err != nil {
		return apperr.HTTP(l, "logout_failed", err)
	}

	l.Info("logout_success")
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "logged out"})
}

func (h *IdentityHTTP) Me(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.me")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "me_failed", err)
	}
	u, err := h.Svc.Me(ctx, actor)
	if err != nil {
		return apperr.HTTP(l, "me_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": u})
}

func (h *IdentityHTTP) ListUsers(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.list_users")

	page, err := h.Svc.ListUsers(ctx,
		util.ParseIntDefault(c.QueryParam("page"), 1),
		util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize),
	)
	if err != nil {
		return apperr.HTTP(l, "list_users_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": page.Data, "meta": page.Meta})
}

func (h *IdentityHTTP) UpdateProfile(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.update_profile")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "update_profile_failed", err)
	}
	var req transport.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_profile_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	u, err := h.Svc.UpdateProfile(ctx, actor, req)
	if err != nil {
		return apperr.HTTP(l, "update_profile_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "user updated", "user": u})
}

func (h *IdentityHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.change_password")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "change_password_failed", err)
	}
	var req transport.ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("change_password_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := h.Svc.ChangePassword(ctx, actor, req.Username, req.OldPassword, req.NewPassword); err != nil {
		return apperr.HTTP(l, "change_password_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "password updated"})
}

func (h *IdentityHTTP) UpdatePicture(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.update_picture")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "update_picture_failed", err)
	}
	fh, err := c.FormFile(pictureField)
	if err != nil {
		l.Warn("update_picture_failed", "status", 400, "reason", "no file", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "no file in the request")
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.HTTP(l, "update_picture_failed", err)
	}
	defer f.Close()

	u, err := h.Svc.UpdateProfilePicture(ctx, actor, service.Picture{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		return apperr.HTTP(l, "update_picture_failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "picture updated", "profilePicture": u.ProfilePicture})
}

func (h *IdentityHTTP) Deactivate(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "identity.deactivate")

	actor, err := session.Actor(c)
	if err != nil {
		return apperr.HTTP(l, "deactivate_failed", err)
	}
	var req transport.DeactivateRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("deactivate_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	u, err := h.Svc.DeactivateUser(ctx, actor, req.Username, req.Password)
	if err != nil {
		return apperr.HTTP(l, "deactivate_failed", err)
	}
	if u.ID == actor.ID {
		clearSession(c)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "user deactivated", "user": u})
}
