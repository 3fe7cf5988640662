package httpserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/identity/repo"
	"github.com/Skotchmaster/storefront/internal/identity/service"
	"github.com/Skotchmaster/storefront/internal/identity/transport"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/session"
	"github.com/Skotchmaster/storefront/internal/testutil"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	jwthelp "github.com/Skotchmaster/storefront/pkg/jwt"
	"github.com/Skotchmaster/storefront/pkg/storage"
	"github.com/Skotchmaster/storefront/pkg/tokens"
)

func newIdentityHTTP(t *testing.T) (*echo.Echo, *IdentityHTTP) {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = apperr.ErrorHandler
	return e, &IdentityHTTP{Svc: &service.IdentityService{
		Repo: &repo.GormRepo{DB: testutil.NewDB(t)},
		Tokens: &tokens.Issuer{
			AccessSecret:  []byte("a"),
			RefreshSecret: []byte("r"),
			AccessTTL:     time.Minute,
			RefreshTTL:    time.Hour,
		},
		Store: store,
	}}
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestRegisterLoginRefresh_HTTP(t *testing.T) {
	e, h := newIdentityHTTP(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/auth/register",
		`{"name":"Ana","username":"ana","email":"ana@example.com","password":"Passw0rd!"}`), rec)
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPost, "/api/v1/auth/login",
		`{"identifier":"ana@example.com","password":"Passw0rd!"}`), rec)
	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool              `json:"success"`
		User    models.User       `json:"user"`
		Session transport.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ana", body.User.Username)
	assert.NotEmpty(t, body.Session.AccessToken)

	access := cookie(rec, jwthelp.AccessCookie)
	refresh := cookie(rec, jwthelp.RefreshCookie)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, body.Session.RefreshToken, refresh.Value)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(refresh)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	require.NoError(t, h.Refresh(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, refresh.Value, cookie(rec, jwthelp.RefreshCookie).Value)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(refresh)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	err := h.Refresh(c)
	require.Error(t, err)
	e.HTTPErrorHandler(err, c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_HTTPBadCredential(t *testing.T) {
	e, h := newIdentityHTTP(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"identifier":"ghost","password":"x"}`), rec)
	err := h.Login(c)
	require.Error(t, err)
	e.HTTPErrorHandler(err, c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Nil(t, cookie(rec, jwthelp.AccessCookie))
}

func TestUpdatePicture_HTTP(t *testing.T) {
	e, h := newIdentityHTTP(t)
	u, err := h.Svc.Register(t.Context(), transport.RegisterRequest{
		Name: "Ana", Username: "ana", Email: "ana@example.com", Password: "Passw0rd!",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="profilePicture"; filename="me.png"`},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/users/picture", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	session.Set(c, models.Actor{ID: u.ID, Role: u.Role})

	require.NoError(t, h.UpdatePicture(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "profile-pictures/"+u.ID.String())

	req = httptest.NewRequest(http.MethodPatch, "/api/v1/users/picture", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	session.Set(c, models.Actor{ID: u.ID, Role: u.Role})
	err = h.UpdatePicture(c)
	require.Error(t, err)
	e.HTTPErrorHandler(err, c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
