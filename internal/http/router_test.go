package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"user-admin-server/internal/auth"
	"user-admin-server/internal/config"
	transport "user-admin-server/internal/http"
	"user-admin-server/internal/repo"
	"user-admin-server/internal/reqres"
	"user-admin-server/internal/services"
	"user-admin-server/internal/storage"
	"user-admin-server/internal/testutil"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type apiTest struct {
	t         *testing.T
	router    *gin.Engine
	uploadDir string
}

func setupAPI(t *testing.T, upstreamURL string) *apiTest {
	t.Helper()

	uploadDir := t.TempDir()
	disk, err := storage.NewDisk(uploadDir)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	svc, err := services.NewUserService(
		repo.NewUserRepo(testutil.NewDB(t), 5*time.Second),
		auth.NewPasswordHasher(bcrypt.MinCost),
		tokens,
		storage.NewAvatars(disk, 1024, []string{"image/"}),
		reqres.NewClient(upstreamURL, "", 500*time.Millisecond, 2),
		services.Options{PasswordMinLen: 3, Logger: logger},
	)
	require.NoError(t, err)

	router := transport.NewRouter(transport.Dependencies{
		Config:      &config.Config{},
		UserService: svc,
		Tokens:      tokens,
		Logger:      logger,
		UploadDir:   uploadDir,
	})
	return &apiTest{t: t, router: router, uploadDir: uploadDir}
}

func (a *apiTest) do(method, path, token, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *apiTest) doJSON(method, path, token string, payload any) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(a.t, err)
		body = bytes.NewReader(raw)
	}
	return a.do(method, path, token, "application/json", body)
}

func (a *apiTest) doMultipart(method, path, token string, fields map[string]string, avatar []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(a.t, w.WriteField(k, v))
	}
	if avatar != nil {
		part, err := w.CreateFormFile("avatar", "me.png")
		require.NoError(a.t, err)
		_, err = part.Write(avatar)
		require.NoError(a.t, err)
	}
	require.NoError(a.t, w.Close())
	return a.do(method, path, token, w.FormDataContentType(), &buf)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type authBody struct {
	ID     uint    `json:"id"`
	Email  string  `json:"email"`
	Avatar *string `json:"avatar"`
	Token  string  `json:"token"`
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestUserLifecycleScenario(t *testing.T) {
	t.Parallel()

	api := setupAPI(t, "http://127.0.0.1:0")

	rec := api.doMultipart(http.MethodPost, "/api/users", "", map[string]string{
		"email": "a@x.com", "password": "pw1", "firstName": "A", "lastName": "B",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[authBody](t, rec)
	assert.NotEmpty(t, created.Token)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = api.doJSON(http.MethodPost, "/api/login", "", map[string]string{"email": "a@x.com", "password": "pw1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[authBody](t, rec)
	assert.Equal(t, created.ID, login.ID)

	rec = api.doJSON(http.MethodPost, "/api/login", "", map[string]string{"email": "a@x.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	wrongPassword := rec.Body.String()

	rec = api.doJSON(http.MethodPost, "/api/login", "", map[string]string{"email": "nobody@x.com", "password": "pw1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, wrongPassword, rec.Body.String())

	rec = api.do(http.MethodDelete, fmt.Sprintf("/api/users/%d", created.ID), login.Token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/api/profile", login.Token, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, rec).Error.Code)

	rec = api.do(http.MethodDelete, fmt.Sprintf("/api/users/%d", created.ID), login.Token, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogin_MissingFields(t *testing.T) {
	t.Parallel()

	api := setupAPI(t, "http://127.0.0.1:0")

	rec := api.doJSON(http.MethodPost, "/api/login", "", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[errorBody](t, rec).Error.Code)
}

func TestCreateUser_DuplicateAndValidation(t *testing.T) {
	t.Parallel()

	api := setupAPI(t, "http://127.0.0.1:0")
	fields := map[string]string{"email": "a@x.com", "password": "pw1", "firstName": "A", "lastName": "B"}

	rec := api.doMultipart(http.MethodPost, "/api/users", "", fields, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.doMultipart(http.MethodPost, "/api/users", "", fields, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DUPLICATE_EMAIL", decode[errorBody](t, rec).Error.Code)

	rec = api.doJSON(http.MethodPost, "/api/users", "", map[string]string{"email": "b@x.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Contains(t, body.Error.Details, "password")
	assert.Contains(t, body.Error.Details, "firstName")

	rec = api.doMultipart(http.MethodPost, "/api/users", "", map[string]string{
		"email": "c@x.com", "password": "pw1", "firstName": "C", "lastName": "D",
	}, []byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Error.Details, "avatar")

	rec = api.doJSON(http.MethodPost, "/api/users", "", map[string]string{
		"email": "d@x.com", "password": strings.Repeat("p", 80), "firstName": "D", "lastName": "E",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body = decode[errorBody](t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Contains(t, body.Error.Details, "password")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	t.Parallel()

	api := setupAPI(t, "http://127.0.0.1:0")

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/users"},
		{http.MethodGet, "/api/profile"},
		{http.MethodPut, "/api/users/1"},
		{http.MethodDelete, "/api/users/1"},
		{http.MethodPost, "/api/users/import"},
	} {
		rec := api.do(route.method, route.path, "", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)

		rec = api.do(route.method, route.path, "garbage", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
	}
}

func TestListAndProfileNeverExposePassword(t *testing.T) {
	t.Parallel()

	api := setupAPI(t, "http://127.0.0.1:0")

	var token string
	for _, email := range []string{"a@x.com", "b@x.com"} {
		rec := api.doJSON(http.MethodPost, "/api/users", "", map[string]string{
			"email": email, "password": "pw1", "firstName": "F", "lastName": "L",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		token = decode[authBody](t, rec).Token
	}

	rec := api.do(http.MethodGet, "/api/users", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]map[string]any](t, rec)
	require.Len(t, users, 2)
	assert.Equal(t, "a@x.com", users[0]["email"])
	for _, u := range users {
		for key := range u {
			assert.NotContains(t, strings.ToLower(key), "password")
		}
	}

	rec = api.do(http.MethodGet, "/api/profile", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[map[string]any](t, rec)
	assert.Equal(t, "b@x.com", profile["email"])
	assert.NotContains(t, rec.Body.String(), "assword")
}

func TestUpdateUser(t *testing.T) {
	t.Parallel()

	api := setupAPI(t, "http://127.0.0.1:0")

	rec := api.doMultipart(http.MethodPost, "/api/users", "", map[string]string{
		"email": "a@x.com", "password": "pw1", "firstName": "A", "lastName": "B",
	}, pngBytes)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[authBody](t, rec)
	require.NotNil(t, created.Avatar)
	assert.True(t, strings.HasPrefix(*created.Avatar, "/uploads/"))

	rec = api.do(http.MethodGet, *created.Avatar, "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	path := fmt.Sprintf("/api/users/%d", created.ID)

	rec = api.doMultipart(http.MethodPut, path, created.Token, map[string]string{"firstName": "X"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[map[string]any](t, rec)
	assert.Equal(t, "X", updated["firstName"])
	assert.Equal(t, "B", updated["lastName"])
	assert.Equal(t, *created.Avatar, updated["avatar"])

	rec = api.doJSON(http.MethodPost, "/api/login", "", map[string]string{"email": "a@x.com", "password": "pw1"})
	assert.Equal(t, http.StatusOK, rec.Code, "password must survive a name-only update")

	rec = api.doMultipart(http.MethodPut, path, created.Token, nil, pngBytes)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replaced := decode[map[string]any](t, rec)
	assert.NotEqual(t, *created.Avatar, replaced["avatar"])
	_, err := os.Stat(filepath.Join(api.uploadDir, filepath.Base(*created.Avatar)))
	assert.True(t, os.IsNotExist(err), "previous avatar file is removed")

	rec = api.doJSON(http.MethodPut, "/api/users/999", created.Token, map[string]string{"firstName": "Y"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.doJSON(http.MethodPut, "/api/users/abc", created.Token, map[string]string{"firstName": "Y"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportUsers(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"page":1,"total_pages":1,"data":[`+
			`{"id":1,"email":"george.bluth@reqres.in","first_name":"George","last_name":"Bluth","avatar":"https://reqres.in/img/faces/1-image.jpg"},`+
			`{"id":2,"email":"janet.weaver@reqres.in","first_name":"Janet","last_name":"Weaver","avatar":"https://reqres.in/img/faces/2-image.jpg"}]}`)
	}))
	defer upstream.Close()

	api := setupAPI(t, upstream.URL)

	rec := api.doJSON(http.MethodPost, "/api/users", "", map[string]string{
		"email": "admin@x.com", "password": "pw1", "firstName": "Ad", "lastName": "Min",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decode[authBody](t, rec).Token

	for i, wantCreated := range []float64{2, 0} {
		rec = api.do(http.MethodPost, "/api/users/import", token, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode[map[string]any](t, rec)
		assert.Equal(t, wantCreated, body["created"], "run %d", i+1)
	}

	rec = api.do(http.MethodGet, "/api/users", token, "", nil)
	assert.Len(t, decode[[]map[string]any](t, rec), 3)
}

func TestImportUsers_UpstreamDown(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	api := setupAPI(t, upstream.URL)

	rec := api.doJSON(http.MethodPost, "/api/users", "", map[string]string{
		"email": "admin@x.com", "password": "pw1", "firstName": "Ad", "lastName": "Min",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decode[authBody](t, rec).Token

	rec = api.do(http.MethodPost, "/api/users/import", token, "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "UPSTREAM_ERROR", decode[errorBody](t, rec).Error.Code)
}

func TestRouter_DefaultsMissingLogger(t *testing.T) {
	t.Parallel()

	router := transport.NewRouter(transport.Dependencies{
		Config: &config.Config{},
		Tokens: auth.NewTokenManager("test-secret", time.Hour),
	})

	for _, header := range []string{"", "Bearer garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		require.NotPanics(t, func() { router.ServeHTTP(rec, req) })
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	api := setupAPI(t, "http://127.0.0.1:0")

	rec := api.do(http.MethodGet, "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
