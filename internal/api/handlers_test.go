package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/rentify/rentify-go/internal/auth"
	"github.com/rentify/rentify-go/internal/db"
	"github.com/rentify/rentify-go/internal/metrics"
	"github.com/rentify/rentify-go/internal/notify"
	"github.com/rentify/rentify-go/internal/services"
	"github.com/rentify/rentify-go/internal/storage"
	"github.com/rentify/rentify-go/internal/tokens"
	"github.com/rentify/rentify-go/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var accountCols = []string{"id", "email", "password_hash", "first_name", "last_name", "contact", "is_buyer", "is_seller", "is_active", "created_at"}

type outbox struct {
	sent []notify.Message
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.sent = append(o.sent, msg)
	return nil
}

type testEnv struct {
	router   *mux.Router
	mock     sqlmock.Sqlmock
	sessions *auth.SessionManager
	mail     *outbox
	media    string
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	database := db.Wrap(sqlDB, zap.NewNop())

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := zap.NewNop()
	m := metrics.NewNoopMetrics()
	mail := &outbox{}
	dispatcher := notify.NewDispatcher(mail, m, logger)

	images, err := storage.NewImageStore(t.TempDir(), logger)
	require.NoError(t, err)

	if cfg == nil {
		cfg = &config.Config{RateLimitRPS: 100, RateLimitBurst: 100}
	}
	cfg.MediaDir = images.Root()

	accounts := services.NewAccountService(database, m, dispatcher, logger)
	svc := Services{
		Accounts:   accounts,
		Profiles:   services.NewProfileService(database, m, accounts),
		Passwords:  services.NewPasswordService(accounts, tokens.NewRedisStore(rdb), dispatcher, 10*time.Minute, 5, logger),
		Categories: services.NewCategoryService(database, m, logger),
		Catalog:    services.NewCatalogService(database, m, images, logger),
		Rentals:    services.NewRentalService(database, m, dispatcher, logger),
	}
	sessions := auth.NewSessionManager("test-secret", time.Hour)
	app := NewApp(cfg, database, m, logger, sessions, svc)

	router := mux.NewRouter()
	app.SetupRoutes(router)
	return &testEnv{router: router, mock: mock, sessions: sessions, mail: mail, media: images.Root()}
}

func (e *testEnv) do(t *testing.T, req *http.Request, p *auth.Principal) *httptest.ResponseRecorder {
	t.Helper()
	if p != nil {
		token, err := e.sessions.Issue(*p)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	return req
}

var (
	asBuyer  = &auth.Principal{AccountID: 3, Email: "asha@example.com", Role: "buyer"}
	asSeller = &auth.Principal{AccountID: 2, Email: "ravi@example.com", Role: "seller"}
)

func TestHealthAndIndex(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/", nil), asSeller)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect":"/seller/dashboard"`)
}

func TestLoginSetsSessionCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	hash, err := auth.HashPassword("secret1")
	require.NoError(t, err)

	env.mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = ?")).WithArgs("ravi@example.com").
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(2, "ravi@example.com", hash, "Ravi Kumar", "", "9876543210", false, true, true, time.Now()))

	form := url.Values{"email": {"Ravi@Example.com"}, "password": {"secret1"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(t, req, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/seller/dashboard", body.Redirect)
	assert.Equal(t, "seller", body.Role)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	p, err := env.sessions.Parse(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.AccountID)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	hash, err := auth.HashPassword("secret1")
	require.NoError(t, err)

	env.mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = ?")).
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(3, "asha@example.com", hash, "Asha", "", "9876543210", true, false, true, time.Now()))

	rec := env.do(t, jsonRequest(http.MethodPost, "/login", map[string]string{"email": "asha@example.com", "password": "wrong"}), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid email or password"}`, rec.Body.String())
}

func TestLoginWhenAlreadyAuthenticated(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, jsonRequest(http.MethodPost, "/login", map[string]string{}), asBuyer)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect":"/buyer/dashboard"`)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestLogoutClearsCookie(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/logout", nil), asBuyer)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestRoleGuards(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/buyer/dashboard", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/buyer/dashboard", nil), asSeller)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/seller/request/10/accept", nil), asBuyer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, jsonRequest(http.MethodPost, "/cloth/7/rent", map[string]int{"quantity": 1}), asSeller)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/cloth/7", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/buyer/rent", nil), asSeller)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Only buyers can rent clothes"}`, rec.Body.String())

	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestBrowseAnonymous(t *testing.T) {
	env := newTestEnv(t, nil)

	env.mock.ExpectQuery(regexp.QuoteMeta("WHERE c.quantity > 0 AND a.pincode = ?")).WithArgs("411001").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	env.mock.ExpectQuery(regexp.QuoteMeta("FROM categories WHERE is_active = TRUE ORDER BY name")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "is_active"}).AddRow(1, "Ethnic Wear", "ethnic-wear", true))

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/buyer/rent?category=all&pincode=411001", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body browseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Clothes)
	require.Len(t, body.Categories, 1)
	assert.Equal(t, "all", body.SelectedCategory)
	assert.Equal(t, "411001", body.Pincode)
	assert.NoError(t, env.mock.ExpectationsWereMet())

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/buyer/rent?category=shirts", nil), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	env.mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = ?")).WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows(accountCols))
	rec := env.do(t, jsonRequest(http.MethodPost, "/forgot-password", map[string]string{"email": "ghost@example.com"}), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Email not registered"}`, rec.Body.String())

	env.mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE email = ?")).WithArgs("asha@example.com").
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(3, "asha@example.com", "x", "Asha", "", "9876543210", true, false, true, time.Now()))
	rec = env.do(t, jsonRequest(http.MethodPost, "/forgot-password", map[string]string{"email": "asha@example.com"}), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, env.mail.sent, 1)
	assert.Equal(t, "asha@example.com", env.mail.sent[0].To)
	code := regexp.MustCompile(`\d{6}`).FindString(env.mail.sent[0].Body)
	require.NotEmpty(t, code)

	rec = env.do(t, jsonRequest(http.MethodPost, "/verify-otp", map[string]string{"email": "asha@example.com", "otp": code}), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var verified struct {
		Redirect string `json:"redirect"`
		Data     struct {
			Ticket string `json:"ticket"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verified))
	assert.Equal(t, "/reset-password", verified.Redirect)
	require.NotEmpty(t, verified.Data.Ticket)

	env.mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET password_hash = ? WHERE email = ?")).
		WithArgs(sqlmock.AnyArg(), "asha@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	reset := map[string]string{"ticket": verified.Data.Ticket, "password": "newpass1", "confirm": "newpass1"}
	rec = env.do(t, jsonRequest(http.MethodPost, "/reset-password", reset), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, jsonRequest(http.MethodPost, "/reset-password", reset), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestLoginIsRateLimited(t *testing.T) {
	env := newTestEnv(t, &config.Config{RateLimitRPS: 1, RateLimitBurst: 1})

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{"))
		r.Header.Set("Content-Type", "application/json")
		r.RemoteAddr = "198.51.100.4:1234"
		return r
	}
	assert.Equal(t, http.StatusBadRequest, env.do(t, req(), nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, req(), nil).Code)
}

func TestMediaServing(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(env.media, "clothes", "a.png"), []byte("img"), 0o644))

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/media/clothes/a.png", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "img", rec.Body.String())

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/media/clothes/", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
