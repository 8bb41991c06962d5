package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubCheckout struct {
	principal auth.Principal
	result    *checkout.Result
	err       error
}

func (s *stubCheckout) InitiateCheckout(ctx context.Context, p auth.Principal) (*checkout.Result, error) {
	s.principal = p
	return s.result, s.err
}

func TestCheckoutReturnsSession(t *testing.T) {
	orderID := uuid.New()
	svc := &stubCheckout{result: &checkout.Result{SessionID: "cs_test_1", URL: "https://pay.example/cs_test_1", OrderID: orderID}}
	caller := auth.Principal{UserID: uuid.New(), Role: enums.RoleUser}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), caller))
	rec := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, caller, svc.principal)
	assert.Equal(t, "/api/v1/orders/"+orderID.String(), rec.Header().Get("Location"))

	var envelope struct {
		Data checkout.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "cs_test_1", envelope.Data.SessionID)
	assert.Equal(t, orderID, envelope.Data.OrderID)
}

func TestCheckoutMapsErrors(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")}
	rec := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "cart is empty")
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev", rec.Header().Get("X-Storefront-Env"))
	assert.Contains(t, rec.Body.String(), `"redis":"ok"`)

	rec = httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"redis": stubPinger{err: errors.New("connection refused")}}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dependency":"redis"`)
}

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "prod"}}
	rec := httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"live"`)
}
