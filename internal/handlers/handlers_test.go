package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"idle-economy/internal/auth"
	"idle-economy/internal/catalog"
	"idle-economy/internal/repository"
	"idle-economy/internal/services"
	"idle-economy/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiClient struct {
	t      *testing.T
	router *gin.Engine
	issuer *auth.Issuer
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c, err := catalog.Default()
	require.NoError(t, err)
	db := testutil.NewDB(t)
	store := catalog.NewStore(db, decimal.Zero)
	_, err = store.Seed(t.Context(), c)
	require.NoError(t, err)

	repo := repository.NewRepository(db)
	logger := slog.New(slog.DiscardHandler)
	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	router := gin.New()
	api := router.Group("/api")
	api.Use(auth.Middleware(issuer))
	RegisterRoutes(api,
		NewUpgradeHandler(services.NewUpgradeService(repo, store, logger)),
		NewEventHandler(services.NewEventService(repo, store, logger)),
		NewMarketHandler(services.NewMarketService(repo, store, logger)),
	)
	return &apiClient{t: t, router: router, issuer: issuer}
}

func (a *apiClient) do(method, path string, playerID uint, role, body string) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if playerID != 0 {
		token, err := a.issuer.GenerateToken(playerID, role)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestRequiresToken(t *testing.T) {
	api := newAPI(t)

	w, _ := api.do(http.MethodGet, "/api/wallet", 0, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpgradeRoutes(t *testing.T) {
	api := newAPI(t)

	w, body := api.do(http.MethodPost, "/api/upgrades/init", 1, "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, body["upgrades"], 2)

	w, _ = api.do(http.MethodPost, "/api/upgrades/stardust_production/progress", 1, "", `{"delta": 0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(http.MethodPost, "/api/upgrades/stardust_production/progress", 1, "", `{"delta": 1000}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = api.do(http.MethodPost, "/api/upgrades/stardust_production/progress", 1, "", `{"delta": 1}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_COMPLETED", body["kind"])

	w, body = api.do(http.MethodPost, "/api/upgrades/stellar_engine/progress", 1, "", `{"delta": 1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["kind"])

	w, body = api.do(http.MethodPost, "/api/upgrades/stardust_production/level", 1, "", "")
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", body["kind"])
}

func TestMarketRoutes(t *testing.T) {
	api := newAPI(t)

	w, _ := api.do(http.MethodPost, "/api/admin/grants", 1, "", `{"player_id": 2, "currency": "stardust", "amount": "150"}`)
	assert.Equal(t, http.StatusForbidden, w.Code, "grants need the admin role")

	w, _ = api.do(http.MethodPost, "/api/admin/grants", 9, auth.RoleAdmin, `{"player_id": 1, "currency": "crystals", "amount": "40"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, _ = api.do(http.MethodPost, "/api/admin/grants", 9, auth.RoleAdmin, `{"player_id": 2, "currency": "stardust", "amount": "150"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = api.do(http.MethodPost, "/api/market/offers", 1, "",
		`{"item_type": "resource", "item_id": "crystals", "amount": "10", "price": "5", "currency": "stardust", "offer_type": "SYSTEM"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := api.do(http.MethodPost, "/api/market/offers", 1, "",
		`{"item_type": "artifact", "item_id": "lens", "amount": "1", "price": "5", "currency": "stardust"}`)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", body["kind"])

	w, body = api.do(http.MethodPost, "/api/market/offers", 1, "",
		`{"item_type": "resource", "item_id": "crystals", "amount": "40", "price": "100", "currency": "stardust"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	offerID, _ := body["id"].(string)
	require.NotEmpty(t, offerID)

	w, body = api.do(http.MethodGet, "/api/market/offers", 2, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["offers"], 1)

	w, _ = api.do(http.MethodPost, "/api/market/offers/not-a-uuid/buy", 2, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(http.MethodPost, "/api/market/offers/"+uuid.NewString()+"/buy", 2, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = api.do(http.MethodPost, "/api/market/offers/"+offerID+"/buy", 1, "", "")
	assert.Equal(t, http.StatusConflict, w.Code, "own offer")
	assert.Equal(t, "CONFLICT", body["kind"])

	w, _ = api.do(http.MethodPost, "/api/market/offers/"+offerID+"/buy", 2, "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = api.do(http.MethodGet, "/api/market/transactions", 2, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["transactions"], 1)

	w, body = api.do(http.MethodGet, "/api/wallet", 2, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	balances, _ := body["balances"].([]any)
	assert.Len(t, balances, 2, "stardust and crystals")
}

func TestEventRoutes(t *testing.T) {
	api := newAPI(t)

	w, _ := api.do(http.MethodPost, "/api/events/evaluate", 1, "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = api.do(http.MethodPost, "/api/events/no_such_event/trigger", 1, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = api.do(http.MethodPost, "/api/events/instances/"+uuid.NewString()+"/complete", 1, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := api.do(http.MethodGet, "/api/events/active", 1, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "events")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor("SOMETHING_ELSE"))
}
