package handlers

import (
	"net/http"
	"strconv"

	"idle-economy/internal/auth"
	"idle-economy/internal/models"
	"idle-economy/internal/repository"
	"idle-economy/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MarketHandler struct {
	market *services.MarketService
}

func NewMarketHandler(market *services.MarketService) *MarketHandler {
	return &MarketHandler{market: market}
}

// GetOffers lists offers visible to the player
// GET /api/market/offers?status=&item_type=&item_id=&currency=&seller_id=&limit=&offset=
func (h *MarketHandler) GetOffers(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	sellerID, _ := strconv.ParseUint(c.Query("seller_id"), 10, 64)

	offers, err := h.market.ListOffers(c.Request.Context(), repository.OfferFilter{
		SellerID:  uint(sellerID),
		BuyerID:   playerID,
		ItemType:  c.Query("item_type"),
		ItemID:    c.Query("item_id"),
		Currency:  c.Query("currency"),
		OfferType: models.OfferType(c.Query("offer_type")),
		Status:    models.OfferStatus(c.DefaultQuery("status", string(models.OfferStatusActive))),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers})
}

// CreateOffer lists stock for sale
// POST /api/market/offers
func (h *MarketHandler) CreateOffer(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	var req services.CreateOfferInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.SellerID = playerID
	if req.OfferType == models.OfferTypeSystem {
		c.JSON(http.StatusForbidden, gin.H{"error": "system offers are created by the catalog tooling"})
		return
	}

	offer, err := h.market.CreateOffer(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offer)
}

// CancelOffer withdraws one of the player's offers
// DELETE /api/market/offers/:id
func (h *MarketHandler) CancelOffer(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	offerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offer id"})
		return
	}

	offer, err := h.market.CancelOffer(c.Request.Context(), playerID, offerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

// Buy executes a trade against an offer
// POST /api/market/offers/:id/buy
func (h *MarketHandler) Buy(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	offerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offer id"})
		return
	}

	result, err := h.market.ExecuteTrade(c.Request.Context(), playerID, offerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetTransactions lists the player's trades
// GET /api/market/transactions?limit=&offset=
func (h *MarketHandler) GetTransactions(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txs, err := h.market.ListTransactions(c.Request.Context(), playerID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// GetWallet returns the player's balances and inventory
// GET /api/wallet
func (h *MarketHandler) GetWallet(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	wallet, err := h.market.Wallet(c.Request.Context(), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

type grantRequest struct {
	PlayerID uint            `json:"player_id" binding:"required"`
	Currency string          `json:"currency" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

// Grant funds a player from the system account
// POST /api/admin/grants
func (h *MarketHandler) Grant(c *gin.Context) {
	adminID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.market.Grant(c.Request.Context(), req.PlayerID, req.Currency, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted": req.Amount, "player_id": req.PlayerID, "by": adminID})
}

// RegisterRoutes mounts every handler on the authenticated API group.
func RegisterRoutes(api *gin.RouterGroup, upgrades *UpgradeHandler, events *EventHandler, market *MarketHandler) {
	up := api.Group("/upgrades")
	{
		up.POST("/init", upgrades.InitializeTree)
		up.GET("", upgrades.GetSnapshot)
		up.GET("/available", upgrades.GetAvailable)
		up.POST("/:slug/progress", upgrades.AdvanceProgress)
		up.POST("/:slug/level", upgrades.PurchaseLevel)
	}

	ev := api.Group("/events")
	{
		ev.POST("/evaluate", events.Evaluate)
		ev.GET("/active", events.GetActive)
		ev.POST("/:slug/trigger", events.Trigger)
		ev.POST("/instances/:id/complete", events.Complete)
		ev.POST("/instances/:id/cancel", events.Cancel)
	}

	mk := api.Group("/market")
	{
		mk.GET("/offers", market.GetOffers)
		mk.POST("/offers", market.CreateOffer)
		mk.DELETE("/offers/:id", market.CancelOffer)
		mk.POST("/offers/:id/buy", market.Buy)
		mk.GET("/transactions", market.GetTransactions)
	}

	api.GET("/wallet", market.GetWallet)
	api.POST("/admin/grants", auth.RequireRole(auth.RoleAdmin), market.Grant)
}
