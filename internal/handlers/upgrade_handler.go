package handlers

import (
	"net/http"

	"idle-economy/internal/services"

	"github.com/gin-gonic/gin"
)

type UpgradeHandler struct {
	upgrades *services.UpgradeService
}

func NewUpgradeHandler(upgrades *services.UpgradeService) *UpgradeHandler {
	return &UpgradeHandler{upgrades: upgrades}
}

// InitializeTree seeds the player's root upgrades
// POST /api/upgrades/init
func (h *UpgradeHandler) InitializeTree(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	rows, err := h.upgrades.InitializeTree(c.Request.Context(), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upgrades": rows})
}

// GetSnapshot returns the player's progression snapshot
// GET /api/upgrades
func (h *UpgradeHandler) GetSnapshot(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	snap, err := h.upgrades.Snapshot(c.Request.Context(), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetAvailable lists upgrade templates the player may work on
// GET /api/upgrades/available
func (h *UpgradeHandler) GetAvailable(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	templates, err := h.upgrades.GetAvailableUpgrades(c.Request.Context(), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upgrades": templates})
}

type advanceRequest struct {
	Delta int64 `json:"delta" binding:"required"`
}

// AdvanceProgress adds progress to one node
// POST /api/upgrades/:slug/progress
func (h *UpgradeHandler) AdvanceProgress(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.upgrades.AdvanceProgress(c.Request.Context(), playerID, c.Param("slug"), req.Delta)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PurchaseLevel buys the next level of a completed node
// POST /api/upgrades/:slug/level
func (h *UpgradeHandler) PurchaseLevel(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	row, err := h.upgrades.PurchaseLevel(c.Request.Context(), playerID, c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}
