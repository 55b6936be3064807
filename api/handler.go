package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Tradcast/Backend/internal/storage"
)

type Handler struct {
	store   *storage.Store
	tracker *GameplayTracker
	logger  *zap.Logger
}

func NewHandler(store *storage.Store, tracker *GameplayTracker, logger *zap.Logger) *Handler {
	return &Handler{
		store:   store,
		tracker: tracker,
		logger:  logger,
	}
}

func fidParam(c *gin.Context) (string, bool) {
	fid := c.Query("fid")
	if fid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fid is required"})
		return "", false
	}
	return fid, true
}

// User Handlers

func (h *Handler) Home(c *gin.Context) {
	fid, ok := fidParam(c)
	if !ok {
		return
	}

	user, err := h.store.EnsureUser(c.Request.Context(), fid, "", "")
	if err != nil {
		h.logger.Error("failed to load user", zap.String("fid", fid), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if err := h.store.UpdateStreak(c.Request.Context(), user); err != nil {
		h.logger.Warn("failed to update streak", zap.String("fid", fid), zap.Error(err))
	}
	if err := h.store.UpdateLastOnline(c.Request.Context(), fid); err != nil {
		h.logger.Warn("failed to touch last_online", zap.String("fid", fid), zap.Error(err))
	}

	c.JSON(http.StatusOK, user)
}

func (h *Handler) Profile(c *gin.Context) {
	fid, ok := fidParam(c)
	if !ok {
		return
	}

	user, err := h.store.EnsureUser(c.Request.Context(), fid, c.Query("username"), c.Query("wallet"))
	if err != nil {
		h.logger.Error("failed to load user", zap.String("fid", fid), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if err := h.store.UpdateStreak(c.Request.Context(), user); err != nil {
		h.logger.Warn("failed to update streak", zap.String("fid", fid), zap.Error(err))
	}
	if err := h.store.UpdateLastOnline(c.Request.Context(), fid); err != nil {
		h.logger.Warn("failed to touch last_online", zap.String("fid", fid), zap.Error(err))
	}

	trades, err := h.store.LatestTrades(c.Request.Context(), fid, 4)
	if err != nil {
		h.logger.Error("failed to load latest trades", zap.String("fid", fid), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":          user,
		"latest_trades": trades,
	})
}

func (h *Handler) Leaderboard(c *gin.Context) {
	fid, ok := fidParam(c)
	if !ok {
		return
	}
	topN, err := strconv.Atoi(c.DefaultQuery("top_n", "10"))
	if err != nil || topN <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid top_n"})
		return
	}

	entries, err := h.store.Leaderboard(c.Request.Context(), fid, topN)
	if err != nil {
		h.logger.Error("failed to query leaderboard", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

func (h *Handler) WeeklyLeaderboard(c *gin.Context) {
	fid, ok := fidParam(c)
	if !ok {
		return
	}
	topN, err := strconv.Atoi(c.DefaultQuery("top_n", "10"))
	if err != nil || topN <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid top_n"})
		return
	}

	entries, err := h.store.WeeklyLeaderboard(c.Request.Context(), fid, topN)
	if err != nil {
		h.logger.Error("failed to query weekly leaderboard", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

func (h *Handler) DailyLeaderboard(c *gin.Context) {
	fid, ok := fidParam(c)
	if !ok {
		return
	}
	topN, err := strconv.Atoi(c.DefaultQuery("top_n", "10"))
	if err != nil || topN <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid top_n"})
		return
	}

	entries, err := h.store.DailyLeaderboard(c.Request.Context(), fid, topN)
	if err != nil {
		h.logger.Error("failed to query daily leaderboard", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

// Tracker Handlers

func (h *Handler) IncreaseTracker(c *gin.Context) {
	fid, ok := fidParam(c)
	if !ok {
		return
	}
	h.tracker.RecordGame(fid)
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) GetTracker(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Snapshot())
}
