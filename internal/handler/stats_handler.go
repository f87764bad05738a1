package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/trash2cash/trash2cash-api/internal/dto"
	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/pkg/response"
)

type statsService interface {
	Citizen(ctx context.Context, citizenID string) (*models.CitizenStats, error)
	Municipal(ctx context.Context, workerID string) (*models.MunicipalStats, error)
	Global(ctx context.Context) (*models.GlobalStats, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// StatsHandler serves dashboards.
type StatsHandler struct {
	service statsService
}

// NewStatsHandler builds the handler.
func NewStatsHandler(svc statsService) *StatsHandler {
	return &StatsHandler{service: svc}
}

// Citizen godoc
// @Summary Citizen dashboard
// @Tags Stats
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /stats/citizen [get]
func (h *StatsHandler) Citizen(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	stats, err := h.service.Citizen(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// Municipal godoc
// @Summary Municipal worker dashboard
// @Tags Stats
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /stats/municipal [get]
func (h *StatsHandler) Municipal(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	stats, err := h.service.Municipal(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// Global godoc
// @Summary Platform-wide totals
// @Tags Stats
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /stats/global [get]
func (h *StatsHandler) Global(c *gin.Context) {
	stats, err := h.service.Global(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// Leaderboard godoc
// @Summary Citizen leaderboard
// @Tags Stats
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Entries, at most 100"
// @Success 200 {object} response.Envelope
// @Router /leaderboard [get]
func (h *StatsHandler) Leaderboard(c *gin.Context) {
	var q dto.LeaderboardQuery
	if !bindQuery(c, &q) {
		return
	}
	entries, err := h.service.Leaderboard(c.Request.Context(), q.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	response.OK(c, entries)
}
