package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/trash2cash/trash2cash-api/internal/dto"
	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/pkg/response"
)

type challengeService interface {
	ListActive(ctx context.Context, challengeType models.ChallengeType) ([]models.Challenge, error)
	Join(ctx context.Context, challengeID, citizenID, ip, userAgent string) (*models.Challenge, error)
	Create(ctx context.Context, adminID string, req models.CreateChallengeRequest, ip, userAgent string) (*models.Challenge, error)
}

// ChallengeHandler exposes community challenges.
type ChallengeHandler struct {
	service challengeService
}

// NewChallengeHandler builds the handler.
func NewChallengeHandler(svc challengeService) *ChallengeHandler {
	return &ChallengeHandler{service: svc}
}

// List godoc
// @Summary Active challenges
// @Tags Challenges
// @Produce json
// @Security BearerAuth
// @Param type query string false "Challenge type"
// @Success 200 {object} response.Envelope
// @Router /challenges [get]
func (h *ChallengeHandler) List(c *gin.Context) {
	var q dto.ChallengeQuery
	if !bindQuery(c, &q) {
		return
	}
	challenges, err := h.service.ListActive(c.Request.Context(), models.ChallengeType(q.Type))
	if err != nil {
		response.Error(c, err)
		return
	}
	if challenges == nil {
		challenges = []models.Challenge{}
	}
	response.OK(c, challenges)
}

// Join godoc
// @Summary Join a challenge
// @Tags Challenges
// @Produce json
// @Security BearerAuth
// @Param id path string true "Challenge ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /challenges/{id}/join [post]
func (h *ChallengeHandler) Join(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	challenge, err := h.service.Join(c.Request.Context(), c.Param("id"), claims.UserID, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, challenge)
}

// Create godoc
// @Summary Create a challenge
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateChallengeRequest true "Challenge"
// @Success 201 {object} response.Envelope
// @Router /admin/challenges [post]
func (h *ChallengeHandler) Create(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var req models.CreateChallengeRequest
	if !bindJSON(c, &req, "invalid challenge payload") {
		return
	}
	challenge, err := h.service.Create(c.Request.Context(), claims.UserID, req, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, challenge)
}
