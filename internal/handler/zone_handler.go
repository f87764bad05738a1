package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/pkg/response"
)

type zoneService interface {
	List(ctx context.Context) ([]models.Zone, error)
	ListMine(ctx context.Context, userID string, role models.UserRole) ([]models.Zone, error)
	Adopt(ctx context.Context, zoneID, citizenID, ip, userAgent string) (*models.Zone, error)
	Create(ctx context.Context, adminID string, req models.CreateZoneRequest, ip, userAgent string) (*models.Zone, error)
	Assign(ctx context.Context, adminID, zoneID string, req models.AssignZoneRequest, ip, userAgent string) (*models.Zone, error)
}

// ZoneHandler exposes cleanup zones.
type ZoneHandler struct {
	service zoneService
}

// NewZoneHandler builds the handler.
func NewZoneHandler(svc zoneService) *ZoneHandler {
	return &ZoneHandler{service: svc}
}

// List godoc
// @Summary Active zones
// @Tags Zones
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /zones [get]
func (h *ZoneHandler) List(c *gin.Context) {
	zones, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, nonNilZones(zones))
}

// Mine godoc
// @Summary Zones adopted by the citizen or assigned to the worker
// @Tags Zones
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /zones/mine [get]
func (h *ZoneHandler) Mine(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	zones, err := h.service.ListMine(c.Request.Context(), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, nonNilZones(zones))
}

// Adopt godoc
// @Summary Adopt a zone
// @Tags Zones
// @Produce json
// @Security BearerAuth
// @Param id path string true "Zone ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /zones/{id}/adopt [post]
func (h *ZoneHandler) Adopt(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	zone, err := h.service.Adopt(c.Request.Context(), c.Param("id"), claims.UserID, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, zone)
}

// Create godoc
// @Summary Create a zone
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateZoneRequest true "Zone"
// @Success 201 {object} response.Envelope
// @Router /admin/zones [post]
func (h *ZoneHandler) Create(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var req models.CreateZoneRequest
	if !bindJSON(c, &req, "invalid zone payload") {
		return
	}
	zone, err := h.service.Create(c.Request.Context(), claims.UserID, req, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, zone)
}

// Assign godoc
// @Summary Assign a zone to a municipal worker
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Zone ID"
// @Param payload body models.AssignZoneRequest true "Worker"
// @Success 200 {object} response.Envelope
// @Router /admin/zones/{id}/assign [post]
func (h *ZoneHandler) Assign(c *gin.Context) {
	claims, ok := currentClaims(c)
	if !ok {
		return
	}
	var req models.AssignZoneRequest
	if !bindJSON(c, &req, "invalid assignment payload") {
		return
	}
	zone, err := h.service.Assign(c.Request.Context(), claims.UserID, c.Param("id"), req, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, zone)
}

func nonNilZones(zones []models.Zone) []models.Zone {
	if zones == nil {
		return []models.Zone{}
	}
	return zones
}
