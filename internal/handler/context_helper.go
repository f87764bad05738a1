package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trash2cash/trash2cash-api/internal/middleware"
	"github.com/trash2cash/trash2cash-api/internal/models"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
	"github.com/trash2cash/trash2cash-api/pkg/response"
)

// currentClaims returns the authenticated claims or writes a 401.
func currentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindQuery(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return false
	}
	return true
}
