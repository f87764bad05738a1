package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/trash2cash/trash2cash-api/internal/models"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
)

type tokenAuthenticator map[string]*models.JWTClaims

func (m tokenAuthenticator) Authenticate(_ context.Context, token string) (*models.JWTClaims, error) {
	if claims, ok := m[token]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrSessionExpired
}

type discardAudit struct{ count int }

func (d *discardAudit) CreateAuditLog(context.Context, *models.AuditLog) error {
	d.count++
	return errors.New("not persisted")
}

func newTestRouter(audit *discardAudit) *gin.Engine {
	router := gin.New()
	h, _ := allHandlers()
	RegisterRoutes(router.Group("/api/v1"), h, RouteDeps{
		Auth: tokenAuthenticator{
			"citizen": citizenClaims,
			"worker":  workerClaims,
			"admin":   adminClaims,
		},
		Audit: audit,
	})
	return router
}

func TestRoutesEnforceRoles(t *testing.T) {
	router := newTestRouter(&discardAudit{})

	cases := []struct {
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/v1/auth/me", "", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/auth/me", "stale", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/auth/me", "citizen", "", http.StatusOK},
		{http.MethodPatch, "/api/v1/auth/me", "", `{}`, http.StatusUnauthorized},
		{http.MethodPatch, "/api/v1/auth/me", "worker", `{"name":"Ravi Kumar"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/auth/change-password", "", `{}`, http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/auth/change-password", "admin", `{"oldPassword":"a1b2c3","newPassword":"d4e5f6"}`, http.StatusNoContent},
		{http.MethodGet, "/api/v1/submissions/mine", "citizen", "", http.StatusOK},
		{http.MethodGet, "/api/v1/submissions/mine", "worker", "", http.StatusForbidden},
		{http.MethodGet, "/api/v1/submissions/queue", "worker", "", http.StatusOK},
		{http.MethodGet, "/api/v1/submissions/queue", "admin", "", http.StatusOK},
		{http.MethodGet, "/api/v1/submissions/queue", "citizen", "", http.StatusForbidden},
		{http.MethodGet, "/api/v1/submissions/verified", "worker", "", http.StatusOK},
		{http.MethodGet, "/api/v1/submissions", "admin", "", http.StatusOK},
		{http.MethodGet, "/api/v1/submissions", "worker", "", http.StatusForbidden},
		{http.MethodGet, "/api/v1/submissions/sub-9", "worker", "", http.StatusOK},
		{http.MethodPost, "/api/v1/submissions/sub-9/verify", "citizen", `{}`, http.StatusForbidden},
		{http.MethodPost, "/api/v1/vouchers/v-1/redeem", "citizen", "", http.StatusCreated},
		{http.MethodPost, "/api/v1/vouchers/v-1/redeem", "admin", "", http.StatusForbidden},
		{http.MethodGet, "/api/v1/stats/municipal", "worker", "", http.StatusOK},
		{http.MethodGet, "/api/v1/stats/municipal", "citizen", "", http.StatusForbidden},
		{http.MethodGet, "/api/v1/leaderboard", "worker", "", http.StatusOK},
		{http.MethodGet, "/api/v1/zones/mine", "admin", "", http.StatusForbidden},
		{http.MethodPost, "/api/v1/zones/z-1/adopt", "citizen", "", http.StatusOK},
		{http.MethodPost, "/api/v1/challenges/c-1/join", "citizen", "", http.StatusOK},
		{http.MethodGet, "/api/v1/admin/workers/pending", "admin", "", http.StatusOK},
		{http.MethodGet, "/api/v1/admin/workers/pending", "worker", "", http.StatusForbidden},
		{http.MethodPost, "/api/v1/admin/workers/w-1/approve", "admin", "", http.StatusOK},
		{http.MethodGet, "/api/v1/admin/rewards/reconcile/c1", "admin", "", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path+" as "+tc.token, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestRoutesAuditStatementDownloads(t *testing.T) {
	audit := &discardAudit{}
	router := newTestRouter(audit)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rewards/statement?format=pdf", nil)
	req.Header.Set("Authorization", "Bearer citizen")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, audit.count)
}

func TestRoutesPublicEndpoints(t *testing.T) {
	router := newTestRouter(&discardAudit{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(`{"email":"n@b.co","role":"CITIZEN"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
}
