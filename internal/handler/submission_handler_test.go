package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trash2cash/trash2cash-api/internal/models"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
)

func TestSubmissionHandlerSubmitAccepted(t *testing.T) {
	svc := &stubSubmissionService{}
	h := NewSubmissionHandler(svc)
	c, w := newContext(http.MethodPost, "/submissions", models.SubmitRequest{ImageRef: "ref", Latitude: 12.9, Longitude: 77.6, LocationName: "Park"}, citizenClaims)

	h.Submit(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, svc.submitted)
	assert.Equal(t, "Park", svc.submitted.LocationName)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"status":"AI_PROCESSED"`)
}

func TestSubmissionHandlerQueueDefaultsToAll(t *testing.T) {
	svc := &stubSubmissionService{}
	h := NewSubmissionHandler(svc)
	c, w := newContext(http.MethodGet, "/submissions/queue?limit=5&offset=10", nil, workerClaims)

	h.Queue(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.QueueScopeAll, svc.scope)
	assert.Equal(t, 5, svc.limit)
	assert.Equal(t, 10, svc.offset)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "all", env.Meta["scope"])
	assert.EqualValues(t, 5, env.Meta["limit"])
}

func TestSubmissionHandlerQueueRejectsUnknownScope(t *testing.T) {
	h := NewSubmissionHandler(&stubSubmissionService{})
	c, w := newContext(http.MethodGet, "/submissions/queue?scope=mine", nil, workerClaims)

	h.Queue(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmissionHandlerMineReturnsEmptyList(t *testing.T) {
	svc := &stubSubmissionService{}
	h := NewSubmissionHandler(svc)
	c, w := newContext(http.MethodGet, "/submissions/mine", nil, citizenClaims)

	h.Mine(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", string(decodeEnvelope(t, w).Data))
	assert.Equal(t, 20, svc.limit)
}

func TestSubmissionHandlerListStatusFilter(t *testing.T) {
	svc := &stubSubmissionService{}
	h := NewSubmissionHandler(svc)

	c, w := newContext(http.MethodGet, "/submissions?status=PENDING&status=DISPUTED", nil, adminClaims)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.VerificationStatus{models.StatusPending, models.StatusDisputed}, svc.statuses)

	c, w = newContext(http.MethodGet, "/submissions?status=LOST", nil, adminClaims)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmissionHandlerVerifyMapsAlreadyVerified(t *testing.T) {
	h := NewSubmissionHandler(&stubSubmissionService{verifyErr: appErrors.ErrAlreadyVerified})
	c, w := newContext(http.MethodPost, "/submissions/sub-1/verify", models.VerifyRequest{Approved: true, ActualWasteType: "Plastic Bottle", ActualWeight: 1.2}, workerClaims)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}

	h.Verify(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrAlreadyVerified.Code, decodeEnvelope(t, w).Error.Code)
}

func TestSubmissionHandlerDispute(t *testing.T) {
	svc := &stubSubmissionService{}
	h := NewSubmissionHandler(svc)
	c, w := newContext(http.MethodPost, "/submissions/sub-1/dispute", models.DisputeRequest{Reason: "it was plastic"}, citizenClaims)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}

	h.Dispute(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "it was plastic", svc.disputeReq.Reason)
}

func TestSubmissionHandlerRequiresClaims(t *testing.T) {
	h := NewSubmissionHandler(&stubSubmissionService{})
	c, w := newContext(http.MethodGet, "/submissions/sub-1", nil, nil)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}

	h.Get(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
