package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/trash2cash/trash2cash-api/internal/middleware"
	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Meta  map[string]interface{} `json:"meta"`
	Error *struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func newContext(method, target string, body interface{}, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

var (
	citizenClaims = &models.JWTClaims{UserID: "citizen-1", Role: models.RoleCitizen}
	workerClaims  = &models.JWTClaims{UserID: "worker-1", Role: models.RoleMunicipalWorker}
	adminClaims   = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
)

type stubAuthService struct {
	loginReq    models.LoginRequest
	loginErr    error
	loggedOut   *models.JWTClaims
	user        *models.User
	profileReq  models.UpdateProfileRequest
	passwordReq models.ChangePasswordRequest
	passwordErr error
}

func (s *stubAuthService) Register(_ context.Context, req models.RegisterRequest) (*models.User, error) {
	return &models.User{ID: "new", Email: req.Email, Role: req.Role}, nil
}

func (s *stubAuthService) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	s.loginReq = req
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &models.LoginResponse{AccessToken: "token", SessionID: "sid"}, nil
}

func (s *stubAuthService) Logout(_ context.Context, claims *models.JWTClaims, _, _ string) error {
	s.loggedOut = claims
	return nil
}

func (s *stubAuthService) Me(_ context.Context, userID string) (*models.User, error) {
	if s.user != nil {
		return s.user, nil
	}
	return &models.User{ID: userID}, nil
}

func (s *stubAuthService) UpdateProfile(_ context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error) {
	s.profileReq = req
	return &models.User{ID: userID, Name: req.Name, Email: req.Email, Phone: req.Phone}, nil
}

func (s *stubAuthService) ChangePassword(_ context.Context, _ string, req models.ChangePasswordRequest) error {
	s.passwordReq = req
	return s.passwordErr
}

type stubSubmissionService struct {
	submitted  *models.SubmitRequest
	scope      models.QueueScope
	statuses   []models.VerificationStatus
	limit      int
	offset     int
	verifyErr  error
	disputeReq models.DisputeRequest
}

func (s *stubSubmissionService) Submit(_ context.Context, citizenID string, req models.SubmitRequest) (*models.WasteSubmission, error) {
	s.submitted = &req
	return &models.WasteSubmission{ID: "sub-1", CitizenID: citizenID, Status: models.StatusAIProcessed}, nil
}

func (s *stubSubmissionService) Verify(_ context.Context, id, _ string, _ models.VerifyRequest) (*models.WasteSubmission, error) {
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return &models.WasteSubmission{ID: id, Status: models.StatusVerified}, nil
}

func (s *stubSubmissionService) Dispute(_ context.Context, id, _ string, req models.DisputeRequest, _, _ string) (*models.WasteSubmission, error) {
	s.disputeReq = req
	return &models.WasteSubmission{ID: id, Status: models.StatusDisputed}, nil
}

func (s *stubSubmissionService) Get(_ context.Context, id, _ string, _ models.UserRole) (*models.WasteSubmission, error) {
	return &models.WasteSubmission{ID: id}, nil
}

func (s *stubSubmissionService) ListMine(_ context.Context, _ string, limit, offset int) ([]models.WasteSubmission, error) {
	s.limit, s.offset = limit, offset
	return nil, nil
}

func (s *stubSubmissionService) ListQueue(_ context.Context, _ string, scope models.QueueScope, limit, offset int) ([]models.WasteSubmission, error) {
	s.scope, s.limit, s.offset = scope, limit, offset
	return []models.WasteSubmission{{ID: "sub-1"}}, nil
}

func (s *stubSubmissionService) ListVerifiedBy(_ context.Context, _ string, _, _ int) ([]models.WasteSubmission, error) {
	return nil, nil
}

func (s *stubSubmissionService) ListAll(_ context.Context, statuses []models.VerificationStatus, _, _ int) ([]models.WasteSubmission, error) {
	s.statuses = statuses
	return nil, nil
}

type stubLedgerService struct {
	redeemErr error
	types     []models.TransactionType
	format    models.StatementFormat
}

func (s *stubLedgerService) Adjust(_ context.Context, _ string, req models.AdjustPointsRequest, _, _ string) (*models.RewardTransaction, int64, error) {
	return &models.RewardTransaction{ID: "tx-1", Type: req.Type, Points: req.Points}, 42, nil
}

func (s *stubLedgerService) Redeem(_ context.Context, _, voucherID, _, _ string) (*models.Redemption, error) {
	if s.redeemErr != nil {
		return nil, s.redeemErr
	}
	return &models.Redemption{Voucher: models.Voucher{ID: voucherID}}, nil
}

func (s *stubLedgerService) History(_ context.Context, _ string, types []models.TransactionType, _, _ int) ([]models.RewardTransaction, error) {
	s.types = types
	return nil, nil
}

func (s *stubLedgerService) Reconcile(_ context.Context, citizenID string) (*models.Reconciliation, error) {
	return &models.Reconciliation{CitizenID: citizenID, Consistent: true}, nil
}

func (s *stubLedgerService) Statement(_ context.Context, _ string, format models.StatementFormat) (*service.LedgerStatement, error) {
	s.format = format
	return &service.LedgerStatement{Filename: "statement.csv", ContentType: "text/csv", Body: []byte("date,type\n")}, nil
}

func (s *stubLedgerService) ListVouchers(_ context.Context, _ models.VoucherCategory) ([]models.Voucher, error) {
	return nil, nil
}

func (s *stubLedgerService) CreateVoucher(_ context.Context, _ string, req models.CreateVoucherRequest, _, _ string) (*models.Voucher, error) {
	return &models.Voucher{ID: "v-1", Title: req.Title}, nil
}

type stubStatsService struct{ limit int }

func (s *stubStatsService) Citizen(_ context.Context, _ string) (*models.CitizenStats, error) {
	return &models.CitizenStats{}, nil
}

func (s *stubStatsService) Municipal(_ context.Context, _ string) (*models.MunicipalStats, error) {
	return &models.MunicipalStats{}, nil
}

func (s *stubStatsService) Global(_ context.Context) (*models.GlobalStats, error) {
	return &models.GlobalStats{}, nil
}

func (s *stubStatsService) Leaderboard(_ context.Context, limit int) ([]models.LeaderboardEntry, error) {
	s.limit = limit
	return nil, nil
}

type stubZoneService struct{}

func (stubZoneService) List(context.Context) ([]models.Zone, error) { return nil, nil }

func (stubZoneService) ListMine(context.Context, string, models.UserRole) ([]models.Zone, error) {
	return nil, nil
}

func (stubZoneService) Adopt(_ context.Context, zoneID, citizenID, _, _ string) (*models.Zone, error) {
	return &models.Zone{ID: zoneID, AdoptedByCitizenID: &citizenID}, nil
}

func (stubZoneService) Create(_ context.Context, _ string, req models.CreateZoneRequest, _, _ string) (*models.Zone, error) {
	return &models.Zone{ID: "z-1", Name: req.Name}, nil
}

func (stubZoneService) Assign(_ context.Context, _, zoneID string, req models.AssignZoneRequest, _, _ string) (*models.Zone, error) {
	return &models.Zone{ID: zoneID, AssignedMunicipalID: &req.WorkerID}, nil
}

type stubChallengeService struct{}

func (stubChallengeService) ListActive(context.Context, models.ChallengeType) ([]models.Challenge, error) {
	return nil, nil
}

func (stubChallengeService) Join(_ context.Context, id, _, _, _ string) (*models.Challenge, error) {
	return &models.Challenge{ID: id, CurrentParticipants: 1}, nil
}

func (stubChallengeService) Create(_ context.Context, _ string, req models.CreateChallengeRequest, _, _ string) (*models.Challenge, error) {
	return &models.Challenge{ID: "c-1", Title: req.Title}, nil
}

type stubUserService struct{ approved string }

func (s *stubUserService) List(context.Context, models.UserFilter) ([]models.User, *models.Pagination, error) {
	return []models.User{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (s *stubUserService) ListPendingWorkers(context.Context) ([]models.PendingWorker, error) {
	return nil, nil
}

func (s *stubUserService) ApproveWorker(_ context.Context, _, workerID, _, _ string) error {
	s.approved = workerID
	return nil
}

type stubUploadService struct {
	stored []byte
	path   string
}

func (s *stubUploadService) Store(_ context.Context, _ string, r io.Reader) (*models.Upload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.stored = data
	return &models.Upload{ImageRef: "ref-1", Size: int64(len(data))}, nil
}

func (s *stubUploadService) Open(_ context.Context, _ string) (*os.File, string, error) {
	f, err := os.Open(s.path)
	return f, "photo.png", err
}

func allHandlers() (Handlers, *stubSubmissionService) {
	subs := &stubSubmissionService{}
	return Handlers{
		Auth:        NewAuthHandler(&stubAuthService{}),
		Users:       NewUserHandler(&stubUserService{}),
		Submissions: NewSubmissionHandler(subs),
		Uploads:     NewUploadHandler(&stubUploadService{}, 1<<20),
		Rewards:     NewRewardHandler(&stubLedgerService{}),
		Stats:       NewStatsHandler(&stubStatsService{}),
		Zones:       NewZoneHandler(stubZoneService{}),
		Challenges:  NewChallengeHandler(stubChallengeService{}),
	}, subs
}
