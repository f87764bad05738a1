package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/internal/repository"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
)

type challengeStore interface {
	ListActive(ctx context.Context, challengeType models.ChallengeType, now time.Time) ([]models.Challenge, error)
	Create(ctx context.Context, challenge *models.Challenge) error
	Join(ctx context.Context, challengeID, citizenID string, at time.Time) (*models.Challenge, error)
}

// ChallengeService manages time-boxed collection goals.
type ChallengeService struct {
	repo     challengeStore
	cache    *CacheService
	audit    auditWriter
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewChallengeService constructs the challenge service.
func NewChallengeService(repo challengeStore, cache *CacheService, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *ChallengeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &ChallengeService{
		repo:     repo,
		cache:    cache,
		audit:    audit,
		validate: validate,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ListActive returns challenges that have not ended.
func (s *ChallengeService) ListActive(ctx context.Context, challengeType models.ChallengeType) ([]models.Challenge, error) {
	switch challengeType {
	case "", models.ChallengeIndividual, models.ChallengeGroup, models.ChallengeCommunity, models.ChallengeMunicipal:
	default:
		return nil, fieldError("type", "must be one of INDIVIDUAL GROUP COMMUNITY MUNICIPAL")
	}
	key := cacheKeyChallenges + "all"
	if challengeType != "" {
		key = cacheKeyChallenges + string(challengeType)
	}
	challenges, err := remember(ctx, s.cache, key, func(ctx context.Context) ([]models.Challenge, error) {
		list, err := s.repo.ListActive(ctx, challengeType, s.now())
		if list == nil {
			list = []models.Challenge{}
		}
		return list, err
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list challenges")
	}
	return challenges, nil
}

// Join enrols a citizen once, within the participant cap.
func (s *ChallengeService) Join(ctx context.Context, challengeID, citizenID, ip, userAgent string) (*models.Challenge, error) {
	challenge, err := s.repo.Join(ctx, challengeID, citizenID, s.now())
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "challenge not found")
		case errors.Is(err, repository.ErrChallengeClosed):
			return nil, appErrors.Clone(appErrors.ErrConflict, "challenge is not open")
		case errors.Is(err, repository.ErrChallengeFull):
			return nil, appErrors.Clone(appErrors.ErrConflict, "challenge is full")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "already joined")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join challenge")
	}
	s.cache.Invalidate(ctx, cachePatternChallenges)
	recordAudit(ctx, s.audit, s.logger, citizenID, models.AuditActionChallengeJoin, "challenge", challengeID, nil, ip, userAgent)
	return challenge, nil
}

// Create adds a challenge.
func (s *ChallengeService) Create(ctx context.Context, adminID string, req models.CreateChallengeRequest, ip, userAgent string) (*models.Challenge, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err, "invalid challenge")
	}
	challenge := &models.Challenge{
		Title:            req.Title,
		Description:      req.Description,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		TargetPoints:     req.TargetPoints,
		TargetWaste:      req.TargetWaste,
		RewardPoints:     req.RewardPoints,
		Type:             req.Type,
		IsActive:         true,
		OrganizationName: req.OrganizationName,
		SponsorName:      req.SponsorName,
		MaxParticipants:  req.MaxParticipants,
	}
	if challenge.MaxParticipants == 0 {
		challenge.MaxParticipants = models.UnlimitedParticipants
	}
	if err := s.repo.Create(ctx, challenge); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create challenge")
	}
	s.cache.Invalidate(ctx, cachePatternChallenges)
	recordAudit(ctx, s.audit, s.logger, adminID, models.AuditActionCatalogCreate, "challenge", challenge.ID, map[string]interface{}{"title": challenge.Title}, ip, userAgent)
	return challenge, nil
}
