package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trash2cash/trash2cash-api/internal/models"
	appErrors "github.com/trash2cash/trash2cash-api/pkg/errors"
	"github.com/trash2cash/trash2cash-api/pkg/storage"
)

const sniffBytes = 3072

type photoStorage interface {
	SaveStream(name string, r io.Reader, maxBytes int64) (int64, error)
	Open(name string) (*os.File, error)
}

// UploadConfig limits accepted photos.
type UploadConfig struct {
	MaxBytes     int64
	AllowedMIMEs []string
	URLPrefix    string
}

// UploadService stores submission photos and hands out signed read URLs.
type UploadService struct {
	storage photoStorage
	signer  *storage.SignedURLSigner
	cfg     UploadConfig
	allowed map[string]bool
	logger  *zap.Logger
}

// NewUploadService constructs the upload service.
func NewUploadService(store photoStorage, signer *storage.SignedURLSigner, cfg UploadConfig, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 8 << 20
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"image/jpeg", "image/png", "image/webp"}
	}
	allowed := make(map[string]bool, len(cfg.AllowedMIMEs))
	for _, m := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(m)] = true
	}
	return &UploadService{storage: store, signer: signer, cfg: cfg, allowed: allowed, logger: logger}
}

// Store sniffs the content type, writes the photo under the citizen's directory and returns its reference.
func (s *UploadService) Store(ctx context.Context, citizenID string, r io.Reader) (*models.Upload, error) {
	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	head = head[:n]
	if n == 0 {
		return nil, fieldError("file", "is required")
	}

	detected := mimetype.Detect(head)
	if !s.allowed[detected.String()] {
		return nil, fieldError("file", "unsupported content type "+detected.String())
	}

	imageRef := uuid.NewString()
	relPath := path.Join(citizenID, imageRef+detected.Extension())
	size, err := s.storage.SaveStream(relPath, io.MultiReader(bytes.NewReader(head), r), s.cfg.MaxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, "photo exceeds the upload limit")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}

	token, expires, err := s.signer.Generate(imageRef, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign upload url")
	}
	s.logger.Debug("photo stored", zap.String("image_ref", imageRef), zap.Int64("size", size), zap.String("mime", detected.String()))
	return &models.Upload{
		ImageRef:  imageRef,
		URL:       strings.TrimRight(s.cfg.URLPrefix, "/") + "/uploads/" + token,
		ExpiresAt: expires.Unix(),
		Size:      size,
		MIMEType:  detected.String(),
	}, nil
}

// Open resolves a signed token to the stored photo.
func (s *UploadService) Open(ctx context.Context, token string) (*os.File, string, error) {
	_, relPath, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "photo not found")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "photo not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open photo")
	}
	return file, path.Base(relPath), nil
}
