package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trash2cash/trash2cash-api/internal/models"
	"github.com/trash2cash/trash2cash-api/pkg/crypto"
)

// ErrSessionNotFound is returned when a session expired out of Redis or never existed.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository stores sealed session records in Redis. The key TTL follows the inactivity window.
type SessionRepository struct {
	client *redis.Client
	sealer *crypto.Sealer
	prefix string
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(client *redis.Client, sealer *crypto.Sealer, prefix string) *SessionRepository {
	if prefix == "" {
		prefix = "session:"
	}
	return &SessionRepository{client: client, sealer: sealer, prefix: prefix}
}

// Save writes the session with the given TTL.
func (r *SessionRepository) Save(ctx context.Context, session *models.Session, ttl time.Duration) error {
	payload, err := r.encode(session)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Touch rewrites a live session and restarts its TTL. The write only lands if the key still exists,
// so a session deleted by a concurrent logout stays deleted and ErrSessionNotFound is returned.
func (r *SessionRepository) Touch(ctx context.Context, session *models.Session, ttl time.Duration) error {
	payload, err := r.encode(session)
	if err != nil {
		return err
	}
	updated, err := r.client.SetXX(ctx, r.key(session.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis touch session: %w", err)
	}
	if !updated {
		return ErrSessionNotFound
	}
	return nil
}

// Get loads and unseals a session.
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	return r.decode(id, raw)
}

// Delete removes a session. Missing sessions are not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) key(id string) string {
	return r.prefix + id
}

func (r *SessionRepository) encode(session *models.Session) ([]byte, error) {
	plain, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	sealed, err := r.sealer.Seal(plain, []byte(session.ID))
	if err != nil {
		return nil, fmt.Errorf("seal session: %w", err)
	}
	return sealed, nil
}

func (r *SessionRepository) decode(id string, raw []byte) (*models.Session, error) {
	plain, err := r.sealer.Open(raw, []byte(id))
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(plain, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}
