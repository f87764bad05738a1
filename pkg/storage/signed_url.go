package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid signed token")
	ErrTokenExpired = errors.New("signed token expired")
)

// SignedURLSigner creates and validates HMAC tokens granting temporary read access to a stored photo.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token binding imageRef to relPath until the signer TTL elapses.
func (s *SignedURLSigner) Generate(imageRef, relPath string) (string, time.Time, error) {
	if imageRef == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("image ref and path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	token := strings.Join([]string{imageRef, ts, encodedPath, s.sign(imageRef, ts, encodedPath)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the image ref and stored path it grants.
func (s *SignedURLSigner) Parse(token string) (imageRef, relPath string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", ErrInvalidToken
	}
	imageRef, ts, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(imageRef, ts, encodedPath)), []byte(signature)) {
		return "", "", ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	if s.now().After(time.Unix(expUnix, 0)) {
		return "", "", ErrTokenExpired
	}
	return imageRef, string(rawPath), nil
}

func (s *SignedURLSigner) sign(imageRef, ts, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(imageRef + "|" + ts + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
