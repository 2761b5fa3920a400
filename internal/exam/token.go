package exam

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AccessToken gates attempt starts on proctored exams. The plaintext is
// returned exactly once at generation; only the bcrypt hash is stored.
type AccessToken struct {
	ExamID    string    `json:"exam_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const defaultTokenTTLMinutes = 120

// GenerateAccessToken mints (or replaces) the proctoring token for an exam.
// Only the exam owner may generate one.
func (s *Service) GenerateAccessToken(ctx context.Context, examID, requesterID string, ttlMinutes int) (*AccessToken, error) {
	ex, err := s.loadExamHeader(ctx, s.db, examID)
	if err != nil {
		return nil, err
	}
	if ex.OwnerID != requesterID {
		return nil, ErrForbidden
	}
	if ttlMinutes <= 0 {
		ttlMinutes = defaultTokenTTLMinutes
	}

	raw := make([]byte, 4)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	plain := strings.ToUpper(hex.EncodeToString(raw))

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash token: %w", err)
	}

	expiresAt := s.nowFn().UTC().Add(time.Duration(ttlMinutes) * time.Minute).Truncate(time.Second)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exam_access_tokens (exam_id, token_hash, generated_by, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (exam_id)
		DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			generated_by = EXCLUDED.generated_by,
			expires_at = EXCLUDED.expires_at
	`, examID, string(hash), requesterID, expiresAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	return &AccessToken{ExamID: examID, Token: plain, ExpiresAt: expiresAt}, nil
}

func (s *Service) verifyAccessToken(ctx context.Context, examID, token string, now time.Time) error {
	if strings.TrimSpace(token) == "" {
		return ErrTokenRequired
	}

	var (
		hash      string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token_hash, expires_at FROM exam_access_tokens WHERE exam_id = $1
	`, examID).Scan(&hash, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("load token: %w", err)
	}
	if now.Unix() > expiresAt {
		return ErrTokenExpired
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.ToUpper(strings.TrimSpace(token)))) != nil {
		return ErrTokenInvalid
	}
	return nil
}
