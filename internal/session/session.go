// Package session issues and verifies HS256 session tokens. Tokens carry
// the user ID; each token's jti is tracked in redis so logout revokes it
// before expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"calorieai/internal/util"
)

const keyPrefix = "calorieai:session:"

// ErrInvalidToken covers malformed, expired and revoked tokens.
var ErrInvalidToken = errors.New("invalid session token")

// Store issues and verifies session tokens.
type Store struct {
	secret []byte
	ttl    time.Duration
	rdb    *redis.Client
}

// New builds a session store. secret signs tokens, redis tracks live jtis.
func New(secret string, ttl time.Duration, redisAddr, redisPassword string) (*Store, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session secret required")
	}
	if strings.TrimSpace(redisAddr) == "" {
		return nil, errors.New("redis addr required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPassword})
	return &Store{secret: []byte(secret), ttl: ttl, rdb: rdb}, nil
}

// NewSession issues a signed token bound to userID.
func (s *Store) NewSession(ctx context.Context, userID string) (string, error) {
	now := time.Now().UTC()
	jti := util.NewID()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+jti, userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("track session: %w", err)
	}
	return token, nil
}

// UserIDByToken verifies the signature and that the token is not revoked.
func (s *Store) UserIDByToken(ctx context.Context, token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	userID, err := s.rdb.Get(ctx, keyPrefix+claims.ID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("check session: %w", err)
	}
	if userID != claims.Subject {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// DeleteSession revokes the token immediately.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		// Already unusable; nothing to revoke.
		return nil
	}
	if err := s.rdb.Del(ctx, keyPrefix+claims.ID).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *Store) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Close releases the redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}
