// Package auth resolves bearer tokens to user ids.
package auth

import (
	"errors"
	"regexp"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/dharsanguruparan/ReceiptDrop/internal/config"
)

var ErrUnauthorized = errors.New("unauthorized")

var rawTokenRe = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,128}$`)

type Claims struct {
	UserID string `json:"user_id"`
	jwtlib.RegisteredClaims
}

// Service issues and verifies HS256 tokens. With AllowRawToken a bearer
// value that is not a JWT is taken as the user id itself.
type Service struct {
	secret   []byte
	ttl      time.Duration
	allowRaw bool
}

func New(cfg config.AuthConfig) *Service {
	return &Service{
		secret:   []byte(cfg.JWTSecret),
		ttl:      cfg.TokenTTL,
		allowRaw: cfg.AllowRawToken,
	}
}

func (s *Service) GenerateToken(userID string) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Authenticate returns the user id for token.
func (s *Service) Authenticate(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}
	if looksLikeJWT(token) {
		if len(s.secret) == 0 {
			return "", ErrUnauthorized
		}
		return s.validate(token)
	}
	if s.allowRaw && rawTokenRe.MatchString(token) {
		return token, nil
	}
	return "", ErrUnauthorized
}

func (s *Service) validate(tokenStr string) (string, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (any, error) {
		return s.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return "", ErrUnauthorized
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", ErrUnauthorized
	}
	return userID, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2 && strings.HasPrefix(token, "eyJ")
}
