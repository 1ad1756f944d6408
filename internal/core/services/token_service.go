package services

import (
	"errors"
	"sync"
	"time"

	"confline/internal/core/domain"
	"confline/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrWrongCaller  = errors.New("token was issued for another user")
)

// Claims identify the local user towards the directory store and the control API.
type Claims struct {
	UserID      domain.UserID `json:"user_id"`
	DisplayName string        `json:"display_name"`
	jwt.RegisteredClaims
}

// TokenService issues and checks HS256 identity tokens. Issued tokens are
// cached and reused until they are within a minute of expiry.
type TokenService struct {
	secret []byte
	ttl    time.Duration

	mu        sync.Mutex
	cached    string
	cachedFor domain.UserID
	expiresAt time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func (s *TokenService) Issue(identity domain.Identity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := utils.Now()
	if s.cached != "" && s.cachedFor == identity.UserID && now.Add(time.Minute).Before(s.expiresAt) {
		return s.cached, nil
	}

	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	s.cached, s.cachedFor, s.expiresAt = token, identity.UserID, expiresAt
	return token, nil
}

func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(utils.Now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// ValidateFor is Validate plus a check that the token belongs to user.
func (s *TokenService) ValidateFor(tokenString string, user domain.UserID) (*Claims, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.UserID != user {
		return nil, ErrWrongCaller
	}
	return claims, nil
}
