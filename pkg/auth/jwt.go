package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles carried in access tokens.
const (
	RoleClinician = "clinician"
	RolePatient   = "patient"
	RoleAdmin     = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identify the caller. Identity management lives elsewhere; the engine
// only verifies the signature and reads the subject and role.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Subject returns the parsed user id.
func (c *Claims) Subject() (uuid.UUID, error) {
	return uuid.Parse(c.UserID)
}

type JWTService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTService(secret, issuer string) *JWTService {
	return &JWTService{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// GenerateAccessToken signs an HS256 token. Used by alertctl and tests.
func (s *JWTService) GenerateAccessToken(userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.Subject(); err != nil {
		return nil, fmt.Errorf("%w: malformed user_id", ErrInvalidToken)
	}
	return claims, nil
}
