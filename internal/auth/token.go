// ABOUTME: JWT minting and verification for contact and staff sessions
// ABOUTME: Uses HS256 signing with configurable secret; sub and role claims

package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenVerifier defines the interface for token verification.
type TokenVerifier interface {
	Verify(tokenString string) (*Identity, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs. The same
// instance mints tokens for the bootstrap and login flows.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify validates the token and builds an Identity from the "sub" and
// "role" claims. sub carries the contact or staff id as decimal text.
func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	subjectID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || subjectID <= 0 {
		return nil, fmt.Errorf("%w: malformed sub claim", ErrInvalidToken)
	}

	roleClaim, ok := claims["role"].(string)
	if !ok || roleClaim == "" {
		return nil, fmt.Errorf("%w: role", ErrMissingClaim)
	}

	switch Role(roleClaim) {
	case RoleContact:
		return &Identity{Role: RoleContact, ContactID: subjectID}, nil
	case RoleStaff:
		return &Identity{Role: RoleStaff, StaffID: subjectID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, roleClaim)
	}
}

// Generate creates a new JWT for the given identity with expiration.
func (v *JWTVerifier) Generate(id *Identity, expiresIn time.Duration) (string, error) {
	subjectID := id.ContactID
	if id.Role == RoleStaff {
		subjectID = id.StaffID
	}
	if subjectID <= 0 {
		return "", fmt.Errorf("%w: subject id must be positive", ErrInvalidToken)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(subjectID, 10),
		"role": string(id.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
