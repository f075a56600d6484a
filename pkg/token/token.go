package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the resume-token lifetime used when no override is configured.
const DefaultTTL = 168 * time.Hour

var ErrInvalidToken = errors.New("invalid or expired resume token")

// Claims binds a resume token to one lead within one published quiz version.
type Claims struct {
	LeadID      string `json:"lead_id"`
	QuizID      string `json:"quiz_id"`
	VersionID   string `json:"version_id"`
	WorkspaceID string `json:"workspace_id"`
	jwt.RegisteredClaims
}

func Mint(leadID, quizID, versionID, workspaceID, secret string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = DefaultTTL
	}

	claims := &Claims{
		LeadID:      leadID,
		QuizID:      quizID,
		VersionID:   versionID,
		WorkspaceID: workspaceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign resume token: %w", err)
	}

	return signed, nil
}

func Validate(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims, ok := tok.Claims.(*Claims); ok && tok.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
