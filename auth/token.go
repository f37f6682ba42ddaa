package auth

import (
	"fmt"
	"krysselista/domain"
	"krysselista/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenDuration = 12 * time.Hour

// ViewerClaims defines the structure of the data stored inside the JWT.
// The registered subject claim holds the viewer id.
type ViewerClaims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies viewer bearer tokens with a shared HMAC key.
type Tokens struct {
	key      []byte
	issuer   string
	duration time.Duration
	now      func() time.Time
}

func NewTokens(signingKey, issuer string, duration time.Duration) *Tokens {
	if duration <= 0 {
		duration = defaultTokenDuration
	}
	return &Tokens{key: []byte(signingKey), issuer: issuer, duration: duration, now: time.Now}
}

// Issue creates a signed token identifying viewer.
func (t *Tokens) Issue(viewer domain.Viewer) (string, error) {
	if err := validateViewer(viewer); err != nil {
		return "", err
	}
	now := t.now()
	claims := &ViewerClaims{
		Name:  viewer.Name,
		Email: viewer.Email,
		Role:  string(viewer.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewer.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
		},
	}
	// HS256 (HMAC with SHA256)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// Parse checks signature, issuer and expiry and returns the viewer the token names.
func (t *Tokens) Parse(tokenString string) (domain.Viewer, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ViewerClaims{},
		func(token *jwt.Token) (interface{}, error) { return t.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return domain.Viewer{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*ViewerClaims)
	if !ok || !token.Valid {
		return domain.Viewer{}, errors.ErrInvalidToken
	}
	viewer := domain.Viewer{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  domain.Role(claims.Role),
	}
	if err := validateViewer(viewer); err != nil {
		return domain.Viewer{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	return viewer, nil
}
