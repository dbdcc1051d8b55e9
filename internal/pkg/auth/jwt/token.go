package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// ResumeExpiration defines how long a resume token may be used to reclaim a name.
	ResumeExpiration = 24 * time.Hour

	// TokenIssuer identifies the issuer of the token.
	TokenIssuer = "CallRelay-Server"
)

// GenerateToken creates and signs a new JWT Token string based on the provided Payload struct.
func GenerateToken(payload *Payload, secretKey string, duration time.Duration) (string, error) {
	now := time.Now()

	payload.StandardClaims = jwt.StandardClaims{
		ExpiresAt: now.Add(duration).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    TokenIssuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)

	return token.SignedString([]byte(secretKey))
}

// ParseToken parses and validates the JWT Token string using the provided secretKey.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	return claims, nil
}

// ResumeTokens issues and checks resume tokens with a single secret.
type ResumeTokens struct {
	Secret string
}

// Issue returns a signed resume token for name.
func (r ResumeTokens) Issue(name string) (string, error) {
	return GenerateToken(&Payload{Name: name}, r.Secret, ResumeExpiration)
}

// Verify reports whether token is a valid, unexpired resume token for name.
func (r ResumeTokens) Verify(name, token string) bool {
	if token == "" {
		return false
	}

	payload, err := ParseToken(token, r.Secret)
	if err != nil {
		return false
	}

	return payload.Name == name
}
