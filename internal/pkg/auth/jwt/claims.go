package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the claims of a resume token.
// A resume token proves that its holder registered Name earlier and lets a replacing
// connection take the name over while the old connection still looks alive.
type Payload struct {
	// StandardClaims embeds Exp (Expiration), Iat (Issued At), and Iss (Issuer).
	jwt.StandardClaims `json:"standard_claims"`

	// Name is the display name the token was issued for.
	Name string `json:"name"`
}
