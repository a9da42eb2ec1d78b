package authflow

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what the sign-in flow reads from a federated identity token.
type Identity struct {
	Email   string
	Name    string
	Picture string
}

type identityClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// DecodeIdentity reads the payload of an identity token. The signature is
// not checked here; the backend verifies the credential on social login.
func DecodeIdentity(credential string) (Identity, error) {
	var claims identityClaims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(credential), &claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	email := strings.TrimSpace(claims.Email)
	if email == "" {
		return Identity{}, fmt.Errorf("%w: no email claim", ErrMalformedToken)
	}
	return Identity{Email: email, Name: claims.Name, Picture: claims.Picture}, nil
}
