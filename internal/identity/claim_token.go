package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claimClaims is the payload of a name_claim_token: proof that the caller
// is entitled to attempt adopting the unclaimed identity carrying this
// display name.
type claimClaims struct {
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// IssueNameClaimToken signs a short-lived token binding a display name to
// the bearer, per §4.2's resolve() mode 3.
func IssueNameClaimToken(secret []byte, displayName string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := claimClaims{
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyNameClaimToken checks the token's signature and expiry and returns
// the display name it claims.
func VerifyNameClaimToken(secret []byte, tokenString string) (string, error) {
	claims := &claimClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid name_claim_token: %w", err)
	}
	return claims.DisplayName, nil
}
