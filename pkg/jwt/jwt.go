package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// ClaimReceiptClaims is embedded in the short-lived JWT a reward claim
// returns to the caller so it can later prove, without re-querying the run
// store, that a particular reference was paid out.
type ClaimReceiptClaims struct {
	OfferSlug string `json:"offerSlug"`
	Reference string `json:"reference"`
	Wallet    string `json:"wallet"`
	Signature string `json:"signature"`
	Amount    string `json:"amount"`
	jwt.RegisteredClaims
}

// ClaimSigner issues and validates claim-receipt tokens. It mirrors the
// shape of a conventional access-token service (one secret, one expiry) but
// only ever mints this one receipt claim type.
type ClaimSigner struct {
	secret []byte
	expiry time.Duration
}

var signJWTToken = func(token *jwt.Token, secret []byte) (string, error) {
	return token.SignedString(secret)
}

// NewClaimSigner creates a claim-receipt signer.
func NewClaimSigner(secret string, expiry time.Duration) *ClaimSigner {
	return &ClaimSigner{secret: []byte(secret), expiry: expiry}
}

// IssueReceipt mints a signed receipt for a settled reward claim.
func (s *ClaimSigner) IssueReceipt(offerSlug, reference, wallet, signature, amount string) (string, error) {
	now := time.Now()
	claims := &ClaimReceiptClaims{
		OfferSlug: offerSlug,
		Reference: reference,
		Wallet:    wallet,
		Signature: signature,
		Amount:    amount,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return signJWTToken(token, s.secret)
}

// ValidateReceipt parses and verifies a claim-receipt token.
func (s *ClaimSigner) ValidateReceipt(tokenString string) (*ClaimReceiptClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ClaimReceiptClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*ClaimReceiptClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
