// Package security issues and validates the gateway's access tokens.
package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, expired or signed by another key.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims are the claims of a gateway access token. Subject is the brokerage client id and
// Scope names the session store scope holding the bootstrap result.
type AccessClaims struct {
	jwt.RegisteredClaims
	Scope     string `json:"scope"`
	TradingID string `json:"trading_id,omitempty"`
}

// Principal is the validated identity behind a request.
type Principal struct {
	Scope     string
	ClientID  string
	TradingID string
	TokenID   string
	ExpiresAt time.Time
}

// TokenProvider issues and validates RS256 or ES256 access tokens.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	nowF       func() time.Time
}

// NewTokenProvider returns a TokenProvider signing with privateKey.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// Issue signs an access token for scope. Returns the token and its expiry.
func (p *TokenProvider) Issue(scope, clientID, tradingID string) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.nowF()
	expiresAt := now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   clientID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Scope:     scope,
		TradingID: tradingID,
	}
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, ErrInvalidToken
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate checks signature, expiry, issuer and audience and returns the principal.
func (p *TokenProvider) Validate(tokenString string) (Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithTimeFunc(p.nowF), jwt.WithIssuer(p.issuer))
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Scope == "" {
		return Principal{}, ErrInvalidToken
	}
	if !slices.Contains(claims.Audience, p.audience) {
		return Principal{}, ErrInvalidToken
	}
	pr := Principal{
		Scope:     claims.Scope,
		ClientID:  claims.Subject,
		TradingID: claims.TradingID,
		TokenID:   claims.ID,
	}
	if claims.ExpiresAt != nil {
		pr.ExpiresAt = claims.ExpiresAt.Time
	}
	return pr, nil
}

// Fingerprint returns a short SHA-256 digest of s for logs that must not carry the raw value.
func Fingerprint(s string) string {
	if s == "" {
		return ""
	}
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:6])
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
