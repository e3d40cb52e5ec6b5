package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed claim set carried by every GeoScout token.
// Subject is the identity's display id, RecordID the store-assigned id of
// its record, and TokenID the unique id checked against the allow-list.
type Claims struct {
	TokenID  string `json:"jwtId"`
	RecordID string `json:"oid"`
	jwt.RegisteredClaims
}

// Policy describes one class of token. App tokens and the two exchange-token
// kinds differ only in audience, signing method, and lifetime; mixing
// policies fails verification on the audience check.
type Policy struct {
	Audience string
	Issuer   string
	Method   jwt.SigningMethod
	MaxAge   time.Duration
}

// Policies holds the three token policies derived from the deployment domain.
type Policies struct {
	App    Policy // long-lived bearer token presented by the web app
	QR     Policy // short-lived hand-off token for adding a device by QR code
	Backup Policy // long-lived hand-off token stored in a backup file
}

// NewPolicies builds the policy set for a domain. The issuer is always
// "api.<domain>"; each policy gets its own subdomain audience.
func NewPolicies(domain string, appAge, qrAge, backupAge time.Duration) Policies {
	issuer := "api." + domain
	return Policies{
		App:    Policy{Audience: "www." + domain, Issuer: issuer, Method: jwt.SigningMethodHS384, MaxAge: appAge},
		QR:     Policy{Audience: "qr." + domain, Issuer: issuer, Method: jwt.SigningMethodHS256, MaxAge: qrAge},
		Backup: Policy{Audience: "backup." + domain, Issuer: issuer, Method: jwt.SigningMethodHS512, MaxAge: backupAge},
	}
}

// Codec signs and verifies tokens with a server-held secret.
type Codec struct {
	secret   []byte
	policies Policies
}

// NewCodec creates a token codec.
func NewCodec(secret []byte, policies Policies) *Codec {
	return &Codec{secret: secret, policies: policies}
}

// Policies returns the codec's policy set.
func (c *Codec) Policies() Policies {
	return c.policies
}

// Issue mints a signed token for subject/recordID/tokenID under the given
// policy. Expiry is issuedAt + policy.MaxAge.
func (c *Codec) Issue(subject, recordID, tokenID string, p Policy) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenID:  tokenID,
		RecordID: recordID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    p.Issuer,
			Audience:  jwt.ClaimStrings{p.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.MaxAge)),
		},
	}
	token := jwt.NewWithClaims(p.Method, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and validates signature, signing method, issuer,
// audience, expiry, and max age against the policy. It does NOT check
// allow-list membership; that requires a record-store lookup and is the
// caller's job.
func (c *Codec) Verify(tokenString string, p Policy) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != p.Method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithAudience(p.Audience),
		jwt.WithIssuer(p.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.IssuedAt == nil || time.Since(claims.IssuedAt.Time) > p.MaxAge {
		return nil, fmt.Errorf("%w: token exceeds max age", ErrInvalidToken)
	}
	if claims.TokenID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing claims", ErrInvalidToken)
	}
	return claims, nil
}

// PeekAudience extracts the audience from a token without verifying it.
// Used to pick the matching exchange policy before a real Verify call;
// never a substitute for verification.
func (c *Codec) PeekAudience(tokenString string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if len(claims.Audience) == 0 {
		return "", fmt.Errorf("%w: missing audience", ErrInvalidToken)
	}
	return claims.Audience[0], nil
}
