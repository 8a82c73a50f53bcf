package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
)

// Kind distinguishes access tokens from refresh tokens. It is carried in the "type" claim.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Valid reports whether k is a known token kind.
func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// IdentityClaims is the point-in-time snapshot of the user embedded in every token.
type IdentityClaims struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	Email    string `json:"email"`
}

// Claims holds the JWT claims for both token kinds.
type Claims struct {
	jwt.RegisteredClaims
	IdentityClaims
	Type Kind `json:"type"`
}

// UserID returns the subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// Remaining returns how long the token stays valid after now; zero once expired.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	d := c.ExpiresAt.Time.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IssuedToken is a signed token together with the metadata callers need for revocation.
type IssuedToken struct {
	Token     string
	JTI       string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenProvider signs and parses JWTs. It is stateless; revocation lives in the token service.
type TokenProvider struct {
	keys       *SigningKeys
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clock.Clock
}

// NewTokenProvider returns a TokenProvider that signs with keys. issuer and audience are set on
// every token and enforced on parse. clk may be nil (wall clock).
func NewTokenProvider(keys *SigningKeys, issuer, audience string, accessTTL, refreshTTL time.Duration, clk clock.Clock) *TokenProvider {
	if clk == nil {
		clk = clock.WallClock
	}
	return &TokenProvider{
		keys:       keys,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      clk,
	}
}

// TTL returns the configured lifetime for kind.
func (p *TokenProvider) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return p.refreshTTL
	}
	return p.accessTTL
}

// Now returns the provider's current time.
func (p *TokenProvider) Now() time.Time {
	return p.clock.Now()
}

// Issue signs a token of the given kind for subject with a fresh jti.
func (p *TokenProvider) Issue(kind Kind, subject string, identity IdentityClaims) (*IssuedToken, error) {
	if !kind.Valid() {
		return nil, errors.New("security: unknown token kind " + string(kind))
	}
	jti, err := generateJTI()
	if err != nil {
		return nil, err
	}
	now := jwt.NewNumericDate(p.clock.Now().UTC())
	exp := jwt.NewNumericDate(now.Time.Add(p.TTL(kind)))
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  now,
			NotBefore: now,
			ExpiresAt: exp,
		},
		IdentityClaims: identity,
		Type:           kind,
	}
	signed, err := jwt.NewWithClaims(p.keys.method, claims).SignedString(p.keys.signKey)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{
		Token:     signed,
		JTI:       jti,
		Kind:      kind,
		IssuedAt:  now.Time,
		ExpiresAt: exp.Time,
	}, nil
}

// Parse verifies signature, algorithm, issuer, audience and expiry. It returns
// autherr.ErrTokenExpired for an otherwise valid but expired token and autherr.ErrTokenMalformed
// for everything else. The kind is not checked here.
func (p *TokenProvider) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, autherr.ErrTokenMalformed
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{p.keys.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.clock.Now),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return p.keys.verifyKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, autherr.ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, autherr.ErrTokenExpired
		default:
			return nil, autherr.ErrTokenMalformed
		}
	}
	if !token.Valid || claims.Subject == "" || claims.ID == "" || !claims.Type.Valid() {
		return nil, autherr.ErrTokenMalformed
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
