package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidKey is returned when PEM or key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

// LoadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
// Inline PEM passed through a single-line env var may carry literal "\n" sequences; they are expanded.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded private key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// ParsePublicKey parses a PEM-encoded public key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// KeyAlg returns "RS256" for RSA and "ES256" for ECDSA; empty otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		return "ES256"
	default:
		return ""
	}
}

// SigningKeys pairs a JWT signing method with the keys used to sign and verify.
type SigningKeys struct {
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
}

// Alg returns the JWT "alg" header value, e.g. "HS256".
func (k *SigningKeys) Alg() string {
	return k.method.Alg()
}

// NewHMACKeys returns HS256 keys for the shared secret.
func NewHMACKeys(secret []byte) (*SigningKeys, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidKey
	}
	return &SigningKeys{method: jwt.SigningMethodHS256, signKey: secret, verifyKey: secret}, nil
}

// NewAsymmetricKeys returns RS256 or ES256 keys depending on the public key type.
// The private key must match the public key type.
func NewAsymmetricKeys(priv crypto.Signer, pub crypto.PublicKey) (*SigningKeys, error) {
	if priv == nil || pub == nil {
		return nil, ErrInvalidKey
	}
	var method jwt.SigningMethod
	switch KeyAlg(pub) {
	case "RS256":
		if _, ok := priv.Public().(*rsa.PublicKey); !ok {
			return nil, ErrInvalidKey
		}
		method = jwt.SigningMethodRS256
	case "ES256":
		if _, ok := priv.Public().(*ecdsa.PublicKey); !ok {
			return nil, ErrInvalidKey
		}
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	return &SigningKeys{method: method, signKey: priv, verifyKey: pub}, nil
}

// LoadSigningKeys builds SigningKeys from configuration values. alg is HS256, RS256 or ES256;
// secret is used for HS256, privatePEM/publicPEM (inline PEM or file path) for the others.
func LoadSigningKeys(alg, secret, privatePEM, publicPEM string) (*SigningKeys, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return NewHMACKeys([]byte(secret))
	case "RS256", "ES256":
		priv, err := ParsePrivateKey(privatePEM)
		if err != nil {
			return nil, err
		}
		pub, err := ParsePublicKey(publicPEM)
		if err != nil {
			return nil, err
		}
		keys, err := NewAsymmetricKeys(priv, pub)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(keys.Alg(), alg) {
			return nil, ErrInvalidKey
		}
		return keys, nil
	default:
		return nil, ErrInvalidKey
	}
}
