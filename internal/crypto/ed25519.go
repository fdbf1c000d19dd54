package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidKey   = errors.New("invalid Ed25519 signing key")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the signed payload of a bearer token.
type Claims struct {
	Subject   string `json:"sub"` // username, the identity messages are sent as
	UserID    string `json:"uid"`
	ExpiresAt int64  `json:"exp"` // unix seconds
}

// GenerateSeed returns a new base64-encoded Ed25519 seed.
func GenerateSeed() (string, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(priv.Seed()), nil
}

// ParseSeed decodes a base64-encoded Ed25519 seed into a private key.
func ParseSeed(seedB64 string) (ed25519.PrivateKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(seedB64))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding", ErrInvalidKey)
	}

	if len(decoded) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidKey, ed25519.SeedSize, len(decoded))
	}

	return ed25519.NewKeyFromSeed(decoded), nil
}

// TokenSigner issues and verifies bearer tokens of the form
// base64url(payload).base64url(signature).
type TokenSigner struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	now  func() time.Time
}

// NewTokenSigner creates a signer. A nil key generates an ephemeral one,
// so tokens do not survive a restart.
func NewTokenSigner(priv ed25519.PrivateKey) (*TokenSigner, error) {
	if priv == nil {
		var err error
		if _, priv, err = ed25519.GenerateKey(rand.Reader); err != nil {
			return nil, err
		}
	}
	return &TokenSigner{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
		now:  time.Now,
	}, nil
}

// Issue signs a token for subject valid for ttl.
func (s *TokenSigner) Issue(subject, userID string, ttl time.Duration) (string, Claims, error) {
	claims := Claims{
		Subject:   subject,
		UserID:    userID,
		ExpiresAt: s.now().Add(ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", Claims{}, err
	}

	sig := ed25519.Sign(s.priv, payload)
	enc := base64.RawURLEncoding
	return enc.EncodeToString(payload) + "." + enc.EncodeToString(sig), claims, nil
}

// Verify checks the signature and expiry of a token.
func (s *TokenSigner) Verify(token string) (*Claims, error) {
	payloadB64, sigB64, ok := strings.Cut(token, ".")
	if !ok {
		return nil, fmt.Errorf("%w: malformed", ErrInvalidToken)
	}

	enc := base64.RawURLEncoding
	payload, err := enc.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid payload encoding", ErrInvalidToken)
	}
	sig, err := enc.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signature encoding", ErrInvalidToken)
	}

	if !ed25519.Verify(s.pub, payload, sig) {
		return nil, fmt.Errorf("%w: bad signature", ErrInvalidToken)
	}

	var claims Claims
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&claims); err != nil {
		return nil, fmt.Errorf("%w: invalid payload", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if s.now().Unix() >= claims.ExpiresAt {
		return nil, ErrTokenExpired
	}

	return &claims, nil
}
