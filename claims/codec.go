package claims

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/giantswarm/jwt-oidc/keys"
)

// ErrWrongKind is returned when a credential verifies but was issued for a
// different purpose than the one it is presented for.
var ErrWrongKind = errors.New("credential has the wrong token_use")

// atHashLength is the number of base64url characters kept in at_hash.
const atHashLength = 32

// Signer produces and checks compact JWS credentials. *keys.Manager
// implements it.
type Signer interface {
	Sign(headers map[jose.HeaderKey]any, claims ...any) (string, error)
	Verify(token string, exp keys.Expectation, dest ...any) error
}

type tokenUse struct {
	Use Kind `json:"token_use,omitempty"`
}

// Codec encodes claim sets into credentials and back.
type Codec struct {
	signer Signer
	issuer string
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithClock sets the time source used for iat, exp and verification.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec creates a Codec that stamps issuer into credentials lacking one.
func NewCodec(signer Signer, issuer string, opts ...CodecOption) *Codec {
	c := &Codec{
		signer: signer,
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issuer returns the default issuer.
func (c *Codec) Issuer() string {
	return c.issuer
}

// Encode signs set together with the registered claims std. It sets iss
// (when empty), iat, exp = iat + ttl and, for every kind but ID tokens, a
// random jti and the token_use tag.
func (c *Codec) Encode(set Set, std jwt.Claims, ttl time.Duration) (string, error) {
	if set == nil {
		return "", fmt.Errorf("claim set is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("credential lifetime must be positive, got %s", ttl)
	}

	kind := set.Kind()
	now := c.now()
	if std.Issuer == "" {
		std.Issuer = c.issuer
	}
	std.IssuedAt = jwt.NewNumericDate(now)
	std.Expiry = jwt.NewNumericDate(now.Add(ttl))

	if kind != KindID && std.ID == "" {
		std.ID = uuid.NewString()
	}

	payload := []any{std, set}
	if kind != KindID {
		payload = append(payload, tokenUse{Use: kind})
	}

	token, err := c.signer.Sign(map[jose.HeaderKey]any{jose.HeaderType: HeaderType(kind)}, payload...)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s credential: %w", kind, err)
	}
	return token, nil
}

// Decode verifies token against exp, decodes its payload into set and
// checks that it was issued as set's kind.
func (c *Codec) Decode(token string, exp keys.Expectation, set Set) (*jwt.Claims, error) {
	if set == nil {
		return nil, fmt.Errorf("claim set is required")
	}
	if exp.Time.IsZero() {
		exp.Time = c.now()
	}

	var (
		std jwt.Claims
		use tokenUse
	)
	if err := c.signer.Verify(token, exp, &std, set, &use); err != nil {
		return nil, err
	}

	want := set.Kind()
	if want == KindID {
		want = ""
	}
	if use.Use != want {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongKind, use.Use, set.Kind())
	}
	return &std, nil
}

// Decode is the typed form of Codec.Decode.
func Decode[T any, PT interface {
	*T
	Set
}](c *Codec, token string, exp keys.Expectation) (*jwt.Claims, *T, error) {
	out := PT(new(T))
	std, err := c.Decode(token, exp, out)
	if err != nil {
		return nil, nil, err
	}
	return std, (*T)(out), nil
}

// HeaderType returns the typ header used for kind. Authorization codes keep
// the at+jwt type the deployed clients already see.
func HeaderType(kind Kind) string {
	if kind == KindCode {
		return "at+jwt"
	}
	return "JWT"
}

// AccessTokenHash computes the at_hash binding of an ID token to its
// access token: the base64url SHA-256 digest of the token, truncated.
func AccessTokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:atHashLength]
}
