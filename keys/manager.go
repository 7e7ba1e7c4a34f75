package keys

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const (
	// DefaultKeyID is the key identifier published in the JWKS and stamped
	// into every credential header.
	DefaultKeyID = "1"

	// DefaultClockSkew is the tolerance applied around exp, nbf and iat.
	DefaultClockSkew = 60 * time.Second

	// MinKeyBits is the smallest RSA modulus accepted for signing.
	MinKeyBits = 2048

	// Algorithm is the only signature algorithm produced or accepted.
	Algorithm = jose.RS256

	// KeyUse is the "use" member of the published JWK.
	KeyUse = "sig"
)

// Verification errors. They are distinct for logging and tests only.
var (
	ErrInvalidSignature = errors.New("invalid credential signature")
	ErrExpired          = errors.New("credential expired")
	ErrNotYetValid      = errors.New("credential not yet valid")
	ErrIssuerMismatch   = errors.New("credential issuer mismatch")
	ErrAudienceMismatch = errors.New("credential audience mismatch")
)

// Expectation describes the registered claims a credential must carry.
// Empty fields are not checked.
type Expectation struct {
	Issuer   string
	Audience string

	// Time is the validation instant. Zero means the manager's clock.
	Time time.Time
}

// Manager signs and verifies credentials with one RSA key.
type Manager struct {
	key   *rsa.PrivateKey
	keyID string
	skew  time.Duration
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithKeyID overrides the key identifier (default "1").
func WithKeyID(kid string) Option {
	return func(m *Manager) {
		if kid != "" {
			m.keyID = kid
		}
	}
}

// WithClockSkew overrides the verification leeway (default 60s).
func WithClockSkew(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.skew = d
		}
	}
}

// WithClock sets the time source used for verification.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a Manager for the given private key.
func New(key *rsa.PrivateKey, opts ...Option) (*Manager, error) {
	if key == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if bits := key.N.BitLen(); bits < MinKeyBits {
		return nil, fmt.Errorf("signing key is %d bits, at least %d required", bits, MinKeyBits)
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}

	m := &Manager{
		key:   key,
		keyID: DefaultKeyID,
		skew:  DefaultClockSkew,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// KeyID returns the key identifier.
func (m *Manager) KeyID() string {
	return m.keyID
}

// Algorithm returns the signature algorithm name.
func (m *Manager) Algorithm() string {
	return string(Algorithm)
}

// PublicKey returns the public half of the signing key.
func (m *Manager) PublicKey() *rsa.PublicKey {
	return &m.key.PublicKey
}

// PublicJWK returns the public key as a JWK with kty, use, alg and kid set.
func (m *Manager) PublicJWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       &m.key.PublicKey,
		KeyID:     m.keyID,
		Algorithm: string(Algorithm),
		Use:       KeyUse,
	}
}

// JWKS returns the key set published at the JWKS endpoint.
func (m *Manager) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{m.PublicJWK()}}
}

// Sign serializes the merged claims as a compact JWS. The header always
// carries alg and kid; headers adds or overrides members such as typ.
func (m *Manager) Sign(headers map[jose.HeaderKey]any, claims ...any) (string, error) {
	opts := (&jose.SignerOptions{}).WithHeader("kid", m.keyID)
	for k, v := range headers {
		opts = opts.WithHeader(k, v)
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: Algorithm, Key: m.key}, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	builder := jwt.Signed(signer)
	for _, c := range claims {
		builder = builder.Claims(c)
	}

	token, err := builder.Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}
	return token, nil
}

// Verify checks the credential's signature and registered claims and
// decodes its payload into each dest. Only RS256 under this manager's key id
// is accepted.
func (m *Manager) Verify(token string, exp Expectation, dest ...any) error {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{Algorithm})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(parsed.Headers) != 1 {
		return fmt.Errorf("%w: expected exactly one signature", ErrInvalidSignature)
	}
	if kid := parsed.Headers[0].KeyID; kid != "" && kid != m.keyID {
		return fmt.Errorf("%w: unknown key id %q", ErrInvalidSignature, kid)
	}

	var std jwt.Claims
	out := append([]any{&std}, dest...)
	if err := parsed.Claims(&m.key.PublicKey, out...); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	at := exp.Time
	if at.IsZero() {
		at = m.now()
	}

	expected := jwt.Expected{
		Issuer: exp.Issuer,
		Time:   at,
	}
	if exp.Audience != "" {
		expected.AnyAudience = jwt.Audience{exp.Audience}
	}

	return mapValidationError(std.ValidateWithLeeway(expected, m.skew))
}

func mapValidationError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrNotValidYet), errors.Is(err, jwt.ErrIssuedInTheFuture):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrInvalidIssuer):
		return ErrIssuerMismatch
	case errors.Is(err, jwt.ErrInvalidAudience):
		return ErrAudienceMismatch
	default:
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
}
