package keys_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/jwt-oidc/internal/testutil"
	"github.com/giantswarm/jwt-oidc/keys"
)

func newManager(t *testing.T, clock *testutil.MockTime) *keys.Manager {
	t.Helper()
	m, err := keys.New(testutil.RSAKey(t), keys.WithClock(clock.Now))
	require.NoError(t, err)
	return m
}

func signStandard(t *testing.T, m *keys.Manager, std jwt.Claims, extra ...any) string {
	t.Helper()
	token, err := m.Sign(map[jose.HeaderKey]any{jose.HeaderType: "JWT"}, append([]any{std}, extra...)...)
	require.NoError(t, err)
	return token
}

func decodeHeader(t *testing.T, token string) map[string]any {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(strings.Split(token, ".")[0])
	require.NoError(t, err)
	var header map[string]any
	require.NoError(t, json.Unmarshal(raw, &header))
	return header
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil key", func(t *testing.T) {
		t.Parallel()
		_, err := keys.New(nil)
		require.Error(t, err)
	})

	t.Run("short key", func(t *testing.T) {
		t.Parallel()
		small, err := rsa.GenerateKey(rand.Reader, 1024)
		require.NoError(t, err)
		_, err = keys.New(small)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1024")
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		m, err := keys.New(testutil.RSAKey(t))
		require.NoError(t, err)
		assert.Equal(t, "1", m.KeyID())
		assert.Equal(t, "RS256", m.Algorithm())
		assert.Equal(t, &testutil.RSAKey(t).PublicKey, m.PublicKey())
	})

	t.Run("custom key id", func(t *testing.T) {
		t.Parallel()
		m, err := keys.New(testutil.RSAKey(t), keys.WithKeyID("rotation-2"))
		require.NoError(t, err)
		assert.Equal(t, "rotation-2", m.KeyID())
	})
}

func TestJWKSDocument(t *testing.T) {
	t.Parallel()

	m := newManager(t, testutil.NewMockTime(time.Now()))

	raw, err := json.Marshal(m.JWKS())
	require.NoError(t, err)

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Keys, 1)

	jwk := doc.Keys[0]
	assert.Equal(t, "RSA", jwk["kty"])
	assert.Equal(t, "sig", jwk["use"])
	assert.Equal(t, "RS256", jwk["alg"])
	assert.Equal(t, "1", jwk["kid"])
	assert.NotEmpty(t, jwk["n"])
	assert.Equal(t, "AQAB", jwk["e"])
	assert.NotContains(t, jwk, "d", "private exponent must never be published")
	assert.NotContains(t, jwk, "x5c")

	pub := m.PublicJWK()
	assert.True(t, pub.IsPublic())
	assert.True(t, pub.Valid())
}

func TestSignAndVerify(t *testing.T) {
	t.Parallel()

	clock := testutil.NewMockTime(time.Date(2025, 4, 9, 12, 0, 0, 0, time.UTC))
	m := newManager(t, clock)

	std := jwt.Claims{
		Issuer:   testutil.TestIssuer,
		Subject:  testutil.TestUserID,
		Audience: jwt.Audience{testutil.TestClientID},
		IssuedAt: jwt.NewNumericDate(clock.Now()),
		Expiry:   jwt.NewNumericDate(clock.Now().Add(10 * time.Minute)),
	}
	extra := map[string]any{"scope": "openid email"}
	token := signStandard(t, m, std, extra)

	header := decodeHeader(t, token)
	assert.Equal(t, "RS256", header["alg"])
	assert.Equal(t, "1", header["kid"])
	assert.Equal(t, "JWT", header["typ"])

	var got map[string]any
	err := m.Verify(token, keys.Expectation{Issuer: testutil.TestIssuer, Audience: testutil.TestClientID}, &got)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestUserID, got["sub"])
	assert.Equal(t, "openid email", got["scope"])
}

func TestVerifyFailures(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 4, 9, 12, 0, 0, 0, time.UTC)
	expect := keys.Expectation{Issuer: testutil.TestIssuer, Audience: testutil.TestClientID}

	validClaims := func() jwt.Claims {
		return jwt.Claims{
			Issuer:   testutil.TestIssuer,
			Subject:  testutil.TestUserID,
			Audience: jwt.Audience{testutil.TestClientID},
			IssuedAt: jwt.NewNumericDate(start),
			Expiry:   jwt.NewNumericDate(start.Add(10 * time.Minute)),
		}
	}

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   func(t *testing.T, m *keys.Manager) string
		advance time.Duration
		wantErr error
	}{
		{
			name:    "issuer mismatch",
			wantErr: keys.ErrIssuerMismatch,
			token: func(t *testing.T, m *keys.Manager) string {
				c := validClaims()
				c.Issuer = "https://evil.example"
				return signStandard(t, m, c)
			},
		},
		{
			name:    "audience mismatch",
			wantErr: keys.ErrAudienceMismatch,
			token: func(t *testing.T, m *keys.Manager) string {
				c := validClaims()
				c.Audience = jwt.Audience{"another-client"}
				return signStandard(t, m, c)
			},
		},
		{
			name:    "expired beyond skew",
			wantErr: keys.ErrExpired,
			advance: 10*time.Minute + 61*time.Second,
			token: func(t *testing.T, m *keys.Manager) string {
				return signStandard(t, m, validClaims())
			},
		},
		{
			name:    "issued in the future beyond skew",
			wantErr: keys.ErrNotYetValid,
			token: func(t *testing.T, m *keys.Manager) string {
				c := validClaims()
				c.IssuedAt = jwt.NewNumericDate(start.Add(5 * time.Minute))
				return signStandard(t, m, c)
			},
		},
		{
			name:    "tampered payload",
			wantErr: keys.ErrInvalidSignature,
			token: func(t *testing.T, m *keys.Manager) string {
				parts := strings.Split(signStandard(t, m, validClaims()), ".")
				forged, err := json.Marshal(map[string]any{"iss": testutil.TestIssuer, "sub": "admin", "aud": testutil.TestClientID})
				require.NoError(t, err)
				parts[1] = base64.RawURLEncoding.EncodeToString(forged)
				return strings.Join(parts, ".")
			},
		},
		{
			name:    "signed by another key",
			wantErr: keys.ErrInvalidSignature,
			token: func(t *testing.T, _ *keys.Manager) string {
				other, err := keys.New(otherKey)
				require.NoError(t, err)
				return signStandard(t, other, validClaims())
			},
		},
		{
			name:    "foreign key id",
			wantErr: keys.ErrInvalidSignature,
			token: func(t *testing.T, _ *keys.Manager) string {
				other, err := keys.New(testutil.RSAKey(t), keys.WithKeyID("2"))
				require.NoError(t, err)
				return signStandard(t, other, validClaims())
			},
		},
		{
			name:    "algorithm substitution with HS256",
			wantErr: keys.ErrInvalidSignature,
			token: func(t *testing.T, m *keys.Manager) string {
				secret := x509.MarshalPKCS1PublicKey(m.PublicKey())
				signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret},
					(&jose.SignerOptions{}).WithHeader("kid", "1"))
				require.NoError(t, err)
				token, err := jwt.Signed(signer).Claims(validClaims()).Serialize()
				require.NoError(t, err)
				return token
			},
		},
		{
			name:    "garbage",
			wantErr: keys.ErrInvalidSignature,
			token: func(*testing.T, *keys.Manager) string {
				return "not-a-jwt"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clock := testutil.NewMockTime(start)
			m := newManager(t, clock)
			token := tt.token(t, m)
			clock.Advance(tt.advance)

			err := m.Verify(token, expect)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifyClockSkew(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 4, 9, 12, 0, 0, 0, time.UTC)
	clock := testutil.NewMockTime(start)
	m := newManager(t, clock)

	token := signStandard(t, m, jwt.Claims{
		Issuer:   testutil.TestIssuer,
		IssuedAt: jwt.NewNumericDate(start),
		Expiry:   jwt.NewNumericDate(start.Add(time.Minute)),
	})

	clock.Advance(time.Minute + 59*time.Second)
	require.NoError(t, m.Verify(token, keys.Expectation{Issuer: testutil.TestIssuer}))

	clock.Advance(2 * time.Second)
	assert.ErrorIs(t, m.Verify(token, keys.Expectation{Issuer: testutil.TestIssuer}), keys.ErrExpired)

	// An explicit validation time overrides the clock.
	require.NoError(t, m.Verify(token, keys.Expectation{Time: start}))
}

func TestVerifyWithoutIssuerOrAudience(t *testing.T) {
	t.Parallel()

	clock := testutil.NewMockTime(time.Now())
	m := newManager(t, clock)
	token := signStandard(t, m, jwt.Claims{
		Issuer:   "https://somewhere-else.example",
		Audience: jwt.Audience{"a", "b"},
		Expiry:   jwt.NewNumericDate(clock.Now().Add(time.Hour)),
	})

	require.NoError(t, m.Verify(token, keys.Expectation{}))
}

func TestLoadPEM(t *testing.T) {
	t.Parallel()

	key := testutil.RSAKey(t)

	pkcs8, err := keys.EncodePrivateKey(key)
	require.NoError(t, err)
	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecDER, err := x509.MarshalPKCS8PrivateKey(ecKey)
	require.NoError(t, err)
	ecPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: ecDER})

	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{name: "pkcs8", data: pkcs8},
		{name: "pkcs1", data: pkcs1},
		{name: "escaped newlines", data: []byte(strings.ReplaceAll(string(pkcs8), "\n", `\n`))},
		{name: "quoted", data: []byte(`"` + strings.ReplaceAll(string(pkcs8), "\n", `\n`) + `"`)},
		{name: "ecdsa key", data: ecPEM, wantErr: "RSA required"},
		{name: "not pem", data: []byte("definitely not a key"), wantErr: "failed to decode PEM block"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := keys.LoadPEM(tt.data)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, &key.PublicKey, m.PublicKey())
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()

	_, err := keys.LoadFile(t.TempDir() + "/missing.pem")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read signing key")
}
