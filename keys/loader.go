package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// LoadPEM creates a Manager from a PEM encoded RSA private key in PKCS#8
// ("PRIVATE KEY") or PKCS#1 ("RSA PRIVATE KEY") form. Keys copied into
// environment variables often carry literal "\n" sequences instead of line
// breaks; those are normalized before decoding.
func LoadPEM(data []byte, opts ...Option) (*Manager, error) {
	key, err := ParsePrivateKey(data)
	if err != nil {
		return nil, err
	}
	return New(key, opts...)
}

// LoadFile reads a PEM encoded RSA private key from path.
func LoadFile(path string, opts ...Option) (*Manager, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	return LoadPEM(data, opts...)
}

// Generate creates a Manager with a freshly generated key. Credentials signed
// by it do not survive a restart, so it is meant for local development only.
func Generate(bits int, opts ...Option) (*Manager, error) {
	if bits == 0 {
		bits = MinKeyBits
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return New(key, opts...)
}

// ParsePrivateKey decodes a PEM encoded RSA private key.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(normalizePEM(data))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from signing key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key is %T, RSA required", parsed)
	}
	return key, nil
}

// EncodePrivateKey returns the PKCS#8 PEM encoding of key.
func EncodePrivateKey(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signing key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

func normalizePEM(data []byte) []byte {
	s := strings.TrimSpace(string(data))
	s = strings.Trim(s, `"`)
	if strings.Contains(s, `\n`) {
		s = strings.ReplaceAll(s, `\n`, "\n")
	}
	return []byte(s)
}
