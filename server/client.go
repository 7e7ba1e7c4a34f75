package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Token endpoint authentication methods (RFC 7591).
const (
	TokenEndpointAuthMethodBasic = "client_secret_basic"
	TokenEndpointAuthMethodPost  = "client_secret_post"
)

// registeredClient is the one client allowed to use the provider. Only a
// bcrypt hash of its secret is kept in memory.
type registeredClient struct {
	id         string
	secretHash []byte
}

func newRegisteredClient(id, secret, secretHash string) (*registeredClient, error) {
	if secretHash != "" {
		if _, err := bcrypt.Cost([]byte(secretHash)); err != nil {
			return nil, fmt.Errorf("client secret hash is not a bcrypt hash: %w", err)
		}
		return &registeredClient{id: id, secretHash: []byte(secretHash)}, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash client secret: %w", err)
	}
	return &registeredClient{id: id, secretHash: hash}, nil
}

func (c *registeredClient) matchesID(clientID string) bool {
	return subtle.ConstantTimeCompare([]byte(c.id), []byte(clientID)) == 1
}

// HashClientSecret returns the bcrypt hash to configure as ClientSecretHash.
func HashClientSecret(secret string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return string(hash), nil
}

// IsRegisteredClient reports whether clientID names the registered client.
func (s *Server) IsRegisteredClient(clientID string) bool {
	return s.client.matchesID(clientID)
}

// ValidateClientCredentials checks a client_id / client_secret pair against
// the registered client. Failures are invalid_client.
func (s *Server) ValidateClientCredentials(ctx context.Context, clientID, clientSecret string) error {
	if clientID == "" || clientSecret == "" {
		s.logClientFailure(ctx, clientID, "missing_client_credentials")
		return ErrInvalidClient("client authentication failed")
	}

	idOK := s.client.matchesID(clientID)
	// The hash is compared even for an unknown id so both paths cost the same.
	err := bcrypt.CompareHashAndPassword(s.client.secretHash, []byte(clientSecret))
	if !idOK || err != nil {
		reason := "client_id_mismatch"
		if idOK {
			reason = "client_secret_mismatch"
		}
		if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.Logger.Error("Client secret comparison failed", "error", err)
		}
		s.logClientFailure(ctx, clientID, reason)
		return ErrInvalidClient("client authentication failed")
	}
	return nil
}

func (s *Server) logClientFailure(ctx context.Context, clientID, reason string) {
	s.Logger.Debug("Client authentication failed",
		"client_id", clientID,
		"reason", reason)
	s.Auditor.LogAuthFailure(ctx, "", clientID, "", reason)
}
