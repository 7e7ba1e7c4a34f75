package server

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/giantswarm/jwt-oidc/claims"
	"github.com/giantswarm/jwt-oidc/instrumentation"
	"github.com/giantswarm/jwt-oidc/keys"
	"github.com/giantswarm/jwt-oidc/storage"
)

// RevokeToken accepts a revocation request (RFC 7009). Nothing is stored,
// so access tokens stay valid until they expire. With a replay store a
// refresh token is consumed and can no longer be redeemed.
func (s *Server) RevokeToken(ctx context.Context, token, tokenTypeHint string) error {
	ctx, span := s.tracer.Start(ctx, "server.RevokeToken")
	defer span.End()

	if err := checkContext(ctx); err != nil {
		instrumentation.RecordError(span, err)
		return err
	}
	if token == "" {
		err := ErrInvalidRequest("token is required")
		instrumentation.RecordError(span, err)
		return err
	}

	var userID, clientID string
	if s.replay != nil {
		std, _, err := claims.Decode[claims.Refresh](s.codec, token, keys.Expectation{Issuer: s.Config.Issuer})
		if err == nil {
			userID = std.Subject
			if len(std.Audience) > 0 {
				clientID = std.Audience[0]
			}
			if err := s.consume(ctx, std); err != nil && !errors.Is(err, storage.ErrAlreadyConsumed) {
				// Revocation always reports success; the failure is only logged.
				s.Logger.Warn("Failed to consume revoked refresh token", "error", err)
			}
		}
	}

	s.metrics.RecordTokenRevocation(ctx, clientID)
	s.Auditor.LogTokenRevoked(ctx, userID, clientID, tokenTypeHint)
	instrumentation.SetSpanSuccess(span)
	return nil
}

// Logout validates an RP-initiated logout request and returns where to
// redirect the user agent.
func (s *Server) Logout(ctx context.Context, postLogoutRedirectURI, state string) (string, error) {
	if err := checkContext(ctx); err != nil {
		return "", err
	}
	if postLogoutRedirectURI == "" {
		return "", ErrInvalidRequest("post_logout_redirect_uri is required")
	}
	if !strings.HasPrefix(postLogoutRedirectURI, s.Config.PostLogoutRedirectPrefix) {
		return "", ErrInvalidRequest("post_logout_redirect_uri is not allowed")
	}

	target, err := url.Parse(postLogoutRedirectURI)
	if err != nil {
		return "", ErrInvalidRequest("post_logout_redirect_uri is not a valid URL")
	}
	if state != "" {
		q := target.Query()
		q.Set("state", state)
		target.RawQuery = q.Encode()
	}

	s.Auditor.LogLogout(ctx, postLogoutRedirectURI)
	return target.String(), nil
}
