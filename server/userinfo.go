package server

import (
	"context"
	"strings"

	"github.com/giantswarm/jwt-oidc/claims"
	"github.com/giantswarm/jwt-oidc/instrumentation"
	"github.com/giantswarm/jwt-oidc/keys"
)

const bearerPrefix = "Bearer "

// BearerToken extracts the credential from an Authorization header value.
// The scheme is matched case-insensitively (RFC 6750 section 2.1).
func BearerToken(header string) (string, bool) {
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// UserInfo verifies the access token in authorization and returns the
// profile claims it carries. Only the signature, algorithm, expiry and
// token kind are checked; any access token this provider issued is
// accepted whatever its audience.
func (s *Server) UserInfo(ctx context.Context, authorization string) (*claims.UserInfo, error) {
	ctx, span := s.tracer.Start(ctx, "server.UserInfo")
	defer span.End()

	if err := checkContext(ctx); err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	token, ok := BearerToken(authorization)
	if !ok {
		err := ErrInvalidToken("bearer token required")
		instrumentation.RecordError(span, err)
		return nil, err
	}

	std, access, err := claims.Decode[claims.Access](s.codec, token, keys.Expectation{})
	if err != nil {
		s.Logger.Debug("Userinfo token rejected", "error", err)
		s.Auditor.LogAuthFailure(ctx, "", "", "", "invalid_access_token")
		oe := ErrInvalidToken("invalid access token").Wrap(err)
		instrumentation.RecordError(span, oe)
		return nil, oe
	}

	instrumentation.AddOAuthFlowAttributes(span, access.ClientID, "", access.Scope)
	instrumentation.SetSpanSuccess(span)
	s.metrics.RecordUserInfo(ctx)

	return &claims.UserInfo{
		Subject: std.Subject,
		Profile: access.Profile,
	}, nil
}
