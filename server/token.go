package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4/jwt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/jwt-oidc/claims"
	"github.com/giantswarm/jwt-oidc/instrumentation"
	"github.com/giantswarm/jwt-oidc/internal/util"
	"github.com/giantswarm/jwt-oidc/keys"
	"github.com/giantswarm/jwt-oidc/security"
	"github.com/giantswarm/jwt-oidc/storage"
)

// Grant types accepted at the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// TokenTypeBearer is the token_type of every access token.
const TokenTypeBearer = "Bearer"

// tokenLogPrefix is how much of a credential may appear in a log line.
const tokenLogPrefix = 8

// TokenRequest holds the parameters of a token request. Client credentials
// are resolved by the caller (HTTP Basic wins over body fields).
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	ClientID     string
	ClientSecret string
}

// TokenSet is the token endpoint response.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Token redeems an authorization code or refresh token. The grant type is
// checked first, then the client credentials.
func (s *Server) Token(ctx context.Context, req *TokenRequest) (*TokenSet, error) {
	ctx, span := s.tracer.Start(ctx, "server.Token")
	defer span.End()

	set, err := s.token(ctx, req)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return set, nil
}

func (s *Server) token(ctx context.Context, req *TokenRequest) (*TokenSet, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrInvalidRequest("missing token request")
	}

	span := trace.SpanFromContext(ctx)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, req.GrantType))

	if req.GrantType != GrantTypeAuthorizationCode && req.GrantType != GrantTypeRefreshToken {
		return nil, ErrUnsupportedGrantType(fmt.Sprintf("grant_type must be %q or %q", GrantTypeAuthorizationCode, GrantTypeRefreshToken))
	}
	if err := s.ValidateClientCredentials(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", "")

	if req.GrantType == GrantTypeAuthorizationCode {
		return s.exchangeCode(ctx, req)
	}
	return s.refresh(ctx, req)
}

// exchangeCode implements the authorization_code grant.
func (s *Server) exchangeCode(ctx context.Context, req *TokenRequest) (*TokenSet, error) {
	if !s.ValidRedirectURI(req.RedirectURI) {
		return nil, ErrInvalidRequest("redirect_uri is not registered")
	}
	if req.Code == "" {
		return nil, ErrInvalidRequest("code is required")
	}

	std, code, err := claims.Decode[claims.AuthorizationCode](s.codec, req.Code, keys.Expectation{
		Issuer:   s.Config.Issuer,
		Audience: req.ClientID,
	})
	if err != nil {
		s.logGrantFailure(ctx, "", req.ClientID, req.Code, "invalid_authorization_code", err)
		return nil, ErrInvalidGrant("invalid authorization code").Wrap(err)
	}

	if code.RedirectURI != "" && code.RedirectURI != req.RedirectURI {
		s.logGrantFailure(ctx, std.Subject, req.ClientID, req.Code, "redirect_uri_mismatch", nil)
		return nil, ErrInvalidGrant("redirect_uri does not match the authorization request")
	}

	if err := VerifyPKCE(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier); err != nil {
		s.metrics.RecordPKCEValidationFailed(ctx, code.CodeChallengeMethod)
		s.Auditor.LogEvent(ctx, security.Event{
			Type:     security.EventPKCEValidationFailed,
			UserID:   std.Subject,
			ClientID: req.ClientID,
			Details: map[string]any{
				"reason": err.Error(),
			},
		})
		if errors.Is(err, ErrPKCEVerifierMissing) {
			return nil, ErrInvalidRequest("code_verifier is required").Wrap(err)
		}
		return nil, ErrInvalidGrant("code_verifier does not match").Wrap(err)
	}

	if err := s.consume(ctx, std); err != nil {
		if errors.Is(err, storage.ErrAlreadyConsumed) {
			s.Logger.Warn("Authorization code reuse detected",
				"client_id", req.ClientID,
				"code_prefix", util.SafeTruncate(req.Code, tokenLogPrefix))
			s.metrics.RecordCodeReuseDetected(ctx)
			s.Auditor.LogReuseDetected(ctx, security.EventAuthorizationCodeReuseDetected, std.Subject, req.ClientID)
			instrumentation.SetSpanAttributes(trace.SpanFromContext(ctx), attribute.Bool(instrumentation.AttrCodeReuse, true))
			return nil, ErrInvalidGrant("invalid authorization code").Wrap(err)
		}
		return nil, s.replayFailure(err)
	}

	user := code.User
	scope := code.Scope
	set, err := s.mint(ctx, std.Subject, req.ClientID, scope, code.AuthTime, user)
	if err != nil {
		return nil, err
	}

	idToken, err := s.codec.Encode(&claims.ID{
		AuthTime: code.AuthTime,
		Nonce:    code.Nonce,
		AtHash:   claims.AccessTokenHash(set.AccessToken),
		Profile:  user.Profile(),
	}, jwt.Claims{
		Subject:  std.Subject,
		Audience: jwt.Audience{req.ClientID},
	}, ttl(s.Config.IDTokenTTL))
	if err != nil {
		s.Logger.Error("Failed to issue ID token", "client_id", req.ClientID, "error", err)
		return nil, ErrServerError(err)
	}
	set.IDToken = idToken
	s.metrics.RecordTokenIssued(ctx, string(claims.KindID))

	s.metrics.RecordCodeExchange(ctx, req.ClientID, code.CodeChallengeMethod)
	s.Auditor.LogTokenIssued(ctx, std.Subject, req.ClientID, scope)
	s.Logger.Debug("Exchanged authorization code",
		"client_id", req.ClientID,
		"scope", scope,
		"pkce", code.CodeChallenge != "")
	return set, nil
}

// refresh implements the refresh_token grant. The refresh token is rotated;
// no ID token is issued.
func (s *Server) refresh(ctx context.Context, req *TokenRequest) (*TokenSet, error) {
	if req.RefreshToken == "" {
		return nil, ErrInvalidRequest("refresh_token is required")
	}

	std, rt, err := claims.Decode[claims.Refresh](s.codec, req.RefreshToken, keys.Expectation{
		Issuer:   s.Config.Issuer,
		Audience: req.ClientID,
	})
	if err != nil {
		s.logGrantFailure(ctx, "", req.ClientID, req.RefreshToken, "invalid_refresh_token", err)
		return nil, ErrInvalidGrant("invalid refresh token").Wrap(err)
	}

	if err := s.consume(ctx, std); err != nil {
		if errors.Is(err, storage.ErrAlreadyConsumed) {
			s.Logger.Warn("Refresh token reuse detected",
				"client_id", req.ClientID,
				"token_prefix", util.SafeTruncate(req.RefreshToken, tokenLogPrefix))
			s.metrics.RecordTokenReuseDetected(ctx)
			s.Auditor.LogReuseDetected(ctx, security.EventTokenReuseDetected, std.Subject, req.ClientID)
			instrumentation.SetSpanAttributes(trace.SpanFromContext(ctx), attribute.Bool(instrumentation.AttrTokenReuse, true))
			return nil, ErrInvalidGrant("invalid refresh token").Wrap(err)
		}
		return nil, s.replayFailure(err)
	}

	set, err := s.mint(ctx, std.Subject, req.ClientID, rt.Scope, rt.AuthTime, rt.User)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTokenRefresh(ctx, req.ClientID, true)
	s.Auditor.LogTokenRefreshed(ctx, std.Subject, req.ClientID, true)
	s.Logger.Debug("Refreshed access token", "client_id", req.ClientID, "scope", rt.Scope)
	return set, nil
}

// mint issues an access token and a refresh token for subject.
func (s *Server) mint(ctx context.Context, subject, clientID, scope string, authTime *jwt.NumericDate, user claims.User) (*TokenSet, error) {
	std := jwt.Claims{
		Subject:  subject,
		Audience: jwt.Audience{clientID},
	}

	access, err := s.codec.Encode(&claims.Access{
		Scope:    scope,
		ClientID: clientID,
		Profile:  user.Profile().ForScope(scope),
	}, std, ttl(s.Config.AccessTokenTTL))
	if err != nil {
		s.Logger.Error("Failed to issue access token", "client_id", clientID, "error", err)
		return nil, ErrServerError(err)
	}

	refresh, err := s.codec.Encode(&claims.Refresh{
		Scope:    scope,
		AuthTime: authTime,
		User:     user,
	}, std, ttl(s.Config.RefreshTokenTTL))
	if err != nil {
		s.Logger.Error("Failed to issue refresh token", "client_id", clientID, "error", err)
		return nil, ErrServerError(err)
	}

	s.metrics.RecordTokenIssued(ctx, string(claims.KindAccess))
	s.metrics.RecordTokenIssued(ctx, string(claims.KindRefresh))

	return &TokenSet{
		AccessToken:  access,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    s.Config.AccessTokenTTL,
		RefreshToken: refresh,
		Scope:        scope,
	}, nil
}

// consume marks a credential's jti as used when a replay store is set.
func (s *Server) consume(ctx context.Context, std *jwt.Claims) error {
	if s.replay == nil {
		return nil
	}
	if err := checkContext(ctx); err != nil {
		return err
	}
	expiresAt := s.now()
	if std.Expiry != nil {
		expiresAt = std.Expiry.Time()
	}
	return s.replay.Consume(ctx, std.ID, expiresAt)
}

func (s *Server) replayFailure(err error) error {
	if errors.Is(err, storage.ErrInvalidID) {
		return ErrInvalidGrant("credential has no usable identifier").Wrap(err)
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	s.Logger.Error("Replay store unavailable", "error", err)
	return ErrServerError(err)
}

func (s *Server) logGrantFailure(ctx context.Context, userID, clientID, credential, reason string, err error) {
	attrs := []any{
		"reason", reason,
		"client_id", clientID,
		"credential_prefix", util.SafeTruncate(credential, tokenLogPrefix),
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	s.Logger.Debug("Grant rejected", attrs...)
	s.Auditor.LogAuthFailure(ctx, userID, clientID, "", reason)
}
