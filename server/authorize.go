package server

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4/jwt"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/jwt-oidc/claims"
	"github.com/giantswarm/jwt-oidc/instrumentation"
	"github.com/giantswarm/jwt-oidc/security"
)

// AuthorizationResult is the outcome of a successful authorization.
type AuthorizationResult struct {
	// RedirectURI is the client's redirect_uri with code and state added.
	RedirectURI string
	Code        string
	State       string
	ExpiresAt   time.Time
}

// ValidateAuthorizationRequest runs the authorization gates. It is used
// before the user is sent to the login step.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if req == nil {
		return ErrInvalidRequest("missing authorization request")
	}
	if gate, err := s.runGates(req); err != nil {
		s.logGateFailure(ctx, gate, req, err)
		return err
	}
	return nil
}

// LoginRedirect returns the login page URL with the authorization request
// parameters echoed, so the login step can POST them back with the user.
func (s *Server) LoginRedirect(req *AuthorizationRequest) string {
	target := s.Config.LoginPath
	if !strings.Contains(target, "://") {
		target = s.Config.Issuer + "/" + strings.TrimLeft(target, "/")
	}

	q := url.Values{}
	q.Set("client_id", req.ClientID)
	q.Set("redirect_uri", req.RedirectURI)
	q.Set("scope", req.Scope)
	q.Set("state", req.State)
	q.Set("nonce", req.Nonce)
	q.Set("response_type", req.ResponseType)
	if req.CodeChallenge != "" {
		q.Set("code_challenge", req.CodeChallenge)
		q.Set("code_challenge_method", req.CodeChallengeMethod)
	}

	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + q.Encode()
}

// Authorize issues an authorization code for an already authenticated user
// and returns where to send the user agent.
func (s *Server) Authorize(ctx context.Context, req *AuthorizationRequest, user *claims.User) (*AuthorizationResult, error) {
	ctx, span := s.tracer.Start(ctx, "server.Authorize")
	defer span.End()

	result, err := s.authorize(ctx, req, user)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return result, nil
}

func (s *Server) authorize(ctx context.Context, req *AuthorizationRequest, user *claims.User) (*AuthorizationResult, error) {
	if err := s.ValidateAuthorizationRequest(ctx, req); err != nil {
		return nil, err
	}
	if user == nil || user.ID == "" || user.Email == "" {
		return nil, ErrInvalidRequest("user id and email are required")
	}

	redirect, err := url.Parse(req.RedirectURI)
	if err != nil {
		return nil, ErrInvalidRequest("redirect_uri is not a valid URL")
	}

	scope := req.Scope
	if strings.TrimSpace(scope) == "" {
		scope = s.Config.DefaultScope
	}

	now := s.now()
	code, err := s.codec.Encode(&claims.AuthorizationCode{
		AuthTime:            jwt.NewNumericDate(now),
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Scope:               scope,
		RedirectURI:         req.RedirectURI,
		User:                user.Normalize(),
	}, jwt.Claims{
		Subject:  user.ID,
		Audience: jwt.Audience{req.ClientID},
	}, ttl(s.Config.AuthorizationCodeTTL))
	if err != nil {
		s.Logger.Error("Failed to issue authorization code", "client_id", req.ClientID, "error", err)
		return nil, ErrServerError(err)
	}

	q := redirect.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	redirect.RawQuery = q.Encode()

	span := trace.SpanFromContext(ctx)
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", scope)
	instrumentation.AddPKCEAttributes(span, req.CodeChallengeMethod)
	s.metrics.RecordAuthorizationStarted(ctx, req.ClientID)
	s.metrics.RecordTokenIssued(ctx, string(claims.KindCode))
	s.Auditor.LogCodeIssued(ctx, user.ID, req.ClientID, scope, req.CodeChallenge != "")
	s.Logger.Debug("Issued authorization code",
		"client_id", req.ClientID,
		"scope", scope,
		"pkce", req.CodeChallenge != "")

	return &AuthorizationResult{
		RedirectURI: redirect.String(),
		Code:        code,
		State:       req.State,
		ExpiresAt:   now.Add(ttl(s.Config.AuthorizationCodeTTL)),
	}, nil
}

func (s *Server) logGateFailure(ctx context.Context, gate string, req *AuthorizationRequest, err *Error) {
	s.Logger.Debug("Authorization request rejected",
		"gate", gate,
		"error", err.Code,
		"client_id", req.ClientID)
	if gate == "redirect_uri" {
		s.Auditor.LogEvent(ctx, security.Event{
			Type:     security.EventInvalidRedirect,
			ClientID: req.ClientID,
			Details: map[string]any{
				"redirect_uri": req.RedirectURI,
			},
		})
	}
}
