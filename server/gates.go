package server

import (
	"fmt"
	"strings"

	"github.com/giantswarm/jwt-oidc/internal/util"
)

// ResponseTypeCode is the only supported response_type.
const ResponseTypeCode = "code"

// AuthorizationRequest holds the parameters of an authorization request.
type AuthorizationRequest struct {
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	Nonce               string `json:"nonce"`
	ResponseType        string `json:"response_type"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

// Gate is one named check of an authorization request. Gates run in a fixed
// order and the first failure decides the error the client sees.
type Gate struct {
	Name  string
	Check func(s *Server, req *AuthorizationRequest) *Error
}

// AuthorizationGates returns the checks run on every authorization request,
// in order.
func AuthorizationGates() []Gate {
	return []Gate{
		{Name: "response_type", Check: checkResponseType},
		{Name: "client_id", Check: checkClientID},
		{Name: "redirect_uri", Check: checkRedirectURI},
		{Name: "code_challenge_method", Check: checkChallengeMethod},
		{Name: "scope", Check: checkScope},
	}
}

func checkResponseType(_ *Server, req *AuthorizationRequest) *Error {
	if req.ResponseType != ResponseTypeCode {
		return ErrUnsupportedResponseType(fmt.Sprintf("response_type must be %q", ResponseTypeCode))
	}
	return nil
}

func checkClientID(s *Server, req *AuthorizationRequest) *Error {
	if !s.IsRegisteredClient(req.ClientID) {
		return ErrUnauthorizedClient("unknown client_id")
	}
	return nil
}

func checkRedirectURI(s *Server, req *AuthorizationRequest) *Error {
	if !s.ValidRedirectURI(req.RedirectURI) {
		return ErrInvalidRequest("redirect_uri is not registered")
	}
	return nil
}

func checkChallengeMethod(_ *Server, req *AuthorizationRequest) *Error {
	if req.CodeChallenge != "" && req.CodeChallengeMethod != PKCEMethodS256 {
		return ErrInvalidRequest(fmt.Sprintf("code_challenge_method must be %q", PKCEMethodS256))
	}
	return nil
}

func checkScope(s *Server, req *AuthorizationRequest) *Error {
	for _, scope := range util.ScopeTokens(req.Scope) {
		if !s.Config.supportedScopes[scope] {
			return ErrInvalidScope(fmt.Sprintf("unsupported scope %q", scope))
		}
	}
	return nil
}

// ValidRedirectURI reports whether uri matches the registered redirect
// pattern: the configured prefix followed somewhere by the required segment.
func (s *Server) ValidRedirectURI(uri string) bool {
	return strings.HasPrefix(uri, s.Config.RedirectURIPrefix) &&
		strings.Contains(uri, s.Config.RedirectURISegment)
}

// runGates returns the failing gate's name and error, or "" and nil.
func (s *Server) runGates(req *AuthorizationRequest) (string, *Error) {
	for _, g := range AuthorizationGates() {
		if err := g.Check(s, req); err != nil {
			return g.Name, err
		}
	}
	return "", nil
}
