package oidc

import (
	"github.com/giantswarm/jwt-oidc/claims"
	"github.com/giantswarm/jwt-oidc/server"
)

// ErrorResponse is the body of every error response (RFC 6749 section 5.2).
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// AuthorizeRequest is the POST /api/authorize body: the authorization
// request as echoed by the login step plus the user it authenticated.
type AuthorizeRequest struct {
	server.AuthorizationRequest
	User *claims.User `json:"user"`
}

// AuthorizeResponse tells the login step where to send the user agent.
type AuthorizeResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status string `json:"status"`
}
