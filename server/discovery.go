package server

import (
	"github.com/go-jose/go-jose/v4"

	"github.com/giantswarm/jwt-oidc/claims"
)

// Endpoint paths, relative to the issuer.
const (
	PathJWKS      = "/.well-known/jwks.jsn"
	PathDiscovery = "/.well-known/openid-configuration"
	PathAuthorize = "/api/authorize"
	PathToken     = "/api/token"
	PathUserInfo  = "/api/userinfo"
	PathRevoke    = "/api/token/revoke"
	PathLogout    = "/api/logout"
	PathHealthz   = "/healthz"
	PathMetrics   = "/metrics"
)

// Metadata is the OpenID Provider configuration document.
type Metadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
	RevocationEndpoint    string `json:"revocation_endpoint,omitempty"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
	RegistrationEndpoint  string `json:"registration_endpoint,omitempty"`
	ServiceDocumentation  string `json:"service_documentation,omitempty"`
	OPPolicyURI           string `json:"op_policy_uri,omitempty"`
	OPTosURI              string `json:"op_tos_uri,omitempty"`

	ResponseTypesSupported                     []string `json:"response_types_supported"`
	SubjectTypesSupported                      []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported           []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                            []string `json:"scopes_supported,omitempty"`
	ClaimsSupported                            []string `json:"claims_supported,omitempty"`
	TokenEndpointAuthMethodsSupported          []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	TokenEndpointAuthSigningAlgValuesSupported []string `json:"token_endpoint_auth_signing_alg_values_supported,omitempty"`
	UILocalesSupported                         []string `json:"ui_locales_supported,omitempty"`
	GrantTypesSupported                        []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported              []string `json:"code_challenge_methods_supported,omitempty"`
	ResponseModesSupported                     []string `json:"response_modes_supported,omitempty"`
	DisplayValuesSupported                     []string `json:"display_values_supported,omitempty"`
	ClaimTypesSupported                        []string `json:"claim_types_supported,omitempty"`
	PromptValuesSupported                      []string `json:"prompt_values_supported,omitempty"`

	RequestParameterSupported          bool `json:"request_parameter_supported"`
	RequestURIParameterSupported       bool `json:"request_uri_parameter_supported"`
	RequireRequestURIRegistration      bool `json:"require_request_uri_registration"`
	ClaimsParameterSupported           bool `json:"claims_parameter_supported"`
	BackchannelLogoutSupported         bool `json:"backchannel_logout_supported"`
	BackchannelLogoutSessionSupported  bool `json:"backchannel_logout_session_supported"`
	FrontchannelLogoutSupported        bool `json:"frontchannel_logout_supported"`
	FrontchannelLogoutSessionSupported bool `json:"frontchannel_logout_session_supported"`
}

// Discovery returns the provider configuration document.
func (s *Server) Discovery() *Metadata {
	issuer := s.Config.Issuer
	alg := s.keys.Algorithm()

	return &Metadata{
		Issuer:                issuer,
		AuthorizationEndpoint: issuer + PathAuthorize,
		TokenEndpoint:         issuer + PathToken,
		JWKSURI:               issuer + PathJWKS,
		UserInfoEndpoint:      issuer + PathUserInfo,
		RevocationEndpoint:    issuer + PathRevoke,
		EndSessionEndpoint:    issuer + PathLogout,

		ResponseTypesSupported:           []string{ResponseTypeCode},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{alg},
		ScopesSupported:                  []string{claims.ScopeOpenID, claims.ScopeEmail},
		ClaimsSupported: []string{
			"sub", "iss", "aud", "exp", "iat", "auth_time", "nonce",
			"name", "given_name", "family_name", "email", "email_verified",
			"locale", "zoneinfo", "address",
		},
		TokenEndpointAuthMethodsSupported:          []string{TokenEndpointAuthMethodBasic, TokenEndpointAuthMethodPost},
		TokenEndpointAuthSigningAlgValuesSupported: []string{alg},
		UILocalesSupported:                         s.Config.UILocales,
		GrantTypesSupported:                        []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken},
		CodeChallengeMethodsSupported:              []string{PKCEMethodS256},
		ResponseModesSupported:                     []string{"query", "fragment"},
		DisplayValuesSupported:                     []string{"page"},
		ClaimTypesSupported:                        []string{"normal"},
		PromptValuesSupported:                      []string{"none", "login", "consent"},
	}
}

// JWKS returns the public key set.
func (s *Server) JWKS() jose.JSONWebKeySet {
	return s.keys.JWKS()
}
