// Package server implements the OpenID Connect provider engine.
//
// The engine is stateless: authorization codes, access tokens, refresh
// tokens and ID tokens are RS256-signed JWTs that carry everything needed to
// redeem or verify them. A single client is registered through Config; its
// secret is held only as a bcrypt hash.
//
// The Server type exposes one method per protocol operation:
//   - ValidateAuthorizationRequest, LoginRedirect and Authorize for the
//     authorization endpoint
//   - Token for the authorization_code and refresh_token grants
//   - UserInfo for the userinfo endpoint
//   - RevokeToken and Logout for session management
//   - Discovery and JWKS for provider metadata
//
// Every failure is an *Error carrying the OAuth error code and HTTP status
// to render. Authorization requests run through a fixed sequence of gates
// (see AuthorizationGates) so that the first failing check decides the
// error.
//
// A storage.ReplayStore may be attached with SetReplayStore. Codes and
// refresh tokens are then single use; without one they can be redeemed
// until they expire.
//
// Example usage:
//
//	km, err := keys.LoadFile("private.pem")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srv, err := server.New(km, &server.Config{
//	    Issuer:       "https://id.example.com",
//	    ClientID:     clientID,
//	    ClientSecret: clientSecret,
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv.SetReplayStore(memory.New())
package server
