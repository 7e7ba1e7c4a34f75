// Package oidc serves the provider engine over HTTP.
//
// The Handler is a thin adapter: it parses query strings, JSON and form
// bodies into the server package's request types, delegates to
// *server.Server and renders results or *server.Error values as JSON.
// Routing, cache and security headers, CORS on the public documents,
// per-IP rate limiting of the token endpoint and HTTP metrics live here and
// never in the engine.
//
// Routes:
//
//	GET  /.well-known/jwks.jsn              public key set
//	GET  /.well-known/openid-configuration  discovery document
//	GET  /api/authorize                     validate, redirect to login
//	POST /api/authorize                     issue a code for a signed-in user
//	POST /api/token                         authorization_code, refresh_token
//	GET  /api/userinfo                      claims for a bearer access token
//	POST /api/token/revoke                  RFC 7009 revocation
//	GET  /api/logout                        RP-initiated logout
//	GET  /healthz                           liveness
//
// Example usage:
//
//	srv, err := server.New(km, &server.Config{...}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	h := oidc.NewHandler(srv, &oidc.Config{TrustProxy: true}, logger)
//	log.Fatal(http.ListenAndServe(":3000", h.Routes()))
package oidc
