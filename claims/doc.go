// Package claims encodes and decodes the provider's credentials.
//
// Every credential the provider hands out is a signed JWT whose payload is
// the whole state of the grant: there is no server side record to consult at
// redemption time. A Codec turns one of the tagged claim-set variants
// (AuthorizationCode, Access, Refresh, ID) plus the registered claims into a
// compact JWS and back, stamping a private token_use claim on every
// credential except ID tokens so that a credential of one kind is never
// accepted as another.
package claims
