// Package storage defines the optional replay cache of the provider.
//
// Credentials are self-contained, so nothing has to be stored for the flows
// to work. A ReplayStore adds one piece of state on top: the ids (jti) of
// authorization codes and refresh tokens that have already been redeemed,
// kept until the credential would have expired anyway. With a store in place
// a code can be exchanged once and a refresh token rotated once.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-process map for single-instance deployments and tests
//   - storage/valkey: Valkey/Redis-compatible store shared by all replicas
package storage
