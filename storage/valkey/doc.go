// Package valkey provides a Valkey implementation of storage.ReplayStore.
//
// Valkey is wire-compatible with Redis, so the store works against either.
// Every replica of the provider sharing one Valkey instance sees the same set
// of consumed credential ids, which is what makes single-use codes hold
// across a horizontally scaled deployment.
//
// # Key Schema
//
// All keys use a configurable prefix (default "oidc:"):
//
//	{prefix}replay:{jti} -> "1" (TTL = remaining credential lifetime)
//
// # Atomicity
//
// Consume issues a single SET NX EX. NX decides the winner of concurrent
// redemptions and the marker carries its expiry from the moment it exists.
// A replayed id leaves the original expiry untouched.
//
// # Configuration
//
//	store, err := valkey.New(valkey.Config{
//	    URL: os.Getenv("REDIS_URL"), // redis://, rediss:// or unix://
//	})
//
// or, field by field:
//
//	store, err := valkey.New(valkey.Config{
//	    Address:  "valkey.example.com:6379",
//	    Password: os.Getenv("VALKEY_PASSWORD"),
//	    TLS:      &tls.Config{MinVersion: tls.VersionTLS12},
//	})
package valkey
