// Package memory provides an in-memory implementation of storage.ReplayStore.
//
// Consumed ids are kept in a mutex-guarded map and evicted by a background
// cleanup loop once the credential they belong to has expired. It is suitable
// for development, testing and single-instance deployments; replicas behind a
// load balancer each have their own map, so use storage/valkey there.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv.SetReplayStore(store)
package memory
