// Package testutil provides test fixtures for the provider packages: a shared
// RSA key, a controllable clock, PKCE pairs and a small HTTP request builder.
package testutil
