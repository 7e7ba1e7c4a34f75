// Package util provides small helpers shared by the provider packages.
//
// Key utilities:
//   - SafeTruncate: truncates credentials before they reach a log line
//   - ScopeTokens: splits a space-delimited scope parameter
//   - EmailLocalPart: derives a display name from an email address
package util
