// Package auth provides opaque API token authentication.
//
// Tokens are random 256-bit values with a "cbk_" prefix, stored only as
// SHA-256 hashes. The TokenManager resolves bearer tokens to identities
// and caches the mapping briefly; authorization decisions are made per
// request by the permissions package and are never cached.
package auth
