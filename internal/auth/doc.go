// Package auth provides authentication for the AC bridge API.
//
// Two roles exist:
//   - operator: may read state and send commands
//   - viewer: read-only
//
// Callers authenticate with either an HS256 JWT carrying sub and role
// claims, or an API key. API keys are stored as Argon2id PHC hashes in
// security.api_keys; a valid key is an operator.
//
// Tokens are minted offline with `acctl token`, keys hashed with
// `acctl hash-key`. There is no user database.
package auth
