// Package auth implements credential verification, session tokens, and the
// multi-strategy login resolver.
//
// Authentication runs against the local credential store, an external
// directory, or both in a configured order with availability-gated fallback.
// Issued tokens embed the user's token version; bumping the stored version
// revokes every outstanding token for that user.
package auth
