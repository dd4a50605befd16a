// Package auth manages the playback platform's OAuth2 session.
//
// FileTokenStore persists the access/refresh token pair under a single
// namespaced key. TokenManager decodes access-token expiry, refreshes expired
// pairs exactly once under a lock, and is the one place the platform client
// obtains bearer tokens from. LoginFlow and LoopbackLogin implement the
// authorization-code flow with PKCE for the CLI and the HTTP server.
package auth
