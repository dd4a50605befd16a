// Package server serves the StoryForge HTTP API on a chi router.
//
// Routes under /api and POST /auth/logout require "Authorization: Bearer
// <server.api_token>" when a token is configured. /auth/login redirects to
// the platform's authorize page and /auth/callback completes the PKCE
// exchange, so the server's own address can be used as redirect_url.
//
// Failures are rendered as api.Error with a status derived from the error
// kind: validation 400, not found 404, busy or conflict 409, platform auth
// 401, transcode timeout 504 and other upstream failures 502.
package server
