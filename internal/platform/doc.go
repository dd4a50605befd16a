// Package platform is the HTTP client for the playback platform's content
// and media endpoints.
//
// Every authenticated call obtains its bearer token from a TokenProvider
// immediately before the request. Listing and card responses are decoded
// tolerantly since the platform has shipped several envelope shapes. Card and
// playlist conversion keeps fetched chapters byte-identical.
package platform
