// Package tts narrates story text through an HTTP speech endpoint that
// returns MP3 audio.
package tts
