// Package media moves story media onto the playback platform.
//
// Uploader posts cover art and raw narration audio. TranscodeWaiter then
// polls the platform at a fixed interval, up to a hard attempt ceiling, until
// the audio has a transcoded content hash, and turns the result into a
// playlist.MediaReference.
package media
