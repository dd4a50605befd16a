package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// id3Header makes fixtures sniff as audio/mpeg.
var id3Header = []byte("ID3\x04\x00\x00\x00\x00\x00\x00")

// WriteAudio writes an MP3-looking fixture of size bytes to path and returns
// its contents. A size smaller than the ID3 header writes just the header.
func WriteAudio(t testing.TB, path string, size int) []byte {
	t.Helper()

	data := AudioBytes(size)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return data
}

// AudioBytes returns an in-memory MP3-looking payload of size bytes.
func AudioBytes(size int) []byte {
	if size < len(id3Header) {
		size = len(id3Header)
	}
	data := make([]byte, 0, size)
	data = append(data, id3Header...)
	return append(data, bytes.Repeat([]byte{0x42}, size-len(id3Header))...)
}
