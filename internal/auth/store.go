package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"storyforge/internal/fileutil"
)

// StorageKey is the document key under which the token pair is persisted.
const StorageKey = "storyforge.platform.tokens"

// TokenStore abstracts persistence for the platform token pair.
type TokenStore interface {
	Load() (TokenPair, bool, error)
	Save(TokenPair) error
	Clear() error
}

// FileTokenStore keeps the token pair in a JSON document on disk. Other keys in
// the document are preserved.
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

// NewFileTokenStore builds a FileTokenStore rooted at the provided path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path returns the backing file location.
func (s *FileTokenStore) Path() string {
	return s.path
}

// Load reads the stored pair. A missing file or key resolves to ok=false.
func (s *FileTokenStore) Load() (TokenPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return TokenPair{}, false, err
	}
	raw, ok := doc[StorageKey]
	if !ok {
		return TokenPair{}, false, nil
	}
	var pair TokenPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return TokenPair{}, false, fmt.Errorf("decode platform tokens: %w", err)
	}
	if pair.IsZero() {
		return TokenPair{}, false, nil
	}
	return pair, true, nil
}

// Save overwrites the stored pair.
func (s *FileTokenStore) Save(pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("encode platform tokens: %w", err)
	}
	doc[StorageKey] = encoded
	return s.writeDocument(doc)
}

// Clear removes the stored pair.
func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}
	if _, ok := doc[StorageKey]; !ok {
		return nil
	}
	delete(doc, StorageKey)
	return s.writeDocument(doc)
}

func (s *FileTokenStore) readDocument() (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("read auth state: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode auth state: %w", err)
	}
	return doc, nil
}

func (s *FileTokenStore) writeDocument(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode auth state: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write auth state: %w", err)
	}
	return nil
}
