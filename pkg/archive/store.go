// Package archive keeps exported chat sessions in a content-addressed
// store on disk.
package archive

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zen-systems/groundchat/pkg/conversation"
)

// Ref identifies one stored export.
type Ref struct {
	SHA256    string    `json:"sha256"`
	Sessions  int       `json:"sessions"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages the content-addressed archive.
type Store struct {
	BasePath string
}

// NewStore creates a new archive store.
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		basePath = filepath.Join(home, ".groundchat", "archive")
	}

	dirs := []string{
		filepath.Join(basePath, "objects"),
		filepath.Join(basePath, "indexes"),
	}

	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, err
		}
	}

	return &Store{BasePath: basePath}, nil
}

// StoreSessions exports sessions, stores the document by its SHA256 content
// hash in a sharded directory structure and appends it to the export index.
// Storing identical content twice yields the same hash.
func (s *Store) StoreSessions(sessions []*conversation.Session) (Ref, error) {
	var buf bytes.Buffer
	if err := conversation.ExportSessions(&buf, sessions); err != nil {
		return Ref{}, err
	}
	data := buf.Bytes()

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	// Shard by first 2 chars
	dir := filepath.Join(s.BasePath, "objects", hash[:2])
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Ref{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, hash+".json"), data, 0644); err != nil {
		return Ref{}, err
	}

	ref := Ref{SHA256: hash, Sessions: len(sessions), CreatedAt: time.Now().UTC()}
	if err := s.appendIndex(ref); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

// LoadSessions reads a stored export back.
func (s *Store) LoadSessions(hash string) ([]*conversation.Session, error) {
	if len(hash) < 2 {
		return nil, fmt.Errorf("invalid archive hash %q", hash)
	}
	f, err := os.Open(filepath.Join(s.BasePath, "objects", hash[:2], hash+".json"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return conversation.ParseSessions(f)
}

// List returns the index entries, oldest first.
func (s *Store) List() ([]Ref, error) {
	f, err := os.Open(s.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var refs []Ref
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var ref Ref
		if err := json.Unmarshal(scanner.Bytes(), &ref); err != nil {
			return nil, fmt.Errorf("archive index: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, scanner.Err()
}

func (s *Store) appendIndex(ref Ref) error {
	line, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.indexPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Store) indexPath() string {
	return filepath.Join(s.BasePath, "indexes", "exports.jsonl")
}
