package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Compile-time interface check.
var _ DocumentCache = (*FileCache)(nil)

// FileCache is a DocumentCache backed by one file per key. Files are named
// by the hash of the key and replaced via rename, so concurrent processes
// never observe a partial entry.
type FileCache struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
}

// NewFileCache creates a FileCache rooted at dir. Entries older than maxAge
// are treated as missing; maxAge 0 keeps entries forever.
func NewFileCache(dir string, maxAge time.Duration) *FileCache {
	return &FileCache{dir: dir, maxAge: maxAge, now: time.Now}
}

type envelope struct {
	Key       string    `json:"key"`
	FetchedAt time.Time `json:"fetched_at"`
	Payload   []byte    `json:"payload"`
}

// Get returns the document stored under k.
func (c *FileCache) Get(_ context.Context, k Key) (Document, bool, error) {
	data, err := os.ReadFile(c.path(k))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, false, nil
		}
		return Document{}, false, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Unreadable entries behave like misses and get overwritten.
		return Document{}, false, nil
	}
	if env.Key != k.String() {
		return Document{}, false, nil
	}
	if c.maxAge > 0 && c.now().Sub(env.FetchedAt) > c.maxAge {
		return Document{}, false, nil
	}
	return Document{Payload: env.Payload, FetchedAt: env.FetchedAt}, true, nil
}

// Put stores payload under k.
func (c *FileCache) Put(_ context.Context, k Key, payload []byte) error {
	data, err := json.Marshal(envelope{Key: k.String(), FetchedAt: c.now().UTC(), Payload: payload})
	if err != nil {
		return err
	}
	return writeFileAtomic(c.path(k), data)
}

// path returns <dir>/<provider>/<sha256(key)>.json.
func (c *FileCache) path(k Key) string {
	sum := sha256.Sum256([]byte(k.String()))
	return filepath.Join(c.dir, k.Provider, hex.EncodeToString(sum[:])+".json")
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
