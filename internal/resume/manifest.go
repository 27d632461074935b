package resume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/datallboy/blobsync/internal/app"
	"github.com/datallboy/blobsync/internal/domain"
)

// manifest is the on-disk format of state.json.
type manifest struct {
	Length   int64    `json:"length"`
	Complete []string `json:"complete"`
}

// FileProvider keeps each download's manifest inside its working directory.
type FileProvider struct{}

func NewFileProvider() *FileProvider {
	return &FileProvider{}
}

// Open does not touch the disk; the working directory is created by the
// first Save.
func (p *FileProvider) Open(target string) (app.ResumeStore, error) {
	return &FileStore{path: domain.ManifestPath(target)}, nil
}

// FileStore is the manifest of one download target.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (*domain.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.LocalIOError{Op: "read manifest", Path: s.path, Block: domain.NoBlock, Err: err}
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", s.path, domain.ErrStateCorruption, err)
	}
	return &domain.Manifest{Length: m.Length, Complete: m.Complete}, nil
}

// Save replaces the manifest through a temp file and rename, so a crash
// leaves either the old or the new manifest.
func (s *FileStore) Save(ctx context.Context, m domain.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := m.Complete
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(manifest{Length: m.Length, Complete: ids})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return &domain.LocalIOError{Op: "create manifest dir", Path: s.path, Block: domain.NoBlock, Err: err}
	}

	tmp := s.path + ".tmp"
	if err := writeSynced(tmp, raw); err != nil {
		os.Remove(tmp)
		return &domain.LocalIOError{Op: "write manifest", Path: tmp, Block: domain.NoBlock, Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return &domain.LocalIOError{Op: "replace manifest", Path: s.path, Block: domain.NoBlock, Err: err}
	}
	return nil
}

func (s *FileStore) Discard(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &domain.LocalIOError{Op: "remove manifest", Path: s.path, Block: domain.NoBlock, Err: err}
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
