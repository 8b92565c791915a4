package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "steamwatch/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Each document lives in its own <dir>/<name>.json file. Writes go through
// a temp file + rename so a crash mid-write never leaves a torn document.
type fileStore struct {
	log logx.Logger

	mu  sync.Mutex
	dir string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) docPath(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *fileStore) Load(ctx context.Context, name string) ([]byte, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.docPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (s *fileStore) Save(ctx context.Context, name string, data []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.docPath(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
