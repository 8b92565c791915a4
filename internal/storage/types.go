package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": one JSON file per document under Path (a directory)
//   - "sqlite": SQLite database file at Path (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the minimal document persistence API.
//
// Load returns (nil, nil) when the document does not exist; callers own
// the decision of what an absent or corrupt document means.
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
	Close() error
}
