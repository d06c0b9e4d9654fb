// Package storage provides object storage for source documents and parsed
// archives, with local filesystem and Supabase Storage backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo contains metadata about a stored object
type ObjectInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Storage defines the interface for object storage operations
type Storage interface {
	// Put stores r under key, replacing any existing object
	Put(ctx context.Context, key, contentType string, r io.Reader) (*ObjectInfo, error)

	// Get opens the object stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// List returns objects whose key starts with prefix
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)
}

// Signer is implemented by backends that can hand out time-limited URLs.
type Signer interface {
	Sign(ctx context.Context, key string, expiresIn time.Duration) (string, error)
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal    StorageType = "local"
	StorageTypeSupabase StorageType = "supabase"
)

// Config holds storage configuration
type Config struct {
	Type StorageType

	// Local storage config
	LocalPath string

	// Supabase Storage config
	SupabaseURL       string
	ServiceKey        string
	Bucket            string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// New creates a new Storage implementation based on configuration
func New(cfg *Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeSupabase:
		return NewSupabaseStorage(cfg)
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
