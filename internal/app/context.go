package app

import (
	"context"

	"github.com/datallboy/blobsync/internal/domain"
	"github.com/datallboy/blobsync/internal/infra/config"
	"github.com/datallboy/blobsync/internal/infra/logger"
	"github.com/datallboy/blobsync/internal/metrics"
)

// BlobService is what the engine needs from the remote block store.
// This allows the engine to call the store without importing the blob package.
type BlobService interface {
	GetBlockList(ctx context.Context, name string) (*domain.BlockList, error)
	GetRange(ctx context.Context, name string, offset, size int64) ([]byte, error)
	PutBlock(ctx context.Context, name, id string, data []byte, checksum string) error
	PutBlockList(ctx context.Context, name string, ids []string) error
}

// ResumeStore persists which blocks of one in-progress download are on disk.
type ResumeStore interface {
	// Load returns the saved manifest, or nil when there is none. An
	// unreadable one yields domain.ErrStateCorruption.
	Load(ctx context.Context) (*domain.Manifest, error)
	// Save atomically replaces the manifest.
	Save(ctx context.Context, m domain.Manifest) error
	// Discard removes the manifest once the download is promoted.
	Discard(ctx context.Context) error
}

// ResumeProvider hands out a ResumeStore scoped to one download target.
type ResumeProvider interface {
	Open(target string) (ResumeStore, error)
}

// Context hold the core environment and shared resources for blobsync.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Blobs  BlobService
	Resume ResumeProvider

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}
