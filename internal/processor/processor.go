package processor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/datallboy/blobsync/internal/domain"
	"github.com/datallboy/blobsync/internal/infra/logger"
)

// Closeable is the part of the file writer the processor drives.
type Closeable interface {
	CloseFile(path string, finalSize int64) error
	PreAllocate(path string, size int64) error
}

// FileProcessor owns the on-disk lifecycle of a download: the working
// directory next to the target, the working copy inside it, and its
// promotion to the final path.
type FileProcessor struct {
	logger *logger.Logger
	writer Closeable
}

func NewFileProcessor(l *logger.Logger, w Closeable) *FileProcessor {
	if l == nil {
		l = logger.NewNop()
	}
	return &FileProcessor{logger: l, writer: w}
}

// Prepare creates the working directory of target and sizes its working
// copy. size < 0 leaves an existing working copy untouched. It reports
// whether a working copy from an earlier run was found.
func (p *FileProcessor) Prepare(target string, size int64) (resumed bool, err error) {
	dir := domain.WorkDir(target)
	data := domain.WorkDataPath(target)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, &domain.LocalIOError{Op: "create work dir", Path: dir, Block: domain.NoBlock, Err: err}
	}

	if _, err := os.Stat(data); err == nil {
		resumed = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, &domain.LocalIOError{Op: "stat working copy", Path: data, Block: domain.NoBlock, Err: err}
	}

	if size >= 0 {
		// On Linux/Unix this yields a sparse file
		if err := p.writer.PreAllocate(data, size); err != nil {
			return resumed, &domain.LocalIOError{Op: "pre-allocate", Path: data, Block: domain.NoBlock, Err: err}
		}
	}

	return resumed, nil
}

// Finalize closes the working copy at finalSize bytes and moves it over
// target, then removes the working directory.
func (p *FileProcessor) Finalize(target string, finalSize int64) error {
	data := domain.WorkDataPath(target)

	// Release the handle held by the writer and drop any pre-allocated tail
	if err := p.writer.CloseFile(data, finalSize); err != nil {
		return &domain.LocalIOError{Op: "close working copy", Path: data, Block: domain.NoBlock, Err: err}
	}

	info, err := os.Stat(data)
	if err != nil {
		return &domain.LocalIOError{Op: "stat working copy", Path: data, Block: domain.NoBlock, Err: err}
	}
	if info.Size() != finalSize {
		return &domain.LocalIOError{
			Op: "verify working copy", Path: data, Block: domain.NoBlock,
			Err: fmt.Errorf("size %d, expected %d", info.Size(), finalSize),
		}
	}

	if err := promote(data, target); err != nil {
		return &domain.LocalIOError{Op: "promote working copy", Path: target, Block: domain.NoBlock, Err: err}
	}

	if err := p.Cleanup(target); err != nil {
		// the download itself is complete
		p.logger.Warn("Could not remove %s: %v", domain.WorkDir(target), err)
	}

	p.logger.Info("Completed: %s", target)
	return nil
}

// Cleanup removes the working directory of target, if any.
func (p *FileProcessor) Cleanup(target string) error {
	return os.RemoveAll(domain.WorkDir(target))
}
