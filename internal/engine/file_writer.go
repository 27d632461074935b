package engine

import (
	"fmt"
	"os"
	"sync"
)

type fileHandle struct {
	mu   sync.Mutex
	file *os.File
}

// FileWriter keeps one open handle per working copy so concurrent block
// writes do not reopen the file.
type FileWriter struct {
	mu      sync.RWMutex
	handles map[string]*fileHandle
}

func NewFileWriter() *FileWriter {
	return &FileWriter{
		handles: make(map[string]*fileHandle),
	}
}

// WriteAt writes data at offset. Blocks never overlap, so the handle lock
// only guards against a concurrent CloseFile.
func (fw *FileWriter) WriteAt(path string, data []byte, offset int64) error {
	h, err := fw.getOrCreateFile(path)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.file == nil {
		return fmt.Errorf("write to closed file %s", path)
	}
	_, err = h.file.WriteAt(data, offset)
	return err
}

func (fw *FileWriter) PreAllocate(path string, size int64) error {
	h, err := fw.getOrCreateFile(path)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// On Linux/Unix, Truncate creates a sparse file.
	return h.file.Truncate(size)
}

func (fw *FileWriter) getOrCreateFile(path string) (*fileHandle, error) {
	fw.mu.RLock()
	h, ok := fw.handles[path]
	fw.mu.RUnlock()
	if ok {
		return h, nil
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	h, ok = fw.handles[path]
	if ok {
		return h, nil
	}

	// no O_TRUNC: a resumed download keeps its bytes
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open working copy: %w", err)
	}

	h = &fileHandle{file: f}
	fw.handles[path] = h

	return h, nil
}

func (fw *FileWriter) CloseAll() {
	fw.mu.RLock()
	paths := make([]string, 0, len(fw.handles))
	for path := range fw.handles {
		paths = append(paths, path)
	}
	fw.mu.RUnlock()

	for _, path := range paths {
		_ = fw.CloseFile(path, -1) // Ignore error on global cleanup
	}
}

// CloseFile syncs and closes path. A finalSize >= 0 truncates the file to
// exactly that length first, dropping any pre-allocated tail.
func (fw *FileWriter) CloseFile(path string, finalSize int64) error {
	fw.mu.Lock()
	h, ok := fw.handles[path]
	if ok {
		delete(fw.handles, path)
	}
	fw.mu.Unlock()

	if !ok {
		if finalSize >= 0 {
			return truncateClosed(path, finalSize)
		}
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if finalSize >= 0 {
		if err := h.file.Truncate(finalSize); err != nil {
			h.file.Close()
			h.file = nil
			return fmt.Errorf("failed to truncate to final size: %w", err)
		}
	}

	h.file.Sync()
	err := h.file.Close()
	h.file = nil

	return err
}

func truncateClosed(path string, size int64) error {
	if err := os.Truncate(path, size); err != nil {
		return fmt.Errorf("failed to truncate to final size: %w", err)
	}
	return nil
}
