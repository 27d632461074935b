package processor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/datallboy/blobsync/internal/domain"
)

// promote puts the finished working copy at target. The working directory
// itself is left for Cleanup.
func promote(data, target string) error {
	if err := os.Rename(data, target); err == nil {
		return nil
	}
	// most likely the work dir and target are on different filesystems
	return copyInto(data, target)
}

// copyInto copies data to a hidden file beside target and renames it over
// target, so target is either absent, the old file or the complete new one.
func copyInto(data, target string) (err error) {
	src, err := os.Open(data)
	if err != nil {
		return err
	}
	defer src.Close()

	staging, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*"+domain.WorkDirSuffix)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			staging.Close()
			os.Remove(staging.Name())
		}
	}()

	if _, err = io.Copy(staging, src); err != nil {
		return fmt.Errorf("copy working copy: %w", err)
	}
	if err = staging.Sync(); err != nil {
		return err
	}
	if err = staging.Close(); err != nil {
		return err
	}

	return os.Rename(staging.Name(), target)
}
