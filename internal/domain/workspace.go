package domain

import "path/filepath"

// WorkDirSuffix is appended to a download target to name its working directory.
const WorkDirSuffix = ".blobdl"

// WorkDir returns the directory that holds the working copy and resume
// manifest of an in-progress download of target.
func WorkDir(target string) string {
	return filepath.Clean(target) + WorkDirSuffix
}

// WorkDataPath is the working copy that is promoted to target when complete.
func WorkDataPath(target string) string {
	return filepath.Join(WorkDir(target), "data")
}

// ManifestPath is the file backed resume manifest of target.
func ManifestPath(target string) string {
	return filepath.Join(WorkDir(target), "state.json")
}

// Manifest is the persisted progress of one download.
type Manifest struct {
	// Length is the size of the remote object the blocks were fetched
	// from. A manifest saved for a different length is stale.
	Length int64
	// Complete holds the ids of the blocks already in the working copy.
	Complete []string
}
