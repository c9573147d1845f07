package storage

import (
	"errors"
	"io/fs"
	"os"
)

// datasetSidecars are the files SQLite keeps next to the database while it is open.
var datasetSidecars = []string{"-wal", "-shm", "-journal"}

// Usage is the on-disk size of the two persisted artifacts.
type Usage struct {
	// Dataset includes any SQLite sidecar files.
	Dataset int64 `json:"dataset_bytes"`
	// Index includes a snapshot left half-written by an interrupted mutation.
	Index int64 `json:"index_bytes"`
}

// Total returns the combined size.
func (u Usage) Total() int64 {
	return u.Dataset + u.Index
}

// DiskUsage measures the dataset file and the index snapshot. Missing files count as zero.
func DiskUsage(datasetPath, indexPath string) (Usage, error) {
	var u Usage
	if datasetPath != "" {
		for _, suffix := range append([]string{""}, datasetSidecars...) {
			n, err := fileSize(datasetPath + suffix)
			if err != nil {
				return Usage{}, err
			}
			u.Dataset += n
		}
	}
	if indexPath != "" {
		for _, p := range []string{indexPath, indexPath + ".tmp"} {
			n, err := fileSize(p)
			if err != nil {
				return Usage{}, err
			}
			u.Index += n
		}
	}
	return u, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, nil
	}
	return info.Size(), nil
}
