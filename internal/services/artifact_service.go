package services

import (
	"context"
	"os"
	"path/filepath"
)

// FileArtifactStore assembles recording chunks into a single file under a
// local directory and returns a URL served by the recordings static route.
type FileArtifactStore struct {
	dir     string
	baseURL string
}

func NewFileArtifactStore(dir, baseURL string) *FileArtifactStore {
	return &FileArtifactStore{dir: dir, baseURL: baseURL}
}

func (s *FileArtifactStore) Save(
	_ context.Context,
	recordingID string,
	chunks [][]byte,
) (string, int64, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", 0, err
	}

	filename := recordingID + ".webm"
	path := filepath.Join(s.dir, filename)
	file, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	var size int64
	for _, chunk := range chunks {
		n, err := file.Write(chunk)
		if err != nil {
			os.Remove(path)
			return "", 0, err
		}
		size += int64(n)
	}

	return s.baseURL + "/" + filename, size, nil
}
