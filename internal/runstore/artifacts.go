package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// ArtifactStore writes finished build artifacts into the output bucket.
type ArtifactStore struct {
	dir string
}

func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("output directory is required")
	}
	if err := Mkdir(dir); err != nil {
		return nil, err
	}
	return &ArtifactStore{dir: dir}, nil
}

// Write persists the artifact as <jobID>.dctzip, deduplicating the name with
// a (1), (2), ... suffix when a previous run already produced one.
func (s *ArtifactStore) Write(jobID string, data []byte) (string, error) {
	path := UniquePath(filepath.Join(s.dir, jobID+".dctzip"))
	if err := WriteBytes(path, data); err != nil {
		return "", errors.Wrapf(err, "write artifact for %s", jobID)
	}
	return path, nil
}

// UniquePath returns path itself when free, otherwise the first available
// name(i) variant.
func UniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s(%d)%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
