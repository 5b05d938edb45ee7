// Package runstore persists run state: run directories, the run lock, the
// final summary, and downloaded artifacts.
package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"truckbuild/internal/model"
)

// RunMeta describes one run directory.
type RunMeta struct {
	RunID     string `json:"run_id"`
	CreatedAt string `json:"created_at"`
	SpecDir   string `json:"spec_dir"`
	OutputDir string `json:"output_dir"`
	Total     int    `json:"total"`
}

func Mkdir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "create directory %s", path)
	}
	return nil
}

// WriteBytes writes via a temp file and rename so readers never observe a
// partial file.
func WriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create parent for %s", path)
	}

	tmp, err := os.CreateTemp(dir, ".truckbuild-tmp-*")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", path)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrapf(err, "write temp file for %s", path)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrapf(err, "chmod temp file for %s", path)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrapf(err, "close temp file for %s", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return errors.Wrapf(err, "atomic rename for %s", path)
	}
	return nil
}

func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "marshal JSON for %s", path)
	}
	data = append(data, '\n')
	return WriteBytes(path, data)
}

func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read file %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse JSON %s", path)
	}
	return nil
}

// NewRunDir creates runs/<timestamp>-<short-uuid>/ and returns its path and
// run id. The timestamp prefix keeps directory listings chronological.
func NewRunDir(runsDir string) (string, string, error) {
	runID := fmt.Sprintf("%s-%s",
		time.Now().UTC().Format("20060102-150405"),
		strings.Split(uuid.NewString(), "-")[0])
	runDir := filepath.Join(runsDir, runID)
	if err := Mkdir(runDir); err != nil {
		return "", "", err
	}
	return runDir, runID, nil
}

func ListRunDirs(runsDir string) ([]string, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrapf(err, "read runs directory %s", runsDir)
	}

	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(runsDir, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func RunMetaPath(runDir string) string {
	return filepath.Join(runDir, "run.json")
}

func SaveRunMeta(runDir string, meta RunMeta) error {
	return WriteJSON(RunMetaPath(runDir), meta)
}

func LoadRunMeta(runDir string) (RunMeta, error) {
	var meta RunMeta
	if err := ReadJSON(RunMetaPath(runDir), &meta); err != nil {
		return RunMeta{}, err
	}
	return meta, nil
}

func SummaryPath(runDir string) string {
	return filepath.Join(runDir, "summary.json")
}

func SaveSummary(runDir string, summary model.RunSummary) error {
	return WriteJSON(SummaryPath(runDir), summary)
}

func LoadSummary(runDir string) (model.RunSummary, error) {
	var summary model.RunSummary
	if err := ReadJSON(SummaryPath(runDir), &summary); err != nil {
		return model.RunSummary{}, err
	}
	return summary, nil
}
