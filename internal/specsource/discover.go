// Package specsource discovers and parses the vehicle specification
// spreadsheets that feed a build run.
package specsource

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// ListSpecFiles returns the spreadsheets in the bucket directory, sorted by
// name. Excel lock files (~$...) and the vms_filter control files are not
// inputs.
func ListSpecFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf("spec bucket not found: %s", dir)
		}
		return nil, errors.Wrapf(err, "read spec bucket %s", dir)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if !strings.HasSuffix(name, ".xlsx") {
			continue
		}
		if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, "vms_filter") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// JobID derives the run-unique job identifier from a spreadsheet path.
func JobID(specPath string) string {
	base := filepath.Base(specPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadVMSFilter loads the optional vms_filter.txt next to the spreadsheets:
// one VMS code per line, # starts a comment. Absence means no filtering.
func ReadVMSFilter(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "vms_filter.txt"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read vms_filter.txt")
	}

	var codes []string
	for _, line := range strings.Split(string(data), "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			codes = append(codes, line)
		}
	}
	return codes, nil
}
