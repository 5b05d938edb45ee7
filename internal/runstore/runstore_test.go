package runstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"truckbuild/internal/model"
)

func TestSummaryRoundTrip(t *testing.T) {
	runDir := t.TempDir()
	in := model.RunSummary{
		RunID:     "r1",
		Total:     2,
		Succeeded: 1,
		Failed:    1,
		Outcomes: map[string]model.Outcome{
			"a": {JobID: "a", Succeeded: true, ArtifactPath: "/out/a.dctzip"},
			"b": {JobID: "b", FailedStage: model.StageBuilding, Reason: "spec rejected"},
		},
	}

	require.NoError(t, SaveSummary(runDir, in))
	out, err := LoadSummary(runDir)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestWriteBytes_LeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	require.NoError(t, WriteBytes(path, []byte("hello")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "data.json", entries[0].Name())
}

func TestNewRunDir(t *testing.T) {
	runsDir := filepath.Join(t.TempDir(), "runs")
	runDir, runID, err := NewRunDir(runsDir)
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	require.DirExists(t, runDir)

	dirs, err := ListRunDirs(runsDir)
	require.NoError(t, err)
	require.Equal(t, []string{runDir}, dirs)
}

func TestRunLock_SecondAcquireFails(t *testing.T) {
	runDir := t.TempDir()

	lock, err := AcquireRunLock(runDir)
	require.NoError(t, err)

	_, err = AcquireRunLock(runDir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "locked")

	require.NoError(t, lock.Release())

	lock2, err := AcquireRunLock(runDir)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestArtifactStore_UniqueNames(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	require.NoError(t, err)

	first, err := store.Write("fleet_q3", []byte("one"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "fleet_q3.dctzip"), first)

	second, err := store.Write("fleet_q3", []byte("two"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "fleet_q3(1).dctzip"), second)

	third, err := store.Write("fleet_q3", []byte("three"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "fleet_q3(2).dctzip"), third)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	require.Equal(t, []byte("one"), data)
}
