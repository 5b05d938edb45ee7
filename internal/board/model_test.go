package board

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"truckbuild/internal/model"
)

func apply(t *testing.T, m tea.Model, msgs ...tea.Msg) boardModel {
	t.Helper()
	for _, msg := range msgs {
		m, _ = m.Update(msg)
	}
	bm, ok := m.(boardModel)
	require.True(t, ok)
	return bm
}

func TestBoardModel_TracksActiveRows(t *testing.T) {
	m := apply(t, newBoardModel(3),
		Update{JobID: "fleet_a", Stage: model.StageAuthenticating},
		Update{JobID: "fleet_b", Stage: model.StageFetching},
		Update{JobID: "fleet_a", Stage: model.StageBuilding, Attempt: 2},
	)

	require.Len(t, m.rows, 2)
	require.Equal(t, []string{"fleet_a", "fleet_b"}, m.order)
	require.Equal(t, model.StageBuilding, m.rows["fleet_a"].stage)

	view := m.View()
	require.Contains(t, view, "fleet_a")
	require.Contains(t, view, "attempt 2")
	require.Contains(t, view, "active 2")
}

func TestBoardModel_RetiresTerminalJobs(t *testing.T) {
	m := apply(t, newBoardModel(2),
		Update{JobID: "fleet_a", Stage: model.StageFetching},
		Update{JobID: "fleet_b", Stage: model.StageFetching},
		Update{JobID: "fleet_a", Stage: model.StageSucceeded},
		Update{JobID: "fleet_b", Stage: model.StageFailed, Label: "spec rejected"},
	)

	require.Empty(t, m.rows)
	require.Equal(t, 1, m.succeeded)
	require.Equal(t, 1, m.failed)

	view := m.View()
	require.Contains(t, view, "done 1/2")
	require.Contains(t, view, "spec rejected")
	require.Contains(t, view, "(no active jobs)")
}

func TestBoardModel_EventListIsBounded(t *testing.T) {
	m := tea.Model(newBoardModel(20))
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		m, _ = m.Update(Update{JobID: id, Stage: model.StageQueued})
		m, _ = m.Update(Update{JobID: id, Stage: model.StageCancelled})
	}
	bm := m.(boardModel)
	require.Len(t, bm.events, maxEvents)
	require.Equal(t, 20, bm.cancelled)
}

func TestBoardModel_StopQuits(t *testing.T) {
	m, cmd := newBoardModel(1).Update(stopMsg{})
	require.NotNil(t, cmd)
	require.True(t, m.(boardModel).quitting)
}

func TestBoard_FallbackModeLogsWithoutBlocking(t *testing.T) {
	b := New(false, 2, zap.NewNop())
	for i := 0; i < 100; i++ {
		b.Publish(Update{JobID: "fleet_a", Stage: model.StageFetching, Attempt: i})
	}
	b.Publish(Update{JobID: "fleet_a", Stage: model.StageSucceeded})
	b.Stop()
}

func TestTruncateID(t *testing.T) {
	require.Equal(t, "short", truncateID("short", 10))
	long := strings.Repeat("x", 40)
	got := truncateID(long, 24)
	require.True(t, strings.HasSuffix(got, "…"))
}
