package board

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"truckbuild/internal/model"
)

// Update is one job progress event. Terminal stages retire the row into the
// recent-events list.
type Update struct {
	JobID   string
	Stage   string
	Attempt int
	Label   string
}

type stopMsg struct{}

const maxEvents = 8

var stagePercent = map[string]float64{
	model.StageQueued:         0.05,
	model.StageAuthenticating: 0.15,
	model.StageFetching:       0.35,
	model.StageBuilding:       0.55,
	model.StageDownloading:    0.80,
	model.StageSucceeded:      1.0,
	model.StageFailed:         1.0,
	model.StageCancelled:      1.0,
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

type row struct {
	jobID   string
	stage   string
	attempt int
	label   string
	bar     progress.Model
}

// boardModel keeps the progress snapshot: one entry per active job plus the
// tail of terminal events. It only ever reacts to messages; jobs never touch
// it directly.
type boardModel struct {
	total     int
	order     []string
	rows      map[string]*row
	events    []string
	succeeded int
	failed    int
	cancelled int
	quitting  bool
}

func newBoardModel(total int) boardModel {
	return boardModel{
		total: total,
		rows:  make(map[string]*row),
	}
}

func (m boardModel) Init() tea.Cmd {
	return nil
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case Update:
		m.apply(msg)
		return m, nil
	case stopMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyMsg:
		// The run owns the lifecycle; ctrl+c is handled by the signal
		// context, not the board.
		return m, nil
	}
	return m, nil
}

func (m *boardModel) apply(u Update) {
	if model.IsTerminalStage(u.Stage) {
		m.retire(u)
		return
	}

	r, ok := m.rows[u.JobID]
	if !ok {
		bar := progress.New(progress.WithDefaultGradient())
		bar.Width = 28
		r = &row{jobID: u.JobID, bar: bar}
		m.rows[u.JobID] = r
		m.order = append(m.order, u.JobID)
	}
	r.stage = u.Stage
	r.attempt = u.Attempt
	r.label = u.Label
}

func (m *boardModel) retire(u Update) {
	if _, ok := m.rows[u.JobID]; ok {
		delete(m.rows, u.JobID)
		for i, id := range m.order {
			if id == u.JobID {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}

	var line string
	switch u.Stage {
	case model.StageSucceeded:
		m.succeeded++
		line = okStyle.Render("done  ") + u.JobID
	case model.StageCancelled:
		m.cancelled++
		line = mutedStyle.Render("cancel") + " " + u.JobID
	default:
		m.failed++
		line = failStyle.Render("fail  ") + u.JobID
	}
	if u.Label != "" {
		line += mutedStyle.Render(" " + u.Label)
	}
	m.events = append([]string{line}, m.events...)
	if len(m.events) > maxEvents {
		m.events = m.events[:maxEvents]
	}
}

func (m boardModel) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf(
		"truckbuild | active %d | done %d/%d | failed %d | cancelled %d",
		len(m.order), m.succeeded, m.total, m.failed, m.cancelled)))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(strings.Repeat("-", 72)))
	b.WriteString("\n")

	if len(m.order) == 0 {
		b.WriteString(mutedStyle.Render("(no active jobs)"))
		b.WriteString("\n")
	}
	for _, id := range m.order {
		r := m.rows[id]
		label := r.label
		if label == "" {
			label = r.stage
		}
		attempt := ""
		if r.attempt > 1 {
			attempt = failStyle.Render(fmt.Sprintf(" (attempt %d)", r.attempt))
		}
		b.WriteString(fmt.Sprintf("%-24s %s %s%s\n",
			truncateID(id, 24), r.bar.ViewAs(stagePercent[r.stage]), label, attempt))
	}

	if len(m.events) > 0 {
		b.WriteString(mutedStyle.Render(strings.Repeat("-", 72)))
		b.WriteString("\n")
		for _, e := range m.events {
			b.WriteString(e)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func truncateID(id string, max int) string {
	if len(id) <= max {
		return id
	}
	return id[:max-1] + "…"
}
