package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"

	"truckbuild/internal/model"
	"truckbuild/internal/pipeline"
)

var (
	reportHeader = lipgloss.NewStyle().Bold(true)
	reportOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	reportFail   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	reportMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// reportStageOrder fixes the failure group ordering to pipeline order so the
// report reads front to back.
var reportStageOrder = []string{
	model.StageAuthenticating,
	model.StageFetching,
	model.StageBuilding,
	model.StageDownloading,
	model.StageCancelled,
	model.StageFailed,
}

func printRunReport(w io.Writer, s model.RunSummary) {
	fmt.Fprintln(w, reportHeader.Render(
		fmt.Sprintf("run %s finished in %s", s.RunID, pipeline.FormatDuration(s.TotalTime))))
	fmt.Fprintf(w, "  %s  %s  %s\n",
		reportOK.Render(fmt.Sprintf("%d succeeded", s.Succeeded)),
		reportFail.Render(fmt.Sprintf("%d failed", s.Failed)),
		reportMuted.Render(fmt.Sprintf("%d cancelled", s.Cancelled)))
	if avg := s.AverageDuration(); avg > 0 {
		fmt.Fprintf(w, "  average job time %s\n", pipeline.FormatDuration(avg))
	}

	groups := s.FailureGroups()
	if len(groups) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, reportHeader.Render("failures by stage:"))
	for _, stage := range orderedStages(groups) {
		fmt.Fprintf(w, "  %s\n", reportFail.Render(stage))
		reasons := make([]string, 0, len(groups[stage]))
		for reason := range groups[stage] {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			ids := groups[stage][reason]
			sort.Strings(ids)
			fmt.Fprintf(w, "    %s\n", reason)
			for _, id := range ids {
				fmt.Fprintf(w, "      %s\n", reportMuted.Render(id))
			}
		}
	}
}

func orderedStages(groups map[string]map[string][]string) []string {
	out := make([]string, 0, len(groups))
	seen := make(map[string]bool, len(groups))
	for _, stage := range reportStageOrder {
		if _, ok := groups[stage]; ok {
			out = append(out, stage)
			seen[stage] = true
		}
	}
	rest := make([]string, 0)
	for stage := range groups {
		if !seen[stage] {
			rest = append(rest, stage)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
