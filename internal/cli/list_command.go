package cli

import (
	"flag"
	"fmt"
	"path/filepath"

	"truckbuild/internal/pipeline"
	"truckbuild/internal/runstore"
)

type runListing struct {
	RunID     string `json:"run_id"`
	RunDir    string `json:"run_dir"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
	TotalTime string `json:"total_time,omitempty"`
	Complete  bool   `json:"complete"`
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	runsDir := fs.String("runs-dir", "runs", "runs directory")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	dirs, err := runstore.ListRunDirs(*runsDir)
	if err != nil {
		return err
	}

	listings := make([]runListing, 0, len(dirs))
	for _, dir := range dirs {
		l := runListing{RunID: filepath.Base(dir), RunDir: dir}
		if meta, err := runstore.LoadRunMeta(dir); err == nil {
			l.RunID = meta.RunID
			l.Total = meta.Total
		}
		if s, err := runstore.LoadSummary(dir); err == nil {
			l.Total = s.Total
			l.Succeeded = s.Succeeded
			l.Failed = s.Failed
			l.Cancelled = s.Cancelled
			l.TotalTime = pipeline.FormatDuration(s.TotalTime)
			l.Complete = true
		}
		listings = append(listings, l)
	}

	if *jsonOut {
		return printJSON(listings)
	}
	if len(listings) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	fmt.Printf("%-26s %6s %4s %6s %9s %8s\n", "RUN", "TOTAL", "OK", "FAILED", "CANCELLED", "TOOK")
	for _, l := range listings {
		took := l.TotalTime
		if !l.Complete {
			took = "(no summary)"
		}
		fmt.Printf("%-26s %6d %4d %6d %9d %8s\n",
			l.RunID, l.Total, l.Succeeded, l.Failed, l.Cancelled, took)
	}
	return nil
}
