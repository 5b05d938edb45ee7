package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"truckbuild/internal/config"
	"truckbuild/internal/specsource"
)

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type doctorResult struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path (default: ./truckbuild.toml when present)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	result := doctorResult{OK: true}
	add := func(name string, ok bool, message string) {
		result.Checks = append(result.Checks, doctorCheck{Name: name, OK: ok, Message: message})
		if !ok {
			result.OK = false
		}
	}

	if err := cfg.Validate(); err != nil {
		add("config", false, err.Error())
	} else {
		add("config", true, fmt.Sprintf("build service at %s", cfg.BaseURL))
	}

	specs, err := specsource.ListSpecFiles(cfg.SpecDir)
	switch {
	case err != nil:
		add("spec-bucket", false, err.Error())
	case len(specs) == 0:
		add("spec-bucket", false, fmt.Sprintf("no spec spreadsheets in %s", cfg.SpecDir))
	default:
		add("spec-bucket", true, fmt.Sprintf("%d spreadsheet(s) in %s", len(specs), cfg.SpecDir))
	}

	add(checkWritable("output-bucket", cfg.OutputDir))
	add(checkWritable("runs-dir", cfg.RunsDir))

	tlsMsg := fmt.Sprintf("certificate verification: %s", cfg.TLSMode())
	add("tls", true, tlsMsg)

	if *jsonOut {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		for _, c := range result.Checks {
			mark := "ok"
			if !c.OK {
				mark = "FAIL"
			}
			fmt.Printf("%-14s %-4s %s\n", c.Name, mark, c.Message)
		}
	}

	if !result.OK {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

// checkWritable proves the directory can hold files by creating it and
// writing a probe that is removed again.
func checkWritable(name, dir string) (string, bool, string) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return name, false, "directory not configured"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return name, false, err.Error()
	}
	probe := filepath.Join(dir, ".truckbuild-doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return name, false, err.Error()
	}
	_ = os.Remove(probe)
	return name, true, fmt.Sprintf("%s is writable", dir)
}
