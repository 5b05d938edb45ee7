package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runRun(args[1:])
	case "list":
		return runList(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("truckbuild: submit vehicle spec spreadsheets to the build service")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  truckbuild doctor")
	fmt.Println("  truckbuild run")
	fmt.Println("  truckbuild list")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run     submit every spreadsheet in the spec bucket and download artifacts")
	fmt.Println("  list    list past runs with their summaries")
	fmt.Println("  doctor  run configuration and filesystem preflight checks")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - Configuration: truckbuild.toml in the working directory, overridden")
	fmt.Println("    by TRUCKBUILD_* environment variables and command flags")
}
