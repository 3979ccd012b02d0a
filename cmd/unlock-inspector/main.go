// Package main provides the entry point for the interactive unlock inspector.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/egeaytac-dev/unlock-inspector/internal/config"
	"github.com/egeaytac-dev/unlock-inspector/internal/logsink"
	"github.com/egeaytac-dev/unlock-inspector/internal/procctl"
	procmock "github.com/egeaytac-dev/unlock-inspector/internal/procctl/mock"
	"github.com/egeaytac-dev/unlock-inspector/internal/resolver"
	resmock "github.com/egeaytac-dev/unlock-inspector/internal/resolver/mock"
	"github.com/egeaytac-dev/unlock-inspector/internal/resolver/restartmgr"
	"github.com/egeaytac-dev/unlock-inspector/internal/tui"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		reportDir  = flag.String("report-dir", "", "directory for exported reports")
		demo       = flag.Bool("demo", false, "fabricate lock holders instead of querying the OS")
	)
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{ExplicitPath: *configPath})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.ApplyCLIOverrides(config.CLIOverrides{
		ReportDir: *reportDir,
		Demo:      *demo,
		DemoSet:   *demo,
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	var (
		res resolver.Resolver
		ctl procctl.Controller
	)
	if cfg.Demo {
		// Lock roughly every third file so demo scans stay readable.
		res = resmock.NewDemo(3)
		ctl = procmock.New()
	} else {
		// Resolver and controller diagnostics surface in the shell's own
		// log pane, so the process-level sink stays quiet.
		res = restartmgr.New(logsink.Nop())
		ctl = procctl.NewSystem(logsink.Nop())
	}

	opts := tui.Options{
		InitialPath: flag.Arg(0),
		KillLockers: cfg.Delete.KillLockers,
		Exclude:     cfg.Scan.Exclude,
		ReportDir:   cfg.Output.ReportDir,
	}

	if err := tui.Run(res, ctl, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
