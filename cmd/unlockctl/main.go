// Package main provides the CLI entry point for unlockctl.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/egeaytac-dev/unlock-inspector/internal/config"
	"github.com/egeaytac-dev/unlock-inspector/internal/deleter"
	"github.com/egeaytac-dev/unlock-inspector/internal/logsink"
	"github.com/egeaytac-dev/unlock-inspector/internal/procctl"
	procmock "github.com/egeaytac-dev/unlock-inspector/internal/procctl/mock"
	"github.com/egeaytac-dev/unlock-inspector/internal/report"
	"github.com/egeaytac-dev/unlock-inspector/internal/resolver"
	resmock "github.com/egeaytac-dev/unlock-inspector/internal/resolver/mock"
	"github.com/egeaytac-dev/unlock-inspector/internal/resolver/restartmgr"
	"github.com/egeaytac-dev/unlock-inspector/internal/scanner"
	"github.com/egeaytac-dev/unlock-inspector/internal/stringutil"
)

var (
	// Global flags
	flagConfigPath string
	flagOutput     string
	flagReportDir  string
	flagDemo       bool

	// Scan flags
	scanExclude    []string
	scanSaveReport bool

	// Kill flags
	killForce bool

	// Delete flags
	deleteKillLockers bool

	// Config show flags
	configShowOutput string

	// Global config (loaded once, used by all commands)
	cfg *config.Config
)

// Exit codes.
// Commands use these semantically:
//   - exitValidation: invalid input, bad path, unparseable PID
//   - exitLocked: operation failed because a file stayed locked or a
//     process could not be terminated
//   - exitWrite: file system write failure (report export, config save)
const (
	exitValidation = 1
	exitLocked     = 2
	exitWrite      = 3
)

// ExitError is an error that carries a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitErr creates an ExitError with the given code and message.
func exitErr(code int, msg string) error {
	return &ExitError{Code: code, Message: msg}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitError *ExitError
		if errors.As(err, &exitError) {
			fmt.Fprintln(os.Stderr, exitError.Message)
			os.Exit(exitError.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "unlockctl",
	Short: "Unlock Inspector CLI - find and clear file locks",
	Long: `unlockctl inspects which processes hold locks on files, terminates
them, and deletes stubborn files with escalating strategies.

Lock resolution uses the Windows Restart Manager; on other platforms
'locks' and 'scan' report no holders unless --demo is set. Deletion
works everywhere.`,
}

// initConfig loads the configuration with proper precedence.
// Called via PreRunE on commands that need it.
func initConfig(cmd *cobra.Command) error {
	if cfg != nil {
		return nil
	}

	var err error
	cfg, err = config.Load(config.LoadOptions{
		ExplicitPath: flagConfigPath,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cfg.ApplyCLIOverrides(config.CLIOverrides{
		Format:    flagOutput,
		ReportDir: flagReportDir,
		Demo:      flagDemo,
		DemoSet:   cmd.Flags().Changed("demo"),
	})

	if err := cfg.Validate(); err != nil {
		return exitErr(exitValidation, err.Error())
	}

	return nil
}

// buildResolver returns the lock resolver: the OS facility normally, a
// seeded fake in demo mode.
func buildResolver(sink logsink.Sink) resolver.Resolver {
	if cfg.Demo {
		return resmock.NewDemo(1)
	}
	return restartmgr.New(sink)
}

// stderrSink logs scan diagnostics to stderr, keeping stdout parseable.
func stderrSink() logsink.Sink {
	return logsink.Func(func(message string, level logsink.Level) {
		if level == logsink.LevelDebug {
			return
		}
		fmt.Fprintf(os.Stderr, "[%s] %s\n", level, message)
	})
}

var locksCmd = &cobra.Command{
	Use:   "locks <path>",
	Short: "Show which processes hold a lock on a file",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd)
	},
	RunE: func(_ *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err != nil {
			return exitErr(exitValidation, fmt.Sprintf("cannot access %s: %v", path, err))
		}

		res := buildResolver(stderrSink())
		owners, err := res.Resolve(path)
		if err != nil && !errors.Is(err, resolver.ErrUnsupported) {
			return err
		}

		finding := resolver.Finding{Path: path, Owners: owners}
		switch cfg.Output.Format {
		case config.FormatJSON:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(finding)
		case config.FormatYAML:
			return yaml.NewEncoder(os.Stdout).Encode(finding)
		default:
			if len(owners) == 0 {
				fmt.Printf("%s is not locked\n", path)
				return nil
			}
			fmt.Printf("%s is locked by %s:\n", path, stringutil.Pluralize(len(owners), "process"))
			for _, o := range owners {
				fmt.Printf("  %s [%s]\n", o.Label(), o.Class)
			}
		}
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Scan a file or folder for locked files",
	Long: `Scan walks the given file or folder and reports every file that a
running process holds a lock on. Progress goes to stderr; results go
to stdout in the configured output format.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]
		if _, err := os.Stat(root); err != nil {
			return exitErr(exitValidation, fmt.Sprintf("cannot access %s: %v", root, err))
		}

		exclude := cfg.Scan.Exclude
		if cmd.Flags().Changed("exclude") {
			exclude = scanExclude
		}

		sink := stderrSink()
		sc := scanner.New(buildResolver(sink), sink)
		sc.Exclude = exclude

		rec := report.NewRecorder(root)
		var findings []resolver.Finding

		scan := sc.Scan(root)
		for ev := range scan.Events() {
			switch ev := ev.(type) {
			case scanner.Found:
				findings = append(findings, ev.Finding)
				rec.AddFinding(ev.Finding)
			case scanner.Done:
				rec.FinishScan(ev.Processed, ev.Cancelled)
			}
		}

		if err := printFindings(findings); err != nil {
			return err
		}

		if scanSaveReport {
			path, err := report.Save(rec.Session(), cfg.Output.ReportDir)
			if err != nil {
				return exitErr(exitWrite, fmt.Sprintf("save report: %v", err))
			}
			fmt.Fprintf(os.Stderr, "report saved to %s\n", path)
		}

		if len(findings) > 0 {
			return exitErr(exitLocked, stringutil.Pluralize(len(findings), "locked file")+" found")
		}
		return nil
	},
}

// printFindings writes scan results to stdout in the configured format.
func printFindings(findings []resolver.Finding) error {
	switch cfg.Output.Format {
	case config.FormatJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	case config.FormatYAML:
		return yaml.NewEncoder(os.Stdout).Encode(findings)
	default:
		if len(findings) == 0 {
			fmt.Println("No locked files.")
			return nil
		}
		for _, f := range findings {
			fmt.Println(f.Path)
			for _, o := range f.Owners {
				fmt.Printf("  locked by %s [%s]\n", o.Label(), o.Class)
			}
		}
	}
	return nil
}

var killCmd = &cobra.Command{
	Use:   "kill <pid>...",
	Short: "Terminate processes by PID",
	Long: `Terminate one or more processes. The default is a regular
termination; --force uses the low-level API that ignores cleanup
handlers. In demo mode no real process is touched.`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd)
	},
	RunE: func(_ *cobra.Command, args []string) error {
		var ctl procctl.Controller
		if cfg.Demo {
			ctl = procmock.New()
		} else {
			ctl = procctl.NewSystem(stderrSink())
		}

		failed := 0
		for _, arg := range args {
			pid, err := strconv.ParseUint(arg, 10, 32)
			if err != nil {
				return exitErr(exitValidation, fmt.Sprintf("invalid PID %q", arg))
			}

			res := ctl.Terminate(uint32(pid), killForce)
			status := "ok"
			if !res.OK {
				status = "failed"
				failed++
			}
			fmt.Printf("%d: %s (%s)\n", pid, status, res.Message)
		}

		if failed > 0 {
			return exitErr(exitLocked, stringutil.Pluralize(failed, "process")+" could not be terminated")
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <path>...",
	Short: "Delete files, escalating through unlock strategies",
	Long: `Delete tries several strategies in order: a direct delete, clearing
the read-only attribute, fixing permissions, the native delete API, and
a rename-then-delete. With lock clearing enabled (default), processes
holding the file are terminated first. Every attempt is verified
against the file system before being trusted.`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		killLockers := cfg.Delete.KillLockers
		if cmd.Flags().Changed("kill-lockers") {
			killLockers = deleteKillLockers
		}

		sink := stderrSink()
		res := buildResolver(sink)
		var ctl procctl.Controller
		if cfg.Demo {
			ctl = procmock.New()
		} else {
			ctl = procctl.NewSystem(sink)
		}
		del := deleter.New(res, ctl, sink)

		var outcomes []deleter.Outcome
		failed := 0
		for _, path := range args {
			out := del.Delete(path, killLockers)
			outcomes = append(outcomes, out)
			if !out.OK {
				failed++
			}
		}

		if err := printOutcomes(outcomes); err != nil {
			return err
		}
		if failed > 0 {
			return exitErr(exitLocked, stringutil.Pluralize(failed, "file")+" could not be deleted")
		}
		return nil
	},
}

// printOutcomes writes deletion outcomes to stdout in the configured format.
func printOutcomes(outcomes []deleter.Outcome) error {
	switch cfg.Output.Format {
	case config.FormatJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	case config.FormatYAML:
		return yaml.NewEncoder(os.Stdout).Encode(outcomes)
	default:
		for _, out := range outcomes {
			if out.OK {
				fmt.Printf("deleted %s (%s)\n",
					out.Path, stringutil.Pluralize(len(out.Attempts), "attempt"))
			} else {
				fmt.Printf("FAILED  %s: %s\n", out.Path, out.Diagnosis)
			}
			for _, name := range out.Terminated {
				fmt.Printf("  terminated %s\n", name)
			}
		}
	}
	return nil
}

var reportCmd = &cobra.Command{
	Use:   "report <file>",
	Short: "Render a saved session report",
	Long: `Render a report previously saved by 'scan --save-report' or the
interactive shell's export key, in the configured output format.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd)
	},
	RunE: func(_ *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return exitErr(exitValidation, fmt.Sprintf("read report: %v", err))
		}

		var session report.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return exitErr(exitValidation, fmt.Sprintf("parse report: %v", err))
		}

		out, err := report.Render(session, cfg.Output.Format)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage unlockctl configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd)
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		switch configShowOutput {
		case config.FormatJSON:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		default:
			fmt.Print(cfg.String())
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default global config file",
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd)
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := cfg.SaveGlobal(); err != nil {
			return exitErr(exitWrite, err.Error())
		}
		fmt.Println("config written")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "Output format: text, json, or yaml")
	rootCmd.PersistentFlags().StringVar(&flagReportDir, "report-dir", "", "Directory for exported reports")
	rootCmd.PersistentFlags().BoolVar(&flagDemo, "demo", false, "Fabricate lock holders instead of querying the OS")

	scanCmd.Flags().StringSliceVar(&scanExclude, "exclude", nil, "Glob patterns to skip (matched against file names)")
	scanCmd.Flags().BoolVar(&scanSaveReport, "save-report", false, "Write a session report after the scan")

	killCmd.Flags().BoolVarP(&killForce, "force", "f", false, "Use the low-level termination API")

	deleteCmd.Flags().BoolVar(&deleteKillLockers, "kill-lockers", true, "Terminate lock-holding processes first")

	configShowCmd.Flags().StringVarP(&configShowOutput, "output", "o", config.FormatYAML, "Output format: yaml or json")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(locksCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(configCmd)
}
