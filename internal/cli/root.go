package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/knpiano/knbatch/internal/config"
	"github.com/knpiano/knbatch/pkg/jobs"
	"github.com/knpiano/knbatch/pkg/logger"
)

// Options carries the process environment into the command. Zero values are
// replaced by the real thing.
type Options struct {
	Stdout        io.Writer
	Stderr        io.Writer
	Logger        *logger.Logger
	Clock         func() time.Time
	LoadConfig    func(path string) (*config.Config, error)
	OpenCatalogue CatalogueOpener
	BuildHandlers HandlerBuilder
}

func (o *Options) withDefaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Logger == nil {
		o.Logger = logger.New("knbatch")
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.LoadConfig == nil {
		o.LoadConfig = config.Load
	}
	if o.OpenCatalogue == nil {
		o.OpenCatalogue = OpenCatalogue
	}
	if o.BuildHandlers == nil {
		o.BuildHandlers = BuildHandlers
	}
}

type flags struct {
	jobName    string
	baseDate   string
	configPath string
}

// NewRootCommand builds the knbatch command. Without --job.name it runs the
// scheduler as a service until ctx ends; with it, it runs that job once.
func NewRootCommand(ctx context.Context, opts Options) *cobra.Command {
	opts.withDefaults()
	var f flags

	cmd := &cobra.Command{
		Use:   "knbatch",
		Short: "KNPiano batch job scheduler and runner",
		Long: `knbatch runs the catalogued data maintenance jobs of the KNPiano database.

Without --job.name it starts as a service: every enabled job with a cron
expression gets a timer, and an ops server exposes /health, /jobs and /metrics.

With --job.name it runs one job and exits. The name is <ID>_<MODE>:
  MANUAL  runs for --base.date (yyyyMMdd, required)
  AUTO    runs for today
Manual runs also reach jobs that are disabled in the catalogue.`,
		Example: `  knbatch --config=/etc/knbatch/knbatch.yaml
  knbatch --job.name=KNDB1010_MANUAL --base.date=20250131
  knbatch --job.name=KNDB1010_AUTO`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError(errors.Newf("unexpected arguments: %s", strings.Join(args, " ")))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.jobName == "" {
				if f.baseDate != "" {
					return usageError(errors.WithHint(
						errors.New("--base.date given without --job.name"),
						"use --job.name=<ID>_MANUAL --base.date=yyyyMMdd"))
				}
				return runService(ctx, f, opts)
			}
			return runOnce(ctx, f, opts)
		},
	}

	cmd.Flags().StringVar(&f.jobName, "job.name", "", "run one job and exit, as <ID>_MANUAL or <ID>_AUTO")
	cmd.Flags().StringVar(&f.baseDate, "base.date", "", "base date for MANUAL runs (yyyyMMdd)")
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to a YAML config file")

	cmd.SetOut(opts.Stdout)
	cmd.SetErr(opts.Stderr)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usageError(err)
	})
	return cmd
}

// Run executes the command line and returns the process exit code
func Run(ctx context.Context, args []string, opts Options) int {
	opts.withDefaults()

	cmd := NewRootCommand(ctx, opts)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return ExitOK
	}

	code := ExitCode(err)
	switch {
	case code == ExitUsage:
		printUsage(ctx, opts, configPathFrom(args), err)
	case errors.Is(err, jobs.ErrJobNotFound):
		fmt.Fprintf(opts.Stdout, "%v\n", err)
	default:
		fmt.Fprintf(opts.Stderr, "knbatch: %v\n", err)
	}
	return code
}

func printUsage(ctx context.Context, opts Options, configPath string, err error) {
	w := opts.Stderr
	fmt.Fprintf(w, "knbatch: %v\n", err)
	if hint := jobs.Hints(err); hint != "" {
		fmt.Fprintf(w, "hint: %s\n", hint)
	}
	fmt.Fprintln(w, "usage: knbatch --job.name=<ID>_MANUAL --base.date=yyyyMMdd")
	fmt.Fprintln(w, "       knbatch --job.name=<ID>_AUTO")

	if ids := knownJobIDs(ctx, opts, configPath); len(ids) > 0 {
		fmt.Fprintf(w, "known jobs: %s\n", strings.Join(ids, ", "))
		return
	}
	fmt.Fprintln(w, "known jobs: unavailable (check the job catalogue)")
}

// knownJobIDs lists the enabled jobs for the usage message. It is best effort:
// any problem reaching the catalogue yields nil.
func knownJobIDs(ctx context.Context, opts Options, configPath string) []string {
	cfg, err := opts.LoadConfig(configPath)
	if err != nil {
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	quiet := logger.Nop()
	catalogue, err := opts.OpenCatalogue(lookupCtx, cfg, quiet)
	if err != nil {
		return nil
	}
	if catalogue.Close != nil {
		defer catalogue.Close()
	}

	registry, err := jobs.LoadRegistry(lookupCtx, catalogue.Store, quiet)
	if err != nil {
		return nil
	}
	return registry.EnabledJobIDs()
}

// configPathFrom recovers --config when flag parsing itself failed
func configPathFrom(args []string) string {
	for i, arg := range args {
		switch {
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		case arg == "--config" && i+1 < len(args):
			return args[i+1]
		}
	}
	return ""
}
