// Command onedrive-backup mirrors configured OneDrive/SharePoint sources
// into S3-compatible or Azure Blob destinations, incrementally, via the
// engine in internal/sync.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-backup/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagJob        string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that handle config loading
// themselves (e.g. "config validate", which must surface load errors
// directly rather than have them swallowed into a generic startup
// failure). Commands annotated with this key skip the automatic config
// resolution in PersistentPreRunE.
const skipConfigAnnotation = "skipConfig"

// httpClientTimeout bounds control-plane HTTP calls (delta pages, head
// checks, discovery); streaming download/upload bodies use a client with
// no fixed timeout, bounded only by context cancellation, per the
// concurrency model's suspension-point design.
const httpClientTimeout = 30 * time.Second

// CLIContext bundles the resolved configuration and logger threaded
// through every command's RunE via the command's context.Context.
type CLIContext struct {
	Cfg        *config.Config
	ConfigPath string
	Logger     *slog.Logger
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — PersistentPreRunE should always populate it")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "onedrive-backup",
		Short:   "Incremental OneDrive/SharePoint backup engine",
		Long:    "Mirrors OneDrive and SharePoint sources into an S3-compatible or Azure Blob destination, incrementally, resuming from per-drive delta checkpoints.",
		Version: version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (default: platform config dir, or $"+config.EnvConfig+")")
	cmd.PersistentFlags().StringVar(&flagJob, "job", "", "restrict the command to a single configured job (default: $"+config.EnvJob+" or all enabled jobs)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format where supported")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show info-level logging")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging (HTTP requests, retry decisions)")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational logging")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// resolveConfigPath applies the default→env→flag override chain for the
// config file location.
func resolveConfigPath() string {
	env := config.ReadEnvOverrides()

	switch {
	case flagConfigPath != "":
		return flagConfigPath
	case env.ConfigPath != "":
		return env.ConfigPath
	default:
		return config.DefaultConfigDir() + "/config.toml"
	}
}

// resolveJobFilter applies the env→flag override chain for the --job
// restriction: a flag always wins over $BACKUP_JOB.
func resolveJobFilter() string {
	if flagJob != "" {
		return flagJob
	}

	return config.ReadEnvOverrides().Job
}

// loadConfig resolves the effective configuration and stores it, alongside
// a configured logger, in the command's context for RunE handlers.
func loadConfig(cmd *cobra.Command) error {
	logger := buildLogger()
	cfgPath := resolveConfigPath()

	cfg, err := config.LoadOrDefault(cfgPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cc := &CLIContext{Cfg: cfg, ConfigPath: cfgPath, Logger: logger}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger builds an slog.Logger whose level is controlled by the
// mutually-exclusive --verbose/--debug/--quiet flags. The config file's
// logging.level and logging.format are validated but not applied to this
// logger, since it is built before the config is loaded.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	case flagQuiet:
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits
// with the configuration-error exit code.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(2)
}
