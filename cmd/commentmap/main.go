package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"commentmap/internal/config"
	"commentmap/internal/logger"
	"commentmap/internal/report"
)

// app carries what every subcommand needs once the root has parsed its flags.
type app struct {
	configPath string
	root       string
	jsonLogs   bool
	verbose    int

	cfg     *config.AppConfig
	log     *zap.SugaredLogger
	console *report.Console
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{console: report.New(os.Stdout, os.Stderr)}
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()
	if err != nil {
		a.console.Failure(err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commentmap",
		Short: "Build 2D semantic maps of comment datasets",
		Long: `commentmap embeds every comment of a dataset, projects the embeddings onto the
plane, clusters the resulting points and writes a JSON map for the web viewer.

Examples:
  commentmap map --dataset reviews                # TF-IDF map
  commentmap map --dataset reviews --mode openai  # remote embeddings
  commentmap index                                # publish all maps to web/public/datasets
  commentmap config init                          # write defaults to commentmap.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to YAML config file (optional)")
	flags.StringVar(&a.root, "root", "", "Project root holding data/ and web/ (default from config, else .)")
	flags.BoolVar(&a.jsonLogs, "json-logs", false, "Emit logs as JSON")
	flags.CountVarP(&a.verbose, "verbose", "v", "Increase log verbosity")

	cmd.AddCommand(newMapCmd(a), newIndexCmd(a), newConfigCmd(a))
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("root") {
		cfg.Paths.Root = a.root
	}
	if a.jsonLogs {
		cfg.Log.JSON = true
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Verbosity: a.verbose})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}
