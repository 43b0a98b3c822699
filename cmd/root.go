package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corpeningc/rpdflow/internal/config"
	"github.com/corpeningc/rpdflow/internal/errors"
	"github.com/corpeningc/rpdflow/internal/log"
	"github.com/corpeningc/rpdflow/internal/workflow"
)

var (
	configFile     string
	logLevel       string
	nonInteractive bool

	logger = log.New()
)

var rootCmd = &cobra.Command{
	Use:   "rpdflow",
	Short: "Branch workflows for binary repository documents",
	Long: "Runs feature, release and hotfix branch workflows over git or svn,\n" +
		"merging repository documents with the compare and patch tools.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return errors.Validationf("%s", err)
		}

		logger = log.New().WithLevel(level)
		if !interactive() {
			logger = logger.WithFormatter(log.PrefixedFormatter)
		}
		cmd.SetContext(log.With(cmd.Context(), logger))
		return nil
	},
}

// Execute runs the command line and reports any failure with its remedy. It
// returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	logger.Error("", zap.Error(err))
	if remedy := errors.Remedy(err); remedy != "" {
		logger.Warn(remedy)
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file (default "+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "logLevel", string(log.LevelInfo), "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; manual merges fail instead of waiting")

	for _, action := range workflow.Actions {
		rootCmd.AddCommand(newActionCmd(action))
	}
}

func interactive() bool {
	return !nonInteractive && log.IsInteractive() && os.Getenv("CI") == ""
}

func loadConfig(needsBackend bool) (*config.Config, error) {
	cfg, err := config.Load(configFile, configFile != "")
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(needsBackend); err != nil {
		return nil, err
	}
	return cfg, nil
}
