package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/splx7/gridflow-sub000/internal/config"
	"github.com/splx7/gridflow-sub000/internal/observability"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "gridflow",
	Short:   "Gridflow keeps an electrical network topology and its power-flow results in sync.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}
		cfg := config.Get()
		observability.InitializeLogger(cfg.Logger)
		logger := observability.GetLogger()
		logger.Info("Starting gridflow",
			zap.String("version", Version),
			zap.String("project_id", cfg.API.ProjectID))
		return nil
	},
}

// Execute adds all child commands to the root command and runs it with the
// provided context for graceful shutdown.
func Execute(ctx context.Context) error {
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newContingencyCmd())
	rootCmd.AddCommand(newGridCodesCmd())
	rootCmd.AddCommand(newLayoutCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			// Context cancellation is the expected shutdown path, not a failure.
			if ctx.Err() == nil {
				logger.Error("Command execution failed", zap.Error(err))
			}
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
}

// initializeConfig reads in the config file and ENV variables if set.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("GRIDFLOW")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults plus env may be a complete config.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return config.Load(v)
}
