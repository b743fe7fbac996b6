package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	consts "github.com/wpinspect/wpinspect/internal/shared/constants"
)

// AppContext carries what every command needs after PersistentPreRunE.
type AppContext struct {
	Logger     *zap.SugaredLogger
	ZapLogger  *zap.Logger
	ResultsDir string
	Config     *CLIConfig
}

var (
	cfgFile          string
	verbose          bool
	globalAppContext *AppContext
)

var rootCmd = &cobra.Command{
	Use:   "wpinspect",
	Short: "Fingerprint WordPress sites: version, theme, plugins, performance and recommendations",
	Long: `wpinspect inspects a public website from its HTML, headers and linked assets,
decides whether it runs WordPress and reports the core version, active theme,
installed plugins, the performance cost of each plugin and prioritized
recommendations. It never authenticates to or modifies the target.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}

		zl, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		resultsDir := viper.GetString("results_dir")
		if resultsDir == "" {
			resultsDir = "./results"
		}
		if err := os.MkdirAll(resultsDir, consts.DefaultDirPerm); err != nil {
			return fmt.Errorf("failed to create results directory: %w", err)
		}
		if abs, err := filepath.Abs(resultsDir); err == nil {
			resultsDir = abs
		}

		cliConfig.ResultsDir = resultsDir
		applyConfigDefaults(cmd)

		appCtx := &AppContext{
			Logger:     zl.Sugar(),
			ZapLogger:  zl,
			ResultsDir: resultsDir,
			Config:     cliConfig,
		}
		storeAppContext(cmd, appCtx)
		appCtx.Logger.Debugf("results_dir=%s config=%s", resultsDir, viper.ConfigFileUsed())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appCtx := getAppContext(cmd); appCtx != nil && appCtx.ZapLogger != nil {
			_ = appCtx.ZapLogger.Sync()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, colorError("Error:"), err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wpinspect.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&cliConfig.Fetch.TimeoutSecs, "timeout", cliConfig.Fetch.TimeoutSecs, "per-request timeout in seconds")
	rootCmd.PersistentFlags().StringVar(&cliConfig.Fetch.UserAgent, "user-agent", cliConfig.Fetch.UserAgent, "User-Agent sent to target sites")
	rootCmd.PersistentFlags().StringVar(&cliConfig.PageSpeed.APIKey, "pagespeed-key", "", "PageSpeed Insights API key")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads the YAML config if present. Environment variables with
// the WPINSPECT_ prefix override file values (fetch.timeout_secs →
// WPINSPECT_FETCH_TIMEOUT_SECS).
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".wpinspect")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("WPINSPECT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		// An explicit --config that cannot be read is an error; a missing default is not.
		if cfgFile != "" {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
}

func getAppContext(cmd *cobra.Command) *AppContext {
	return globalAppContext
}
