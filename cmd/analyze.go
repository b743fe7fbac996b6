package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wpinspect/wpinspect/internal/analyzer"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Analyze one site",
	Example: `  wpinspect analyze https://example.com
  wpinspect analyze example.com --format json --output example.json
  wpinspect analyze https://example.com --no-performance --no-enrich`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	addAnalysisFlags(analyzeCmd)
	analyzeCmd.Flags().StringP("output", "O", "", "write the report to a file (relative paths go under results_dir)")
}

// addAnalysisFlags registers the stage toggles shared by analyze and batch.
func addAnalysisFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", formatText, "output format: text or json")
	cmd.Flags().Bool("no-plugins", false, "skip plugin detection")
	cmd.Flags().Bool("no-theme", false, "skip theme detection")
	cmd.Flags().Bool("no-version", false, "skip core version detection")
	cmd.Flags().Bool("no-performance", false, "skip the performance analysis")
	cmd.Flags().Bool("no-recommendations", false, "skip recommendations")
	cmd.Flags().Bool("no-enrich", false, "do not query the WordPress.org plugin registry")
	cmd.Flags().Bool("pagespeed", false, "include PageSpeed Insights (needs --pagespeed-key or pagespeed.api_key)")
	cmd.Flags().BoolVar(&cliConfig.TelemetryEnabled, "telemetry", cliConfig.TelemetryEnabled, "append a run record to results_dir/telemetry.jsonl")
}

// optionsFromFlags maps the --no-* toggles onto analyzer options.
func optionsFromFlags(cmd *cobra.Command) analyzer.Options {
	flags := cmd.Flags()
	off := func(name string) bool {
		v, _ := flags.GetBool(name)
		return v
	}
	opts := analyzer.DefaultOptions()
	opts.IncludePlugins = !off("no-plugins")
	opts.IncludeTheme = !off("no-theme")
	opts.IncludeVersion = !off("no-version")
	opts.IncludePerformance = !off("no-performance")
	opts.IncludeRecommendations = !off("no-recommendations")
	opts.EnrichPlugins = !off("no-enrich")
	opts.IncludePageSpeed, _ = flags.GetBool("pagespeed")
	return opts
}

func resolveOptions(cmd *cobra.Command, appCtx *AppContext) analyzer.Options {
	opts := optionsFromFlags(cmd)
	if opts.IncludePageSpeed && appCtx.Config.PageSpeed.APIKey == "" {
		appCtx.Logger.Warn("pagespeed requested without an API key; skipping it")
		opts.IncludePageSpeed = false
	}
	return opts
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	appCtx := getAppContext(cmd)
	format, _ := cmd.Flags().GetString("format")
	if err := validateFormat(format); err != nil {
		return err
	}
	outputPath, _ := cmd.Flags().GetString("output")
	opts := resolveOptions(cmd, appCtx)

	p, err := newPipeline(appCtx.Config, appCtx.ZapLogger)
	if err != nil {
		return err
	}
	defer p.Close()

	start := time.Now()
	res, err := p.Analyzer.Analyze(cmd.Context(), args[0], opts)
	if appCtx.Config.TelemetryEnabled {
		br := analyzer.BatchResult{Input: args[0], Result: res}
		if err != nil {
			br.Error = err.Error()
		} else {
			br.URL = res.URL
		}
		if terr := recordTelemetry(appCtx.ResultsDir, "analyze", []analyzer.BatchResult{br}, time.Since(start)); terr != nil {
			appCtx.Logger.Warnf("telemetry: %v", terr)
		}
	}
	if err != nil {
		return err
	}

	out, written, err := openOutput(cmd.OutOrStdout(), appCtx.ResultsDir, outputPath)
	if err != nil {
		return err
	}
	if err := renderResult(out, res, format); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if written != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s report written to %s\n", colorInfo("→"), written)
	}
	return nil
}
