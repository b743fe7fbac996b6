package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wpinspect/wpinspect/internal/analyzer"
	apperrors "github.com/wpinspect/wpinspect/internal/shared/errors"
)

var batchCmd = &cobra.Command{
	Use:   "batch [url...]",
	Short: "Analyze many sites in paced concurrent batches",
	Example: `  wpinspect batch https://a.example https://b.example
  wpinspect batch --file sites.txt --concurrency 3 --batch-delay 2s --format json`,
	RunE: runBatch,
}

func init() {
	addAnalysisFlags(batchCmd)
	batchCmd.Flags().String("file", "", "read URLs from a file, one per line (# starts a comment)")
	batchCmd.Flags().StringP("output", "O", "", "write the report to a file (relative paths go under results_dir)")
	batchCmd.Flags().IntVar(&cliConfig.Batch.Concurrency, "concurrency", cliConfig.Batch.Concurrency, "sites analyzed per batch")
	batchCmd.Flags().DurationVar(&cliConfig.Batch.Delay, "batch-delay", cliConfig.Batch.Delay, "pause between batches")
	batchCmd.Flags().Bool("progress", false, "show a live progress line instead of one line per site")
}

// readTargets parses one URL per line, ignoring blanks and # comments.
func readTargets(r io.Reader) ([]string, error) {
	var targets []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return targets, nil
}

func collectTargets(cmd *cobra.Command, args []string) ([]string, error) {
	targets := append([]string(nil), args...)
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		return targets, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer f.Close()
	fromFile, err := readTargets(f)
	if err != nil {
		return nil, err
	}
	return append(targets, fromFile...), nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	appCtx := getAppContext(cmd)
	format, _ := cmd.Flags().GetString("format")
	if err := validateFormat(format); err != nil {
		return err
	}
	outputPath, _ := cmd.Flags().GetString("output")
	targets, err := collectTargets(cmd, args)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: pass URLs as arguments or use --file", apperrors.ErrNoTargets)
	}
	opts := resolveOptions(cmd, appCtx)
	opts.MaxConcurrentRequests = appCtx.Config.Batch.Concurrency

	p, err := newPipeline(appCtx.Config, appCtx.ZapLogger)
	if err != nil {
		return err
	}
	defer p.Close()

	runner := &analyzer.BatchRunner{
		Analyzer:    p.Analyzer,
		Concurrency: appCtx.Config.Batch.Concurrency,
		Delay:       appCtx.Config.Batch.Delay,
		Logger:      appCtx.ZapLogger,
	}
	progress := cmd.ErrOrStderr()
	onResult := func(r analyzer.BatchResult) {
		if r.Error != "" {
			fmt.Fprintf(progress, "%s %s: %s\n", colorError("✗"), r.Input, r.Error)
			return
		}
		fmt.Fprintf(progress, "%s %s\n", colorSuccess("✓"), r.URL)
	}
	var printer *progressPrinter
	if live, _ := cmd.Flags().GetBool("progress"); live {
		printer = newProgressPrinter(progress, len(targets))
		printer.Start()
		onResult = printer.Observe
	}

	start := time.Now()
	results, runErr := runner.Run(cmd.Context(), targets, opts, onResult)
	if printer != nil {
		printer.Stop()
	}
	if appCtx.Config.TelemetryEnabled {
		if err := recordTelemetry(appCtx.ResultsDir, "batch", results, time.Since(start)); err != nil {
			appCtx.Logger.Warnf("telemetry: %v", err)
		}
	}

	out, written, err := openOutput(cmd.OutOrStdout(), appCtx.ResultsDir, outputPath)
	if err != nil {
		return err
	}
	if format == formatJSON {
		err = writeJSONOutput(out, results)
	} else {
		renderBatchText(out, results)
	}
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	if err != nil {
		return err
	}
	if written != "" {
		fmt.Fprintf(progress, "%s report written to %s\n", colorInfo("→"), written)
	}
	if runErr != nil {
		return fmt.Errorf("batch interrupted: %w", runErr)
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed == len(results) {
		return &BatchFailedError{Failed: failed, Total: len(results)}
	}
	return nil
}
