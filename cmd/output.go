package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/wpinspect/wpinspect/internal/analyzer"
	"github.com/wpinspect/wpinspect/internal/detector"
	"github.com/wpinspect/wpinspect/internal/performance"
	"github.com/wpinspect/wpinspect/internal/recommend"
	consts "github.com/wpinspect/wpinspect/internal/shared/constants"
	"github.com/wpinspect/wpinspect/internal/shared/security"
)

const (
	formatText = "text"
	formatJSON = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON:
		return nil
	default:
		return &FormatError{Format: format}
	}
}

// openOutput returns stdout for an empty path. Relative paths are placed
// inside the results directory and may not escape it.
func openOutput(stdout io.Writer, resultsDir, path string) (io.WriteCloser, string, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{stdout}, "", nil
	}
	target := path
	if !filepath.IsAbs(path) {
		resolved, err := security.ResolveWithin(resultsDir, path)
		if err != nil {
			return nil, "", err
		}
		target = resolved
	}
	if err := os.MkdirAll(filepath.Dir(target), consts.DefaultDirPerm); err != nil {
		return nil, "", fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, consts.DefaultFilePerm)
	if err != nil {
		return nil, "", fmt.Errorf("open output file: %w", err)
	}
	return f, target, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func writeJSONOutput(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func renderResult(w io.Writer, res *analyzer.Result, format string) error {
	if format == formatJSON {
		return writeJSONOutput(w, res)
	}
	renderText(w, res)
	return nil
}

func renderText(w io.Writer, res *analyzer.Result) {
	fmt.Fprintf(w, "%s %s (%s)\n", colorHeading("Site:"), res.URL, res.Domain)

	verdict := res.WordPress
	if !verdict.IsPositive {
		fmt.Fprintf(w, "%s %s (score %d)\n", colorHeading("WordPress:"), formatStatusWithColor("no"), verdict.Score)
		fmt.Fprintf(w, "%s %d ms\n", colorHeading("Duration:"), res.DurationMS)
		return
	}
	fmt.Fprintf(w, "%s %s (confidence %s, score %d)\n", colorHeading("WordPress:"),
		formatStatusWithColor("yes"), formatLevelWithColor(verdict.Confidence.String(), false), verdict.Score)
	if types := verdict.Types(); len(types) > 0 {
		fmt.Fprintf(w, "  evidence: %s\n", strings.Join(types, ", "))
	}

	renderVersion(w, res.Version, res.VersionCandidates)
	renderTheme(w, res.Theme)
	renderPlugins(w, res.Plugins)
	renderPerformance(w, res.Performance)
	renderRecommendations(w, res.Recommendations)
	fmt.Fprintf(w, "\n%s %d ms\n", colorHeading("Duration:"), res.DurationMS)
}

func renderVersion(w io.Writer, best *detector.VersionFinding, candidates []detector.VersionFinding) {
	if best == nil {
		fmt.Fprintf(w, "%s unknown\n", colorHeading("Version:"))
		return
	}
	fmt.Fprintf(w, "%s %s (%s, %s)\n", colorHeading("Version:"), best.Version, best.Method,
		formatLevelWithColor(best.Confidence.String(), false))
	for _, c := range candidates {
		if c.Version == best.Version && c.Method == best.Method {
			continue
		}
		fmt.Fprintf(w, "  also: %s via %s\n", c.Version, c.Method)
	}
}

func renderTheme(w io.Writer, theme *detector.ThemeFinding) {
	if theme == nil {
		fmt.Fprintf(w, "%s unknown\n", colorHeading("Theme:"))
		return
	}
	name := theme.Name
	if name == "" {
		name = theme.Slug
	}
	line := name
	if theme.Version != "" {
		line += " " + theme.Version
	}
	fmt.Fprintf(w, "%s %s [%s] via %s\n", colorHeading("Theme:"), line, theme.Slug, theme.DetectionMethod)
	if theme.Author != "" {
		fmt.Fprintf(w, "  author: %s\n", theme.Author)
	}
	if theme.ParentTheme != "" {
		fmt.Fprintf(w, "  parent: %s\n", theme.ParentTheme)
	}
}

func renderPlugins(w io.Writer, plugins []detector.PluginFinding) {
	fmt.Fprintf(w, "\n%s (%d)\n", colorHeading("Plugins"), len(plugins))
	if len(plugins) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  SLUG\tVERSION\tCONFIDENCE\tSCORE\tSTATUS\tMETHODS")
	for _, p := range plugins {
		version := p.Version
		if version == "" {
			version = "-"
		}
		status := "-"
		if p.IsOutdated != nil {
			status = "ok"
			if *p.IsOutdated {
				status = "outdated"
			}
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\t%s\t%s\n", p.Slug, version,
			formatLevelWithColor(p.Confidence.String(), false), p.Score,
			formatStatusWithColor(status), strings.Join(p.DetectionMethods, ","))
	}
	_ = tw.Flush()
}

func renderPerformance(w io.Writer, perf *performance.Result) {
	if perf == nil {
		return
	}
	fmt.Fprintf(w, "\n%s\n", colorHeading("Performance"))
	if perf.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", colorError("error:"), perf.Error)
		return
	}
	fmt.Fprintf(w, "  page: status %d, %d ms, %s\n", perf.Page.StatusCode, perf.Page.LoadTimeMS, humanBytes(perf.Page.SizeBytes))
	fmt.Fprintf(w, "  plugin assets: %s in %d requests, %d render-blocking\n",
		humanBytes(perf.TotalPluginBytes), perf.TotalRequests, perf.TotalBlocking)
	if ps := perf.PageSpeed; ps != nil {
		if ps.Mobile != nil {
			fmt.Fprintf(w, "  pagespeed mobile: %d\n", ps.Mobile.PerformanceScore)
		}
		if ps.Desktop != nil {
			fmt.Fprintf(w, "  pagespeed desktop: %d\n", ps.Desktop.PerformanceScore)
		}
	}
	if len(perf.Plugins) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  PLUGIN\tSCORE\tCSS\tJS\tREQUESTS\tBLOCKING")
	for _, rec := range perf.Plugins {
		fmt.Fprintf(tw, "  %s\t%d\t%s\t%s\t%d\t%d\n", rec.Slug, rec.Score,
			humanBytes(rec.CSSBytes), humanBytes(rec.JSBytes), rec.RequestCount, rec.BlockingCount)
	}
	_ = tw.Flush()
}

func renderRecommendations(w io.Writer, rep *recommend.Report) {
	if rep == nil {
		return
	}
	s := rep.Summary
	fmt.Fprintf(w, "\n%s (%d: %d high, %d medium, %d low; impact %s, effort %s)\n",
		colorHeading("Recommendations"), s.Total, s.High, s.Medium, s.Low, s.EstimatedImpact, s.EstimatedEffort)
	for _, r := range rep.TopRecommendations {
		fmt.Fprintf(w, "  [%s] %s (%s)\n", formatLevelWithColor(string(r.Priority), true), r.Title, r.Category)
		if r.Rationale != "" {
			fmt.Fprintf(w, "      %s\n", r.Rationale)
		}
	}
	if extra := s.Total - len(rep.TopRecommendations); extra > 0 {
		fmt.Fprintf(w, "  ... and %d more (use --format json for the full list)\n", extra)
	}
}

func renderBatchText(w io.Writer, results []analyzer.BatchResult) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tSTATUS\tWORDPRESS\tVERSION\tTHEME\tPLUGINS\tRECS")
	for _, br := range results {
		if br.Error != "" || br.Result == nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\t%s\n", br.Input, formatStatusWithColor("error"), br.Error)
			continue
		}
		res := br.Result
		wp, version, theme, recs := "no", "-", "-", "-"
		if res.WordPress.IsPositive {
			wp = res.WordPress.Confidence.String()
		}
		if res.Version != nil {
			version = res.Version.Version
		}
		if res.Theme != nil {
			theme = res.Theme.Slug
		}
		if res.Recommendations != nil {
			recs = fmt.Sprintf("%d", res.Recommendations.Summary.Total)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n", br.URL, formatStatusWithColor("ok"), wp, version, theme, len(res.Plugins), recs)
	}
	_ = tw.Flush()
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	if n < unit*unit {
		return fmt.Sprintf("%.1f KiB", float64(n)/unit)
	}
	return fmt.Sprintf("%.1f MiB", float64(n)/(unit*unit))
}
