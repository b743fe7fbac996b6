package cmd

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wpinspect/wpinspect/internal/analyzer"
	"github.com/wpinspect/wpinspect/internal/detector"
	"github.com/wpinspect/wpinspect/internal/evidence"
)

func TestRecordTelemetry_WritesMetrics(t *testing.T) {
	dir := t.TempDir()
	results := []analyzer.BatchResult{
		{Input: "a", Result: &analyzer.Result{
			WordPress: evidence.Verdict{IsPositive: true},
			Plugins:   []detector.PluginFinding{{Slug: "akismet"}, {Slug: "jetpack"}},
		}},
		{Input: "b", Error: "page fetch failed"},
		{Input: "c", Result: &analyzer.Result{}},
	}

	if err := recordTelemetry(dir, "batch", results, 3*time.Second); err != nil {
		t.Fatalf("recordTelemetry returned error: %v", err)
	}
	if err := recordTelemetry(dir, "analyze", results[:1], time.Second); err != nil {
		t.Fatalf("recordTelemetry returned error: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, telemetryFile))
	if err != nil {
		t.Fatalf("failed to open telemetry file: %v", err)
	}
	defer f.Close()

	var records []telemetryRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec telemetryRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("failed to unmarshal record: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("expected records to be appended, got %d", len(records))
	}

	rec := records[0]
	if rec.Command != "batch" || rec.TargetCount != 3 {
		t.Errorf("unexpected header fields: %+v", rec)
	}
	if rec.SuccessCount != 2 || rec.ErrorCount != 1 || rec.WordPressCount != 1 || rec.PluginCount != 2 {
		t.Errorf("unexpected counts: %+v", rec)
	}
	if math.Abs(rec.SuccessRate-(2.0/3.0)*100) > 0.0001 {
		t.Errorf("unexpected success rate %.6f", rec.SuccessRate)
	}
	if rec.DurationSeconds != 3 || rec.AvgDurationPerSite != 1 {
		t.Errorf("unexpected durations: %+v", rec)
	}
}

func TestRecordTelemetry_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	if err := recordTelemetry(dir, "analyze", nil, time.Second); err == nil {
		t.Fatal("expected an error when the results directory does not exist")
	}
}
