package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wpinspect/wpinspect/internal/analyzer"
	consts "github.com/wpinspect/wpinspect/internal/shared/constants"
)

const telemetryFile = "telemetry.jsonl"

type telemetryRecord struct {
	Timestamp          time.Time `json:"timestamp"`
	Command            string    `json:"command"`
	TargetCount        int       `json:"target_count"`
	SuccessCount       int       `json:"success_count"`
	ErrorCount         int       `json:"error_count"`
	WordPressCount     int       `json:"wordpress_count"`
	PluginCount        int       `json:"plugin_count"`
	SuccessRate        float64   `json:"success_rate"`
	DurationSeconds    float64   `json:"duration_seconds"`
	AvgDurationPerSite float64   `json:"avg_duration_per_site"`
}

// recordTelemetry appends one jsonl record summarizing a CLI run.
func recordTelemetry(resultsDir, command string, results []analyzer.BatchResult, duration time.Duration) error {
	record := telemetryRecord{
		Timestamp:       time.Now().UTC(),
		Command:         command,
		TargetCount:     len(results),
		DurationSeconds: duration.Seconds(),
	}
	for _, r := range results {
		if r.Error != "" || r.Result == nil {
			record.ErrorCount++
			continue
		}
		record.SuccessCount++
		if r.Result.WordPress.IsPositive {
			record.WordPressCount++
		}
		record.PluginCount += len(r.Result.Plugins)
	}
	if total := len(results); total > 0 {
		record.SuccessRate = float64(record.SuccessCount) / float64(total) * 100
		record.AvgDurationPerSite = duration.Seconds() / float64(total)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	path := filepath.Join(resultsDir, telemetryFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, consts.DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	return nil
}
