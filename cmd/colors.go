package cmd

import (
	"strings"

	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorHeading = color.New(color.Bold).SprintFunc()
)

// formatLevelWithColor colors confidence tiers and recommendation
// priorities: high is green for confidence but red for priority.
func formatLevelWithColor(level string, priority bool) string {
	switch strings.ToLower(level) {
	case "high":
		if priority {
			return colorError(level)
		}
		return colorSuccess(level)
	case "medium":
		return colorWarn(level)
	case "low":
		if priority {
			return colorInfo(level)
		}
		return colorError(level)
	default:
		return level
	}
}

func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "ok", "done", "yes":
		return colorSuccess(status)
	case "error", "failed", "no":
		return colorError(status)
	case "outdated":
		return colorWarn(status)
	default:
		return status
	}
}
