package analyzer

import consts "github.com/wpinspect/wpinspect/internal/shared/constants"

// Options selects which stages run.
type Options struct {
	IncludePlugins         bool `json:"include_plugins"`
	IncludeTheme           bool `json:"include_theme"`
	IncludeVersion         bool `json:"include_version"`
	IncludePerformance     bool `json:"include_performance"`
	IncludeRecommendations bool `json:"include_recommendations"`
	// IncludePageSpeed needs a PageSpeed client configured on the Analyzer.
	IncludePageSpeed bool `json:"include_pagespeed"`
	EnrichPlugins    bool `json:"enrich_plugins"`
	// MaxConcurrentRequests is the batch size in batch mode.
	MaxConcurrentRequests int `json:"max_concurrent_requests"`
}

// DefaultOptions enables every stage except PageSpeed.
func DefaultOptions() Options {
	return Options{
		IncludePlugins:         true,
		IncludeTheme:           true,
		IncludeVersion:         true,
		IncludePerformance:     true,
		IncludeRecommendations: true,
		EnrichPlugins:          true,
		MaxConcurrentRequests:  consts.DefaultBatchConcurrency,
	}
}
