// Package constants centralizes defaults shared across the CLI, the API
// server and the analysis pipeline.
//
// File permissions, fetch limits, and batch/registry pacing live here so
// cmd/ and internal/ can reference them without introducing import cycles.
package constants
