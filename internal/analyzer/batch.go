package analyzer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wpinspect/wpinspect/internal/fetch"
	consts "github.com/wpinspect/wpinspect/internal/shared/constants"
	apperrors "github.com/wpinspect/wpinspect/internal/shared/errors"
)

// BatchResult is the outcome for one input URL.
type BatchResult struct {
	Input  string  `json:"input"`
	URL    string  `json:"url,omitempty"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// ResultFunc is called once per finished site.
type ResultFunc func(BatchResult)

// BatchRunner analyzes many sites in fixed-size concurrent batches with a
// pause between batches.
type BatchRunner struct {
	Analyzer    *Analyzer
	Concurrency int           // Sites per batch (default: Options.MaxConcurrentRequests)
	Delay       time.Duration // Pause between batches
	Logger      *zap.Logger
}

// Run analyzes urls and returns results in input order. Duplicate URLs
// (after normalization) are analyzed once and reported once.
func (b *BatchRunner) Run(ctx context.Context, urls []string, opts Options, onResult ResultFunc) ([]BatchResult, error) {
	if len(urls) == 0 {
		return nil, apperrors.ErrNoTargets
	}
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := b.Concurrency
	if size <= 0 {
		size = opts.MaxConcurrentRequests
	}
	if size <= 0 {
		size = consts.DefaultBatchConcurrency
	}

	results := make([]BatchResult, 0, len(urls))
	var pending []int
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		normalized, err := fetch.NormalizeURL(raw)
		if err != nil {
			r := BatchResult{Input: raw, Error: err.Error()}
			results = append(results, r)
			if onResult != nil {
				onResult(r)
			}
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		results = append(results, BatchResult{Input: raw, URL: normalized})
		pending = append(pending, len(results)-1)
	}

	var mu sync.Mutex
	for start := 0; start < len(pending); start += size {
		if start > 0 && b.Delay > 0 {
			select {
			case <-time.After(b.Delay):
			case <-ctx.Done():
				return results, ctx.Err()
			}
		}
		end := start + size
		if end > len(pending) {
			end = len(pending)
		}

		var wg sync.WaitGroup
		for _, idx := range pending[start:end] {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()

				r := results[idx]
				res, err := b.Analyzer.Analyze(ctx, r.URL, opts)
				if err != nil {
					r.Error = err.Error()
					logger.Warn("batch site failed", zap.String("url", r.URL), zap.Error(err))
				} else {
					r.Result = res
				}

				mu.Lock()
				results[idx] = r
				if onResult != nil {
					onResult(r)
				}
				mu.Unlock()
			}(idx)
		}
		wg.Wait()

		logger.Debug("batch finished", zap.Int("from", start), zap.Int("to", end), zap.Int("total", len(pending)))
	}
	return results, nil
}
