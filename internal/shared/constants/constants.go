package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// DefaultFetchTimeout bounds a single page or asset request.
	DefaultFetchTimeout = 15 * time.Second
	// DefaultMaxRedirects is the redirect hop limit for the fetch client.
	DefaultMaxRedirects = 5
	// MaxPageBodyBytes caps how much of a fetched document is read into memory.
	MaxPageBodyBytes = 5 * 1024 * 1024
	// DefaultUserAgent identifies the analyzer to target servers.
	DefaultUserAgent = "wpinspect/1.0 (+https://github.com/wpinspect/wpinspect)"
)

const (
	// DefaultBatchConcurrency is the number of sites analyzed per batch.
	DefaultBatchConcurrency = 5
	// DefaultBatchDelay is the pause between two consecutive batches.
	DefaultBatchDelay = time.Second
	// DefaultRegistryDelay is the spacing between plugin registry requests.
	DefaultRegistryDelay = time.Second
	// DefaultRegistryCacheSize bounds the in-process registry cache.
	DefaultRegistryCacheSize = 1024
)

const (
	// MaxRequestBodyBytes caps API request bodies.
	MaxRequestBodyBytes = 1 << 20
	// DefaultJobListLimit is the page size of the job listing endpoint.
	DefaultJobListLimit = 25
	// DefaultMaxJobs is how many jobs the API keeps in memory.
	DefaultMaxJobs = 1000
)
