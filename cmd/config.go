package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	consts "github.com/wpinspect/wpinspect/internal/shared/constants"
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Fetch            FetchConfig
	PageSpeed        PageSpeedConfig
	Registry         RegistryConfig
	Batch            BatchConfig
	TelemetryEnabled bool
	ResultsDir       string
}

// FetchConfig configures the HTTP client used against target sites.
type FetchConfig struct {
	TimeoutSecs  int
	MaxRedirects int
	UserAgent    string
}

type PageSpeedConfig struct {
	APIKey     string
	MaxRetries int
}

// RegistryConfig paces and bounds WordPress.org plugin lookups.
type RegistryConfig struct {
	DelayMS   int
	CacheSize int
}

type BatchConfig struct {
	Concurrency int
	Delay       time.Duration
}

type configOverrides struct {
	TimeoutSecs       *int
	MaxRedirects      *int
	UserAgent         *string
	PageSpeedKey      *string
	PageSpeedRetries  *int
	RegistryDelayMS   *int
	RegistryCacheSize *int
	BatchConcurrency  *int
	BatchDelayMS      *int
	TelemetryEnabled  *bool
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Fetch: FetchConfig{
			TimeoutSecs:  int(consts.DefaultFetchTimeout / time.Second),
			MaxRedirects: consts.DefaultMaxRedirects,
			UserAgent:    consts.DefaultUserAgent,
		},
		PageSpeed: PageSpeedConfig{MaxRetries: 3},
		Registry: RegistryConfig{
			DelayMS:   int(consts.DefaultRegistryDelay / time.Millisecond),
			CacheSize: consts.DefaultRegistryCacheSize,
		},
		Batch: BatchConfig{
			Concurrency: consts.DefaultBatchConcurrency,
			Delay:       consts.DefaultBatchDelay,
		},
	}
}

func intOverride(key string) *int {
	if !viper.IsSet(key) {
		return nil
	}
	v := viper.GetInt(key)
	return &v
}

func stringOverride(key string) *string {
	if !viper.IsSet(key) {
		return nil
	}
	v := viper.GetString(key)
	return &v
}

func loadConfigOverrides() configOverrides {
	overrides := configOverrides{
		TimeoutSecs:       intOverride("fetch.timeout_secs"),
		MaxRedirects:      intOverride("fetch.max_redirects"),
		UserAgent:         stringOverride("fetch.user_agent"),
		PageSpeedKey:      stringOverride("pagespeed.api_key"),
		PageSpeedRetries:  intOverride("pagespeed.max_retries"),
		RegistryDelayMS:   intOverride("registry.delay_ms"),
		RegistryCacheSize: intOverride("registry.cache_size"),
		BatchConcurrency:  intOverride("batch.concurrency"),
		BatchDelayMS:      intOverride("batch.delay_ms"),
	}
	if viper.IsSet("telemetry") {
		v := viper.GetBool("telemetry")
		overrides.TelemetryEnabled = &v
	}
	return overrides
}

// applyConfigDefaults merges config file and environment values into the
// runtime config when the user did not explicitly set the matching flag.
func applyConfigDefaults(cmd *cobra.Command) {
	overrides := loadConfigOverrides()
	flags := cmd.Flags()

	if overrides.TimeoutSecs != nil && *overrides.TimeoutSecs > 0 {
		applyIntDefault(flags, "timeout", *overrides.TimeoutSecs, func(v int) { cliConfig.Fetch.TimeoutSecs = v })
	}
	if overrides.MaxRedirects != nil {
		cliConfig.Fetch.MaxRedirects = *overrides.MaxRedirects
	}
	if overrides.UserAgent != nil && *overrides.UserAgent != "" {
		setStringDefault(flags, "user-agent", *overrides.UserAgent, func(v string) { cliConfig.Fetch.UserAgent = v })
	}
	if overrides.PageSpeedKey != nil {
		setStringDefault(flags, "pagespeed-key", *overrides.PageSpeedKey, func(v string) { cliConfig.PageSpeed.APIKey = v })
	}
	if overrides.PageSpeedRetries != nil && *overrides.PageSpeedRetries > 0 {
		cliConfig.PageSpeed.MaxRetries = *overrides.PageSpeedRetries
	}
	if overrides.RegistryDelayMS != nil && *overrides.RegistryDelayMS >= 0 {
		cliConfig.Registry.DelayMS = *overrides.RegistryDelayMS
	}
	if overrides.RegistryCacheSize != nil && *overrides.RegistryCacheSize > 0 {
		cliConfig.Registry.CacheSize = *overrides.RegistryCacheSize
	}
	if overrides.BatchConcurrency != nil && *overrides.BatchConcurrency > 0 {
		applyIntDefault(flags, "concurrency", *overrides.BatchConcurrency, func(v int) { cliConfig.Batch.Concurrency = v })
	}
	if overrides.BatchDelayMS != nil && *overrides.BatchDelayMS >= 0 {
		delay := time.Duration(*overrides.BatchDelayMS) * time.Millisecond
		applyDurationDefault(flags, "batch-delay", delay, func(v time.Duration) { cliConfig.Batch.Delay = v })
	}
	if overrides.TelemetryEnabled != nil {
		applyBoolDefault(flags, "telemetry", *overrides.TelemetryEnabled, func(v bool) { cliConfig.TelemetryEnabled = v })
	}
}

func flagChanged(flags *pflag.FlagSet, name string) bool {
	if flags == nil {
		return false
	}
	flag := flags.Lookup(name)
	return flag != nil && flag.Changed
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if setter == nil || flagChanged(flags, name) {
		return
	}
	setter(value)
}

func applyBoolDefault(flags *pflag.FlagSet, name string, value bool, setter func(bool)) {
	if setter == nil || flagChanged(flags, name) {
		return
	}
	setter(value)
}

func applyDurationDefault(flags *pflag.FlagSet, name string, value time.Duration, setter func(time.Duration)) {
	if setter == nil || flagChanged(flags, name) {
		return
	}
	setter(value)
}

func setStringDefault(flags *pflag.FlagSet, name, value string, setter func(string)) {
	if setter == nil || flagChanged(flags, name) {
		return
	}
	setter(value)
}
