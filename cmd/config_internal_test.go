package cmd

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newConfigTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Int("timeout", 0, "")
	cmd.Flags().String("user-agent", "", "")
	cmd.Flags().String("pagespeed-key", "", "")
	cmd.Flags().Int("concurrency", 0, "")
	cmd.Flags().Duration("batch-delay", 0, "")
	cmd.Flags().Bool("telemetry", false, "")
	return cmd
}

func withCleanConfig(t *testing.T) {
	t.Helper()
	original := *cliConfig
	viper.Reset()
	*cliConfig = *newCLIConfig()
	t.Cleanup(func() {
		viper.Reset()
		*cliConfig = original
	})
}

func TestApplyConfigDefaultsFromViper(t *testing.T) {
	withCleanConfig(t)

	viper.Set("fetch.timeout_secs", 9)
	viper.Set("fetch.max_redirects", 2)
	viper.Set("fetch.user_agent", "probe/1.0")
	viper.Set("pagespeed.api_key", "k")
	viper.Set("pagespeed.max_retries", 5)
	viper.Set("registry.delay_ms", 0)
	viper.Set("registry.cache_size", 64)
	viper.Set("batch.concurrency", 8)
	viper.Set("batch.delay_ms", 250)
	viper.Set("telemetry", true)

	applyConfigDefaults(newConfigTestCommand())

	if cliConfig.Fetch.TimeoutSecs != 9 || cliConfig.Fetch.MaxRedirects != 2 || cliConfig.Fetch.UserAgent != "probe/1.0" {
		t.Errorf("unexpected fetch config: %+v", cliConfig.Fetch)
	}
	if cliConfig.PageSpeed.APIKey != "k" || cliConfig.PageSpeed.MaxRetries != 5 {
		t.Errorf("unexpected pagespeed config: %+v", cliConfig.PageSpeed)
	}
	if cliConfig.Registry.DelayMS != 0 || cliConfig.Registry.CacheSize != 64 {
		t.Errorf("unexpected registry config: %+v", cliConfig.Registry)
	}
	if cliConfig.Batch.Concurrency != 8 || cliConfig.Batch.Delay != 250*time.Millisecond {
		t.Errorf("unexpected batch config: %+v", cliConfig.Batch)
	}
	if !cliConfig.TelemetryEnabled {
		t.Error("expected telemetry to be enabled from config")
	}
}

func TestApplyConfigDefaultsRespectsFlags(t *testing.T) {
	withCleanConfig(t)

	viper.Set("fetch.timeout_secs", 9)
	viper.Set("batch.concurrency", 8)
	viper.Set("telemetry", true)

	cmd := newConfigTestCommand()
	if err := cmd.Flags().Set("timeout", "3"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("telemetry", "false"); err != nil {
		t.Fatal(err)
	}
	cliConfig.Fetch.TimeoutSecs = 3

	applyConfigDefaults(cmd)

	if cliConfig.Fetch.TimeoutSecs != 3 {
		t.Errorf("explicit --timeout must win, got %d", cliConfig.Fetch.TimeoutSecs)
	}
	if cliConfig.TelemetryEnabled {
		t.Error("explicit --telemetry=false must win")
	}
	if cliConfig.Batch.Concurrency != 8 {
		t.Errorf("expected config concurrency 8, got %d", cliConfig.Batch.Concurrency)
	}
}

func TestApplyConfigDefaultsIgnoresInvalidValues(t *testing.T) {
	withCleanConfig(t)
	defaults := *newCLIConfig()

	viper.Set("fetch.timeout_secs", 0)
	viper.Set("fetch.user_agent", "")
	viper.Set("batch.concurrency", -1)
	viper.Set("registry.cache_size", 0)

	applyConfigDefaults(newConfigTestCommand())

	if cliConfig.Fetch.TimeoutSecs != defaults.Fetch.TimeoutSecs {
		t.Errorf("zero timeout should be ignored, got %d", cliConfig.Fetch.TimeoutSecs)
	}
	if cliConfig.Fetch.UserAgent != defaults.Fetch.UserAgent {
		t.Errorf("empty user agent should be ignored, got %q", cliConfig.Fetch.UserAgent)
	}
	if cliConfig.Batch.Concurrency != defaults.Batch.Concurrency {
		t.Errorf("negative concurrency should be ignored, got %d", cliConfig.Batch.Concurrency)
	}
	if cliConfig.Registry.CacheSize != defaults.Registry.CacheSize {
		t.Errorf("zero cache size should be ignored, got %d", cliConfig.Registry.CacheSize)
	}
}
