package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wpinspect/wpinspect/internal/fetch"
	"github.com/wpinspect/wpinspect/internal/fetch/fetchtest"
)

const testSiteURL = "https://www.example.co.uk/"

const testSitePage = `<!DOCTYPE html><html><head>
<meta name="generator" content="WordPress 6.4.2">
<link rel="https://api.w.org/" href="https://www.example.co.uk/wp-json/">
<link rel="stylesheet" href="https://www.example.co.uk/wp-content/themes/astra/style.css?ver=4.5.2">
<link rel="stylesheet" href="https://www.example.co.uk/wp-content/plugins/contact-form-7/includes/css/styles.css?ver=5.8.4">
<script src="https://www.example.co.uk/wp-content/plugins/contact-form-7/includes/js/index.js?ver=5.8.4"></script>
</head><body class="home wp-theme-astra"><div class="wpcf7" id="wpcf7-f4-o1"></div></body></html>`

const testThemeStyle = `/*
Theme Name: Astra
Version: 4.5.2
*/`

func testSiteFetcher() *fetchtest.Fake {
	return fetchtest.New().
		Handle(testSiteURL, testSitePage).
		Handle("https://www.example.co.uk/wp-content/themes/astra/style.css", testThemeStyle).
		Handle("https://www.example.co.uk/wp-content/plugins/contact-form-7/includes/css/styles.css?ver=5.8.4", strings.Repeat("x", 2048)).
		Handle("https://www.example.co.uk/wp-content/plugins/contact-form-7/includes/js/index.js?ver=5.8.4", strings.Repeat("y", 4096)).
		Handle("https://static.example/", `<html><body><p>plain</p></body></html>`)
}

type cmdEnv struct {
	ResultsDir string
	Fetcher    *fetchtest.Fake
}

// newCmdEnv isolates HOME, results_dir and the fetcher for one test.
func newCmdEnv(t *testing.T) *cmdEnv {
	t.Helper()
	env := &cmdEnv{ResultsDir: t.TempDir(), Fetcher: testSiteFetcher()}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("WPINSPECT_RESULTS_DIR", env.ResultsDir)

	origFactory := fetcherFactory
	fetcherFactory = func(FetchConfig) fetch.Fetcher { return env.Fetcher }
	origNoColor := color.NoColor
	color.NoColor = true
	origContext := globalAppContext
	t.Cleanup(func() {
		fetcherFactory = origFactory
		color.NoColor = origNoColor
		globalAppContext = origContext
		resetCommandState()
	})
	resetCommandState()
	return env
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// resetCommandState restores flag defaults and configuration between runs,
// since cobra commands and viper are package-level singletons.
func resetCommandState() {
	viper.Reset()
	cfgFile = ""
	verbose = false
	*cliConfig = *newCLIConfig()
	resetFlags(rootCmd)
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
