package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{
		"scrape", "scrape-all", "schedule", "import", "wineries", "wines",
		"catalog", "verify", "fix-caps", "runs", "migrate",
	}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "winery-catalog", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestWinesCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range winesCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"pending", "list", "approve", "reject", "status", "delete", "stats", "add", "get"} {
		assert.True(t, names[name], "expected wines subcommand %q not found", name)
	}
}

func TestScrapeCommand_Flags(t *testing.T) {
	flag := scrapeCmd.Flags().Lookup("dry-run")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)

	flag = scrapeAllCmd.Flags().Lookup("workers")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestWinesAdd_RequiredFlags(t *testing.T) {
	for _, name := range []string{"name", "winery", "price"} {
		flag := winesAddCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "wines add should have --%s", name)
		assert.Equal(t, []string{"true"}, flag.Annotations[cobra.BashCompOneRequiredFlag])
	}
	assert.Equal(t, "live", winesAddCmd.Flags().Lookup("status").DefValue)
}

// resetFlags restores every flag of c and its subcommands to its default
// so that consecutive Execute calls in one test binary do not leak state.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args against the store configured
// through the environment and returns everything written to out and err.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func setupCatalogEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("WINERY_STORE_DRIVER", "sqlite")
	t.Setenv("WINERY_STORE_DATABASE_URL", filepath.Join(dir, "catalog.db"))
	t.Setenv("WINERY_LOG_LEVEL", "error")

	seedFile := filepath.Join(dir, "wineries.csv")
	require.NoError(t, os.WriteFile(seedFile, []byte(
		"Winery Name,Online Store - Top level\n"+
			"Hill Top Estate,https://hilltop.example/shop\n"+
			"River Bend Wines,https://riverbend.example/wines\n",
	), 0o644))
	return seedFile
}

func TestCommands_CatalogWorkflow(t *testing.T) {
	seedFile := setupCatalogEnv(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema up to date (sqlite)")

	out, err = execute(t, "import", seedFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Rows: 2, imported 2, skipped 0, failed 0")

	out, err = execute(t, "import", seedFile)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 0, skipped 2")

	out, err = execute(t, "wineries", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "hill-top-estate")
	assert.Contains(t, out, "river-bend-wines")
	assert.Contains(t, out, "never")

	out, err = execute(t, "wines", "add",
		"--name", "Hill Top Shiraz", "--winery", "hill-top-estate",
		"--price", "$35", "--variety", "Shiraz", "--vintage", "2021")
	require.NoError(t, err)
	assert.Contains(t, out, "Added wine 1: Hill Top Shiraz (Hill Top Estate, live)")

	out, err = execute(t, "wines", "add",
		"--name", "RESERVE CHARDONNAY BLEND", "--winery", "2",
		"--price", "48.50", "--variety", "Chardonnay", "--status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "Added wine 2")

	out, err = execute(t, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Hill Top Shiraz")
	assert.NotContains(t, out, "RESERVE CHARDONNAY BLEND")
	assert.Contains(t, out, "Showing 1 of 1")

	out, err = execute(t, "wines", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "RESERVE CHARDONNAY BLEND")
	assert.Contains(t, out, "pending")

	out, err = execute(t, "fix-caps")
	require.NoError(t, err)
	assert.Contains(t, out, "Reserve Chardonnay Blend")
	assert.Contains(t, out, "Would fix 1 name")

	out, err = execute(t, "fix-caps", "--apply", "--winery", "river-bend-wines")
	require.NoError(t, err)
	assert.Contains(t, out, "Fixed 1 name")

	out, err = execute(t, "wines", "approve", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Wine 2 is now live")

	out, err = execute(t, "catalog", "list", "--variety", "chard")
	require.NoError(t, err)
	assert.Contains(t, out, "Reserve Chardonnay Blend")
	assert.Contains(t, out, "$48.50")
	assert.NotContains(t, out, "Hill Top Shiraz")

	out, err = execute(t, "catalog", "varieties")
	require.NoError(t, err)
	assert.Contains(t, out, "Chardonnay")
	assert.Contains(t, out, "Shiraz")

	out, err = execute(t, "wines", "stats")
	require.NoError(t, err)
	assert.Regexp(t, `live\s+2`, out)
	assert.Regexp(t, `total\s+2`, out)

	out, err = execute(t, "wines", "reject", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Wine 1 is now archived")

	_, err = execute(t, "catalog", "get", "1")
	require.Error(t, err)

	out, err = execute(t, "wines", "reject", "--delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted wine 1")

	_, err = execute(t, "wines", "get", "1")
	require.Error(t, err)

	out, err = execute(t, "catalog", "get", "2")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "live"`)

	out, err = execute(t, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "Wines: 1 across 1 of 2 active wineries")

	out, err = execute(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs found.")

	out, err = execute(t, "wineries", "delete", "river-bend-wines")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted winery 2 (River Bend Wines)")

	out, err = execute(t, "wines", "stats")
	require.NoError(t, err)
	assert.Regexp(t, `total\s+0`, out)
}

func TestCommands_InvalidInput(t *testing.T) {
	setupCatalogEnv(t)

	_, err := execute(t, "wines", "status", "1", "published")
	require.Error(t, err)

	_, err = execute(t, "wines", "approve", "abc")
	require.Error(t, err)

	_, err = execute(t, "wines", "approve", "99")
	require.Error(t, err)

	_, err = execute(t, "catalog", "list", "--min-price", "cheap")
	require.Error(t, err)

	_, err = execute(t, "wineries", "get", "no-such-winery")
	require.Error(t, err)
}

func TestCommands_InvalidConfig(t *testing.T) {
	setupCatalogEnv(t)
	t.Setenv("WINERY_REVIEW_DEFAULT_STATUS", "published")

	_, err := execute(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
}
