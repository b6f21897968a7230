package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/developingchet/sessiongate/internal/config"
	"github.com/spf13/cobra"
)

// buildRoot constructs the root command as main() does, for use in tests.
func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "sessiongate",
		Short: "Access gate for connecting player sessions",
	}
	root.AddCommand(runCmd(), healthcheckCmd(), versionCmd(), ruleCmd())
	return root
}

// TestRootSubcommands verifies all expected subcommands are registered.
func TestRootSubcommands(t *testing.T) {
	root := buildRoot()

	registered := make(map[string]bool)
	for _, cmd := range root.Commands() {
		registered[strings.Fields(cmd.Use)[0]] = true
	}

	for _, want := range []string{"run", "version", "healthcheck", "rule"} {
		if !registered[want] {
			t.Errorf("subcommand %q not registered on root command", want)
		}
	}
}

// TestVersionOutput verifies the version subcommand prints the binary name.
func TestVersionOutput(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	oldStdout := os.Stdout
	os.Stdout = w

	root := buildRoot()
	root.SetArgs([]string{"version"})
	execErr := root.Execute()

	w.Close()
	os.Stdout = oldStdout

	if execErr != nil {
		t.Fatalf("version command returned error: %v", execErr)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(buf.String(), "sessiongate") {
		t.Errorf("version output %q does not contain expected string %q", buf.String(), "sessiongate")
	}
}

// TestRunDaemonInvalidConfig verifies runDaemon returns an error (not panics)
// when the configured mode is invalid.
func TestRunDaemonInvalidConfig(t *testing.T) {
	t.Setenv("MODE", "greylist")

	err := runDaemon()
	if err == nil {
		t.Fatal("expected runDaemon() to return an error with an invalid MODE")
	}
}

// TestLoadInvalidMode verifies config.Load returns a descriptive error
// when MODE is set to an unknown value.
func TestLoadInvalidMode(t *testing.T) {
	t.Setenv("MODE", "greylist")

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected config.Load() to return an error with an invalid MODE")
	}
	if !strings.Contains(err.Error(), "MODE") {
		t.Errorf("expected error message to mention MODE; got: %v", err)
	}
}
