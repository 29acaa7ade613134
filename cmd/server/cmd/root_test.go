package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedOutput string
		expectError    bool
	}{
		{
			name:           "help flag",
			args:           []string{"--help"},
			expectedOutput: "Places server",
		},
		{
			name:           "short help flag",
			args:           []string{"-h"},
			expectedOutput: "Places server",
		},
		{
			name:           "invalid flag",
			args:           []string{"--invalid-flag"},
			expectedOutput: "unknown flag: --invalid-flag",
			expectError:    true,
		},
		{
			name:           "migrate help lists subcommands",
			args:           []string{"migrate", "--help"},
			expectedOutput: "river",
		},
		{
			name:           "users create requires flags",
			args:           []string{"users", "create"},
			expectedOutput: `required flag(s) "email", "name" not set`,
			expectError:    true,
		},
		{
			name:           "migrate down rejects bad steps",
			args:           []string{"migrate", "down", "zero"},
			expectedOutput: "steps must be a positive integer",
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCommand()

			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			output := buf.String()
			if err != nil {
				output += err.Error()
			}

			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !strings.Contains(output, tt.expectedOutput) {
				t.Errorf("expected output to contain %q, got:\n%s", tt.expectedOutput, output)
			}
		})
	}
}

func TestRootCommandPersistentFlags(t *testing.T) {
	cmd := newRootCommand()

	for _, flag := range []string{"config", "log-level", "log-format"} {
		if f := cmd.PersistentFlags().Lookup(flag); f == nil {
			t.Errorf("expected persistent flag %q to be defined", flag)
		}
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	cmd := newRootCommand()

	for _, name := range []string{"serve", "migrate", "users", "version", "healthcheck"} {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	configPath, logLevel, logFormat = "", "debug", "console"
	defer func() { configPath, logLevel, logFormat = "", "", "" }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("expected flag overrides, got level=%q format=%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadDatabaseConfig_RejectsMemoryDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	if _, err := loadDatabaseConfig(); err == nil {
		t.Error("expected error for memory driver")
	}
}

// newRootCommand creates a fresh root command for testing. The serve
// command is replaced so that no server starts.
func newRootCommand() *cobra.Command {
	testRootCmd := &cobra.Command{
		Use:          "server",
		Short:        rootCmd.Short,
		Long:         rootCmd.Long,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	var configPath, logLevel, logFormat string
	testRootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (optional, uses env vars by default)")
	testRootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	testRootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: json)")

	// Commands are package-level variables; detach them from any previous parent.
	for _, sub := range []*cobra.Command{versionCmd, migrateCmd, usersCmd, healthcheckCmd} {
		if sub.HasParent() {
			sub.Parent().RemoveCommand(sub)
		}
		testRootCmd.AddCommand(sub)
	}
	testRootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: serveCmd.Short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	})

	return testRootCmd
}
