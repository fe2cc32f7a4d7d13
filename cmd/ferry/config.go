package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/jamesainslie/ferry/pkg/ferry/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage ferry configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/ferry/config.yaml (if set)
  2. ~/.config/ferry/config.yaml

Environment variables can override config file settings using the FERRY_ prefix:
  FERRY_MODE=mirror
  FERRY_CONFIRM_PATHS=true
  FERRY_COMPRESSION_MIN_SIZE=64KiB`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

// configEnvVars lists the environment overrides shown by config show.
var configEnvVars = []string{
	"FERRY_MODE",
	"FERRY_CONFIRM_PATHS",
	"FERRY_CANCEL_GRACE",
	"FERRY_TERMINATE_GRACE",
	"FERRY_COMPRESSION_ENABLED",
	"FERRY_COMPRESSION_MIN_SIZE",
	"FERRY_JOURNAL_ENABLED",
	"FERRY_JOURNAL_PATH",
	"FERRY_LOGGING_LEVEL",
	"FERRY_LOGGING_PATH",
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// configPath returns --config if given, otherwise the default file.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.ConfigFile()
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if path, err := configPath(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			fmt.Fprintf(out, "Config file: %s\n\n", path)
		} else {
			fmt.Fprintln(out, "Config file: (using defaults, no file found)")
			fmt.Fprintln(out)
		}
	}

	writeConfig(out, cfg)

	fmt.Fprintln(out, "\nEnvironment Overrides:")
	fmt.Fprintln(out, "----------------------")
	anyOverrides := false
	for _, name := range configEnvVars {
		if val := os.Getenv(name); val != "" {
			fmt.Fprintf(out, "%s=%s\n", name, val)
			anyOverrides = true
		}
	}
	if !anyOverrides {
		fmt.Fprintln(out, "(none)")
	}
	return nil
}

// writeConfig prints the effective settings.
func writeConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintln(w, "----------------------")
	fmt.Fprintf(w, "mode:                 %s\n", cfg.Mode)
	fmt.Fprintf(w, "confirm_paths:        %t\n", cfg.ConfirmPaths)
	fmt.Fprintf(w, "cancel_grace:         %s\n", cfg.CancelGrace)
	fmt.Fprintf(w, "terminate_grace:      %s\n", cfg.TerminateGrace)
	fmt.Fprintf(w, "compression.enabled:  %t\n", cfg.Compression.Enabled)
	fmt.Fprintf(w, "compression.min_size: %s\n", cfg.Compression.MinSize)
	fmt.Fprintf(w, "journal.enabled:      %t\n", cfg.Journal.Enabled)
	fmt.Fprintf(w, "journal.path:         %s\n", cfg.JournalPath())
	fmt.Fprintf(w, "logging.level:        %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "logging.path:         %s\n", cfg.Logging.Path)
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		var err error
		if path, err = config.WriteDefault(); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", path, editor)

	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := config.ConfigFile()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		printInfo("Config file already exists: %s", path)
		printInfo("Use 'ferry config edit' to modify it.")
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", path)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), path)

	if _, err := os.Stat(path); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
