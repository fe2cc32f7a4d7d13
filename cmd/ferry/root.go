package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jamesainslie/ferry/pkg/ferry/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "ferry",
		Short: "Receive files over the terminal file transfer protocol",
		Long: `Ferry receives files from a terminal that speaks the OSC 5113 file
transfer protocol, recreating them locally.

Examples:
  ferry receive ~/notes.txt .            # Copy a remote file into the current directory
  ferry receive a.txt b.txt /tmp/out/    # Several sources into a directory
  ferry receive --mirror ~/src/project   # Recreate the remote path locally
  ferry history                          # View past sessions
  ferry config show                      # Show configuration`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/ferry/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig enables FERRY_ environment overrides for the global flags.
// The full configuration is read by loadConfig.
func initConfig() {
	viper.SetEnvPrefix("FERRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the configuration, honoring --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// exitError ends the process with a specific code. Its message has
// already been shown to the user.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
