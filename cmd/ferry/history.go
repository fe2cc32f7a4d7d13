package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jamesainslie/ferry/pkg/ferry/journal"
	"github.com/jamesainslie/ferry/pkg/ferry/types"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past receive sessions",
	Long: `View the history of receive sessions.

The journal stores a record of every session ferry ran, including what
was requested, where it was placed and how it ended.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show details of a specific session",
	Long:  `Display detailed information about a specific session by its ID.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old history entries",
	Long:  `Remove all but the most recent sessions from the journal.`,
	RunE:  runHistoryClean,
}

var (
	historyLimit int
	historyKeep  int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")
	historyCleanCmd.Flags().IntVarP(&historyKeep, "keep", "k", 100, "number of recent sessions to keep")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// openJournal opens the configured journal.
func openJournal() (*journal.Journal, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	j, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return j, nil
}

// runHistory lists recent sessions.
func runHistory(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	entries, err := j.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'ferry receive SOURCE DESTINATION' to receive files.")
		return nil
	}

	writeHistoryTable(cmd.OutOrStdout(), entries)
	printInfo("\nShowing %d entries. Use --limit to see more.", len(entries))
	printInfo("Use 'ferry history show <id>' for details on a specific entry.")
	return nil
}

// writeHistoryTable prints one line per session.
func writeHistoryTable(w io.Writer, entries []*journal.Entry) {
	fmt.Fprintf(w, "\n%-32s  %-16s  %-8s  %6s  %10s  %s\n", "ID", "STARTED", "STATUS", "FILES", "SIZE", "SOURCES")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, entry := range entries {
		fmt.Fprintf(w, "%-32s  %-16s  %-8s  %6d  %10s  %s\n",
			truncateString(entry.ID, 32),
			entry.StartedAt.Format("2006-01-02 15:04"),
			entry.Status,
			entry.Files,
			types.FormatSize(entry.Bytes),
			truncateString(strings.Join(entry.Specs, " "), 40),
		)
	}

	fmt.Fprintln(w, strings.Repeat("-", 100))
}

// runHistoryShow displays details of a specific session.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	entry, err := j.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	writeHistoryEntry(cmd.OutOrStdout(), entry)
	return nil
}

// writeHistoryEntry prints the details of one session.
func writeHistoryEntry(w io.Writer, entry *journal.Entry) {
	fmt.Fprintln(w, "\nSession Details")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "ID:          %s\n", entry.ID)
	fmt.Fprintf(w, "Started:     %s\n", entry.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Duration:    %s\n", entry.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "Status:      %s\n", entry.Status)
	fmt.Fprintf(w, "Mode:        %s\n", entry.Mode)
	if entry.Destination != "" {
		fmt.Fprintf(w, "Destination: %s\n", entry.Destination)
	}
	fmt.Fprintf(w, "Files:       %d\n", entry.Files)
	fmt.Fprintf(w, "Received:    %s\n", types.FormatSize(entry.Bytes))
	if entry.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", entry.Error)
	}

	if len(entry.Specs) > 0 {
		fmt.Fprintln(w, "\nSources:")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, spec := range entry.Specs {
			fmt.Fprintln(w, spec)
		}
	}
}

// runHistoryClean prunes old sessions.
func runHistoryClean(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	printInfo("Keeping the %d most recent sessions...", historyKeep)
	removed, err := j.Prune(historyKeep)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	printInfo("Removed %d history entries.", removed)
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
