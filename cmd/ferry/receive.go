package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jamesainslie/ferry/cmd/ferry/tui"
	"github.com/jamesainslie/ferry/pkg/ferry/config"
	"github.com/jamesainslie/ferry/pkg/ferry/journal"
	"github.com/jamesainslie/ferry/pkg/ferry/logging"
	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
	"github.com/jamesainslie/ferry/pkg/ferry/session"
	"github.com/jamesainslie/ferry/pkg/ferry/transfer"
	"github.com/jamesainslie/ferry/pkg/ferry/transport"
	"github.com/spf13/cobra"
)

var receiveCmd = &cobra.Command{
	Use:   "receive [flags] SOURCE... [DESTINATION]",
	Short: "Receive files from the terminal",
	Long: `Receive files from the terminal ferry is running in.

In normal mode the last argument is the destination. With a single source
the source is written to exactly that path, unless the destination ends
with a path separator. With several sources, or a directory destination,
each source is placed inside it under its own name.

In mirror mode (--mirror) there is no destination: every source is
recreated locally at the same path it has on the remote machine, relative
to the home directory when it lives under the remote home.

Use --peer to talk to a sender over a WebSocket instead of the terminal.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReceive,
}

func init() {
	receiveCmd.Flags().Bool("mirror", false, "recreate sources at their remote paths")
	receiveCmd.Flags().Bool("confirm-paths", false, "show planned transfers and ask before starting")
	receiveCmd.Flags().String("peer", "", "receive from a WebSocket peer (ws://host/path) instead of the terminal")
	receiveCmd.Flags().String("compress-min-size", "", "request compression for files larger than this (e.g. 4KiB)")
	receiveCmd.Flags().Bool("no-compress", false, "never request compression")
	receiveCmd.Flags().Bool("no-journal", false, "do not record this session in the history")

	rootCmd.AddCommand(receiveCmd)
}

// receiveFlags holds the receive command line after parsing.
type receiveFlags struct {
	mirror          bool
	confirmPaths    bool
	peer            string
	compressMinSize string
	noCompress      bool
	noJournal       bool
}

func readReceiveFlags(cmd *cobra.Command) receiveFlags {
	var f receiveFlags
	f.mirror, _ = cmd.Flags().GetBool("mirror")
	f.confirmPaths, _ = cmd.Flags().GetBool("confirm-paths")
	f.peer, _ = cmd.Flags().GetString("peer")
	f.compressMinSize, _ = cmd.Flags().GetString("compress-min-size")
	f.noCompress, _ = cmd.Flags().GetBool("no-compress")
	f.noJournal, _ = cmd.Flags().GetBool("no-journal")
	return f
}

// splitArgs separates sources from the destination for the given mode.
func splitArgs(args []string, mode transfer.Mode) (specs []string, dest string, err error) {
	if len(args) == 0 {
		return nil, "", errors.New("must specify at least one file to transfer")
	}
	if mode == transfer.ModeMirror {
		return args, "", nil
	}
	if len(args) < 2 {
		return nil, "", errors.New("must specify at least one source and a destination file or directory")
	}
	return args[:len(args)-1], args[len(args)-1], nil
}

// sessionOptions merges configuration and flags into session options.
func sessionOptions(cfg *config.Config, flags receiveFlags, args []string) (session.Options, error) {
	mode, err := transfer.ParseMode(cfg.Mode)
	if err != nil {
		return session.Options{}, fmt.Errorf("mode: %w", err)
	}
	if flags.mirror {
		mode = transfer.ModeMirror
	}

	specs, dest, err := splitArgs(args, mode)
	if err != nil {
		return session.Options{}, err
	}

	if flags.compressMinSize != "" {
		cfg.Compression.Enabled = true
		cfg.Compression.MinSize = flags.compressMinSize
	}
	if flags.noCompress {
		cfg.Compression.Enabled = false
	}
	minSize, err := cfg.CompressMinSize()
	if err != nil {
		return session.Options{}, err
	}

	return session.Options{
		RequestID:       session.NewRequestID(),
		Specs:           specs,
		Mode:            mode,
		Destination:     dest,
		ConfirmPaths:    cfg.ConfirmPaths || flags.confirmPaths,
		CompressMinSize: minSize,
		CancelGrace:     cfg.CancelGrace,
		TerminateGrace:  cfg.TerminateGrace,
		Expand:          config.Expand,
	}, nil
}

// runReceive runs one interactive receive session.
func runReceive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := readReceiveFlags(cmd)

	opts, err := sessionOptions(cfg, flags, args)
	if err != nil {
		return err
	}

	if err := initTUILogging(cfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logging.Close() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var (
		tr       transport.Transport
		progOpts = []tea.ProgramOption{tea.WithoutSignalHandler()}
		width    int
	)
	if flags.peer != "" {
		printVerbose("Connecting to %s", flags.peer)
		ws, err := transport.DialWebSocket(ctx, flags.peer)
		if err != nil {
			return err
		}
		tr = ws
	} else {
		term := transport.NewTerminal(os.Stdin, os.Stdout)
		if !term.IsTerminal() {
			return errors.New("standard input is not a terminal, use --peer to receive over a WebSocket")
		}
		if err := term.MakeRaw(); err != nil {
			return fmt.Errorf("failed to put terminal into raw mode: %w", err)
		}
		if w, _, err := term.Size(); err == nil {
			width = w
		}
		progOpts = append(progOpts, tea.WithInput(term.Input()), tea.WithOutput(term))
		tr = term
	}
	defer func() { _ = tr.Close() }()

	model := tui.NewModel(tui.Options{Session: opts, Sender: tr, Width: width})
	p := tea.NewProgram(model, progOpts...)

	go func() {
		err := tr.Run(ctx, func(c protocol.Command) {
			p.Send(tui.CommandMsg(c))
		})
		if ctx.Err() == nil {
			p.Send(tui.TransportDoneMsg{Err: err})
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case sig := <-sigs:
				p.Send(tui.SignalMsg{Signal: sig})
			case <-ctx.Done():
				return
			}
		}
	}()

	final, err := p.Run()
	cancel()
	if err != nil {
		return fmt.Errorf("interface failed: %w", err)
	}

	m, ok := final.(tui.Model)
	if !ok {
		return fmt.Errorf("unexpected model type %T", final)
	}
	res := m.Result()

	if cfg.Journal.Enabled && !flags.noJournal {
		recordSession(cfg.JournalPath(), opts, res)
	}

	if res.ExitCode != 0 {
		return &exitError{code: res.ExitCode, err: res.Err}
	}
	return nil
}

// initTUILogging sends logs to the log file only; the terminal belongs to
// the interface and the protocol while a session runs.
func initTUILogging(cfg *config.Config) error {
	logCfg, err := cfg.LogConfig()
	if err != nil {
		return err
	}
	if getVerbose() {
		logCfg.Level = "debug"
	}
	logCfg.TUIMode = true
	return logging.Init(logCfg)
}

// journalEntry converts a session result into a history record.
func journalEntry(opts session.Options, res session.Result) *journal.Entry {
	entry := &journal.Entry{
		ID:          res.RequestID,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
		Specs:       opts.Specs,
		Destination: opts.Destination,
		Mode:        opts.Mode.String(),
		Files:       res.Files,
		Bytes:       res.Bytes,
		Status:      journal.StatusDone,
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now()
	}
	if entry.FinishedAt.IsZero() {
		entry.FinishedAt = entry.StartedAt
	}

	if res.ExitCode == 0 {
		return entry
	}
	switch {
	case errors.Is(res.Err, session.ErrCanceled),
		errors.Is(res.Err, session.ErrAborted),
		errors.Is(res.Err, session.ErrInterrupted),
		errors.Is(res.Err, session.ErrTerminated):
		entry.Status = journal.StatusCanceled
	default:
		entry.Status = journal.StatusFailed
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	return entry
}

// recordSession writes the session to the journal. Failures are logged
// and otherwise ignored.
func recordSession(path string, opts session.Options, res session.Result) {
	log := logging.Get("journal")

	j, err := journal.Open(path)
	if err != nil {
		log.Warn("could not open journal", "path", path, "error", err)
		return
	}
	defer func() { _ = j.Close() }()

	if err := j.Record(journalEntry(opts, res)); err != nil {
		log.Warn("could not record session", "id", res.RequestID, "error", err)
	}
}
