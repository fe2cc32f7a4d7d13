// Package session connects a transfer.Manager to the outside world: it
// sends the manager's commands to the peer, feeds peer commands back in,
// drives the confirmation prompt and cancels the transfer on errors and
// interrupts.
//
// A Session is single threaded. The caller delivers peer commands, key
// presses, signals and timer callbacks one at a time from the same
// goroutine.
package session

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jamesainslie/ferry/pkg/ferry/logging"
	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
	"github.com/jamesainslie/ferry/pkg/ferry/transfer"
	"github.com/jamesainslie/ferry/pkg/ferry/types"
	"github.com/samber/lo"
)

// Default grace periods before quitting without a cancel acknowledgement.
const (
	DefaultCancelGrace    = 5 * time.Second
	DefaultTerminateGrace = 2 * time.Second
)

// Errors recorded in Result when the session did not complete.
var (
	ErrCanceled    = errors.New("transfer canceled by terminal")
	ErrAborted     = errors.New("transfer aborted by user")
	ErrInterrupted = errors.New("interrupt requested")
	ErrTerminated  = errors.New("terminate requested")

	ErrDisconnected = errors.New("connection to terminal lost")
)

// Sender delivers a command to the peer.
type Sender interface {
	Send(cmd protocol.Command) error
}

// Renderer shows session output to the user.
type Renderer interface {
	// Println shows a status line.
	Println(text string)
	// PrintError shows an error line.
	PrintError(text string)
	// ShowPlan lists the planned transfers before asking for confirmation.
	ShowPlan(plan Plan)
	// ShowPrompt asks the user to press y or n.
	ShowPrompt()
	// ShowProgress updates the progress display.
	ShowProgress(p transfer.Progress)
}

// Scheduler runs fn after d has elapsed, on the session's goroutine.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// PlanItem is one line of the confirmation listing.
type PlanItem struct {
	Type      protocol.FileType
	Name      string
	LocalPath string

	// Exists reports that something is already at LocalPath and will be
	// replaced.
	Exists bool
}

// Plan is the confirmation listing.
type Plan struct {
	Items     []PlanItem
	TotalSize int64
}

// Summary returns the line printed below the listing.
func (p Plan) Summary() string {
	return fmt.Sprintf("Transferring %d file(s) of total size: %s", len(p.Items), types.FormatSize(p.TotalSize))
}

// Options configures a Session.
type Options struct {
	RequestID   string
	Specs       []string
	Mode        transfer.Mode
	Destination string

	// ConfirmPaths shows the plan and waits for y/n before requesting
	// content.
	ConfirmPaths bool

	// CompressMinSize is passed to transfer.CollectOptions. Zero means
	// the default threshold and negative disables compression.
	CompressMinSize int64

	CancelGrace    time.Duration
	TerminateGrace time.Duration

	// Expand resolves ~ in local paths. Nil leaves paths unchanged.
	Expand func(string) string

	// Clock is the time source. Nil means time.Now.
	Clock func() time.Time
}

// Result summarizes a finished session.
type Result struct {
	RequestID  string
	ExitCode   int
	Err        error
	Files      int
	Bytes      int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Session is one interactive receive.
type Session struct {
	opts    Options
	manager *transfer.Manager
	sender  Sender
	render  Renderer
	sched   Scheduler
	quit    func(code int)
	log     *logging.Logger

	confirming bool
	aborting   bool
	quitting   bool
	exitCode   int
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

// NewRequestID returns a random id for a new session.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// New creates a session. quit is called exactly once with the process exit
// code.
func New(opts Options, sender Sender, render Renderer, sched Scheduler, quit func(code int)) *Session {
	if opts.RequestID == "" {
		opts.RequestID = NewRequestID()
	}
	if opts.CancelGrace <= 0 {
		opts.CancelGrace = DefaultCancelGrace
	}
	if opts.TerminateGrace <= 0 {
		opts.TerminateGrace = DefaultTerminateGrace
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Expand == nil {
		opts.Expand = func(s string) string { return s }
	}

	return &Session{
		opts:    opts,
		manager: transfer.NewManager(opts.RequestID, opts.Specs, transfer.WithClock(opts.Clock)),
		sender:  sender,
		render:  render,
		sched:   sched,
		quit:    quit,
		log:     logging.Get("session").With("request", opts.RequestID),
	}
}

// Manager returns the underlying transfer manager.
func (s *Session) Manager() *transfer.Manager { return s.manager }

// Confirming reports whether the session is waiting for y or n.
func (s *Session) Confirming() bool { return s.confirming }

// Start announces the session to the peer.
func (s *Session) Start() error {
	s.startedAt = s.opts.Clock()
	s.render.Println("Scanning files…")
	s.log.Info("starting receive", "specs", len(s.opts.Specs), "mode", s.opts.Mode)
	for _, cmd := range s.manager.Start() {
		if err := s.sender.Send(cmd); err != nil {
			s.fail(err)
			return err
		}
	}
	return nil
}

// HandleCommand processes one command from the peer.
func (s *Session) HandleCommand(cmd protocol.Command) {
	if cmd.ID != s.opts.RequestID {
		s.log.Debug("ignoring command for another request", "id", cmd.ID)
		return
	}
	if cmd.Action == protocol.ActionStatus && cmd.Status == protocol.StatusCanceled {
		s.log.Info("terminal acknowledged cancel")
		if s.err == nil {
			s.err = ErrCanceled
		}
		s.finish(1)
		return
	}
	if s.quitting || s.aborting || s.manager.State() == transfer.StateCanceled {
		return
	}

	wasTransferring := s.manager.State() == transfer.StateTransferring
	if err := s.manager.Handle(cmd); err != nil {
		s.fail(err)
		return
	}

	if !wasTransferring && s.manager.State() == transfer.StateTransferring {
		s.metadataComplete()
		if s.quitting || s.aborting {
			return
		}
	}

	if cmd.Action == protocol.ActionData || cmd.Action == protocol.ActionEndData {
		s.render.ShowProgress(s.manager.Progress().Snapshot())
	}
	if s.manager.Done() {
		s.complete()
	}
}

func (s *Session) metadataComplete() {
	err := s.manager.Collect(transfer.CollectOptions{
		Mode:            s.opts.Mode,
		Destination:     s.opts.Destination,
		Expand:          s.opts.Expand,
		CompressMinSize: s.opts.CompressMinSize,
	})
	switch {
	case err == nil:
	case errors.Is(err, transfer.ErrSourceFailure):
		s.render.PrintError("Failed to process some sources")
		failed := s.manager.FailedSpecs()
		for _, spec := range s.opts.Specs {
			if reason, ok := failed[spec]; ok {
				s.render.Println(fmt.Sprintf("%s: %s", spec, reason))
			}
		}
		s.abortWith(err, s.opts.CancelGrace)
		return
	case errors.Is(err, transfer.ErrNoMatchingSources):
		s.render.PrintError("No matches found for: " + strings.Join(s.manager.UnmatchedSpecs(), ", "))
		s.abortWith(err, s.opts.CancelGrace)
		return
	default:
		s.fail(err)
		return
	}

	if s.opts.ConfirmPaths {
		s.confirming = true
		s.render.ShowPlan(s.plan())
		s.render.ShowPrompt()
		return
	}
	s.startTransfer()
}

func (s *Session) plan() Plan {
	files := s.manager.Files()
	return Plan{
		Items: lo.Map(files, func(f *transfer.File, _ int) PlanItem {
			_, err := os.Lstat(f.LocalPath)
			return PlanItem{
				Type:      f.Type,
				Name:      f.DisplayName,
				LocalPath: f.LocalPath,
				Exists:    err == nil,
			}
		}),
		TotalSize: s.manager.Progress().TotalSize,
	}
}

func (s *Session) startTransfer() {
	s.confirming = false
	s.render.Println(fmt.Sprintf("Queueing transfer of %d files(s)", len(s.manager.Files())))

	cmds, err := s.manager.ContentRequests()
	for _, cmd := range cmds {
		if serr := s.sender.Send(cmd); serr != nil {
			s.fail(serr)
			return
		}
	}
	if err != nil {
		s.fail(err)
		return
	}
	if s.manager.Done() {
		s.complete()
	}
}

// HandleText processes typed text. Only y and n while the plan is shown
// have an effect.
func (s *Session) HandleText(text string) {
	if s.quitting || !s.confirming {
		return
	}
	switch strings.ToLower(text) {
	case "y":
		s.startTransfer()
	case "n":
		s.confirming = false
		s.abortWith(ErrAborted, s.opts.CancelGrace)
		s.render.Println("Sending cancel request to terminal")
	default:
		s.render.ShowPrompt()
	}
}

// HandleEscape declines the plan while it is shown and interrupts the
// transfer otherwise.
func (s *Session) HandleEscape() {
	if s.quitting {
		return
	}
	if s.confirming {
		s.confirming = false
		s.abortWith(ErrAborted, s.opts.CancelGrace)
		s.render.Println("Sending cancel request to terminal")
		return
	}
	s.Interrupt()
}

// Interrupt handles SIGINT or ctrl+c.
func (s *Session) Interrupt() {
	if s.quitting {
		return
	}
	if s.aborting || s.manager.State() == transfer.StateCanceled {
		s.render.Println("Waiting for canceled acknowledgement from terminal, will abort in a few seconds if no response received")
		return
	}
	s.render.PrintError("Interrupt requested, cancelling transfer, transferred files are in undefined state")
	s.abortWith(ErrInterrupted, s.opts.CancelGrace)
}

// Terminate handles SIGTERM. It waits a shorter time for the
// acknowledgement than Interrupt.
func (s *Session) Terminate() {
	if s.quitting {
		return
	}
	s.render.PrintError("Terminate requested, cancelling transfer, transferred files are in undefined state")
	s.abortWith(ErrTerminated, s.opts.TerminateGrace)
}

// Disconnected reports that the transport stopped delivering commands. A
// nil err means the input simply ended.
func (s *Session) Disconnected(err error) {
	if s.quitting || s.aborting {
		return
	}
	if err == nil {
		err = ErrDisconnected
	}
	s.fail(err)
}

func (s *Session) fail(err error) {
	s.log.Error("transfer failed", "error", err)
	s.render.PrintError(err.Error())
	s.render.Println("Waiting to ensure terminal cancels transfer, will quit in a few seconds")
	s.abortWith(err, s.opts.CancelGrace)
}

// abortWith sends a cancel to the peer and quits with code 1 after grace
// unless the peer acknowledges first.
func (s *Session) abortWith(err error, grace time.Duration) {
	if s.err == nil {
		s.err = err
	}
	s.aborting = true
	s.confirming = false
	if serr := s.sender.Send(protocol.Cancel(s.opts.RequestID)); serr != nil {
		s.log.Warn("could not send cancel", "error", serr)
	}
	s.manager.Cancel()
	s.log.Info("cancel sent", "grace", grace)
	s.sched.After(grace, func() { s.finish(1) })
}

func (s *Session) complete() {
	p := s.manager.Progress().Snapshot()
	s.render.ShowProgress(p)
	s.render.Println(fmt.Sprintf("Received %d file(s), %s in %s",
		len(s.manager.Files()), types.FormatSize(p.Transferred), p.Elapsed.Round(time.Millisecond)))
	s.finish(0)
}

func (s *Session) finish(code int) {
	if s.quitting {
		return
	}
	s.quitting = true
	s.exitCode = code
	s.finishedAt = s.opts.Clock()
	s.quit(code)
}

// Result returns the outcome. It is meaningful once quit has been called.
func (s *Session) Result() Result {
	return Result{
		RequestID:  s.opts.RequestID,
		ExitCode:   s.exitCode,
		Err:        s.err,
		Files:      len(s.manager.Files()),
		Bytes:      s.manager.Progress().Transferred,
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
	}
}
