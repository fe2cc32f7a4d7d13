// Package transfer is the receiving side's transfer engine: it tracks the
// protocol state, turns the flat stream of remote records into a local
// tree, writes content as it arrives and finally creates links and applies
// metadata.
package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jamesainslie/ferry/pkg/ferry/logging"
	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
	"github.com/samber/lo"
)

// State is the protocol state of a Manager.
type State int

// States in the order a successful transfer passes through them.
const (
	StateAwaitingPermission State = iota
	StateAwaitingMetadata
	StateTransferring
	StateCanceled
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAwaitingPermission:
		return "awaiting_permission"
	case StateAwaitingMetadata:
		return "awaiting_metadata"
	case StateTransferring:
		return "transferring"
	case StateCanceled:
		return "canceled"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// CollectOptions configures placement and compression for Collect.
type CollectOptions struct {
	Mode        Mode
	Destination string
	Expand      func(string) string

	// CompressMinSize is the size a file must exceed to be requested
	// compressed. Zero means DefaultCompressMinSize and negative disables
	// compression.
	CompressMinSize int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source used for progress tracking.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager drives one receive session. It is not safe for concurrent use;
// every method must be called from the same goroutine.
type Manager struct {
	requestID string
	specs     []string

	state       State
	files       []*File
	routes      map[string]*File
	byRemoteID  map[string]*File
	specCounts  []int
	failedSpecs map[int]string
	remoteHome  string
	progress    *ProgressTracker
	nextLocalID int
	collected   bool
	requested   bool
	finalized   bool
	now         func() time.Time
}

// NewManager returns a manager for the given request id and source specs.
func NewManager(requestID string, specs []string, opts ...Option) *Manager {
	m := &Manager{
		requestID:   requestID,
		specs:       specs,
		state:       StateAwaitingPermission,
		routes:      make(map[string]*File),
		byRemoteID:  make(map[string]*File),
		specCounts:  make([]int, len(specs)),
		failedSpecs: make(map[int]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.progress = NewProgressTracker(m.now)
	return m
}

// RequestID returns the id every command of this session carries.
func (m *Manager) RequestID() string { return m.requestID }

// Specs returns the source specs.
func (m *Manager) Specs() []string { return m.specs }

// State returns the current protocol state.
func (m *Manager) State() State { return m.state }

// Files returns the records received so far, in arrival order.
func (m *Manager) Files() []*File { return m.files }

// Progress returns the progress tracker.
func (m *Manager) Progress() *ProgressTracker { return m.progress }

// RemoteHome returns the peer's home directory, known once metadata is
// complete.
func (m *Manager) RemoteHome() string { return m.remoteHome }

// Done reports whether every file has arrived and been finalized.
func (m *Manager) Done() bool { return m.state == StateDone }

// Start returns the commands that open the session: the receive request
// followed by one announcement per spec. It also starts the progress clock.
func (m *Manager) Start() []protocol.Command {
	cmds := make([]protocol.Command, 0, len(m.specs)+1)
	cmds = append(cmds, protocol.Receive(m.requestID, len(m.specs)))
	for i, spec := range m.specs {
		cmds = append(cmds, protocol.Announce(m.requestID, i, spec))
	}
	m.progress.Begin()
	return cmds
}

// Cancel marks the session canceled. Later commands are ignored.
func (m *Manager) Cancel() {
	m.state = StateCanceled
}

// Handle processes one command from the peer. A returned error is fatal to
// the session.
func (m *Manager) Handle(cmd protocol.Command) error {
	switch m.state {
	case StateAwaitingPermission:
		switch cmd.Action {
		case protocol.ActionStatus:
			if cmd.Status != protocol.StatusOK {
				return fmt.Errorf("%w: %s", ErrPermissionDenied, cmd.Status)
			}
			m.state = StateAwaitingMetadata
			return nil
		default:
			return unexpected(cmd)
		}

	case StateAwaitingMetadata:
		switch cmd.Action {
		case protocol.ActionStatus:
			if cmd.FileID != "" {
				idx, err := m.specIndex(cmd)
				if err != nil {
					return err
				}
				m.failedSpecs[idx] = cmd.Status
				return nil
			}
			if cmd.Status != protocol.StatusOK {
				return fmt.Errorf("%w: %s", ErrSourceFailure, cmd.Status)
			}
			m.remoteHome = cmd.Name
			m.state = StateTransferring
			return nil
		case protocol.ActionFile:
			idx, err := m.specIndex(cmd)
			if err != nil {
				return err
			}
			m.nextLocalID++
			f := newFile(cmd, idx, m.nextLocalID)
			m.specCounts[idx]++
			m.files = append(m.files, f)
			if f.RemoteID != "" {
				m.byRemoteID[f.RemoteID] = f
			}
			return nil
		default:
			return unexpected(cmd)
		}

	case StateTransferring:
		switch cmd.Action {
		case protocol.ActionData, protocol.ActionEndData:
			return m.handleData(cmd)
		case protocol.ActionStatus:
			if cmd.FileID != "" && cmd.Status != protocol.StatusOK {
				return fmt.Errorf("%w: file %s: %s", ErrSourceFailure, cmd.FileID, cmd.Status)
			}
			return nil
		default:
			logging.Get("transfer").Debug("ignoring command", "state", m.state, "command", cmd)
			return nil
		}

	case StateCanceled, StateDone:
		return nil
	}
	return nil
}

func (m *Manager) handleData(cmd protocol.Command) error {
	f, ok := m.routes[cmd.FileID]
	if !ok {
		return fmt.Errorf("%w: data for unknown file id %q", ErrUnknownRecord, cmd.FileID)
	}
	final := cmd.Action == protocol.ActionEndData
	n, err := f.ApplyChunk(cmd.Data, final)
	if err != nil {
		return err
	}
	m.progress.RecordChunk(f, int64(n), final)
	if !final {
		return nil
	}
	delete(m.routes, cmd.FileID)
	if len(m.routes) == 0 {
		return m.finalize()
	}
	return nil
}

func (m *Manager) specIndex(cmd protocol.Command) (int, error) {
	idx, err := strconv.Atoi(cmd.FileID)
	if err != nil || idx < 0 || idx >= len(m.specs) {
		return 0, unexpected(cmd)
	}
	return idx, nil
}

func unexpected(cmd protocol.Command) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, cmd)
}

// FailedSpecs returns the specs the peer could not process, mapped to the
// reason it gave.
func (m *Manager) FailedSpecs() map[string]string {
	out := make(map[string]string, len(m.failedSpecs))
	for idx, reason := range m.failedSpecs {
		out[m.specs[idx]] = reason
	}
	return out
}

// UnmatchedSpecs returns the specs no record matched, in order.
func (m *Manager) UnmatchedSpecs() []string {
	return lo.Filter(m.specs, func(_ string, i int) bool { return m.specCounts[i] == 0 })
}

// Preflight checks the metadata phase outcome before any content is
// requested. Specs the peer failed on are reported first, then specs that
// matched nothing.
func (m *Manager) Preflight() error {
	if len(m.failedSpecs) > 0 {
		idxs := lo.Keys(m.failedSpecs)
		sort.Ints(idxs)
		lines := lo.Map(idxs, func(i int, _ int) string {
			return fmt.Sprintf("%s: %s", m.specs[i], m.failedSpecs[i])
		})
		return fmt.Errorf("%w\n%s", ErrSourceFailure, strings.Join(lines, "\n"))
	}
	if unmatched := m.UnmatchedSpecs(); len(unmatched) > 0 {
		return fmt.Errorf("%w for: %s", ErrNoMatchingSources, strings.Join(unmatched, ", "))
	}
	return nil
}

// Collect places every record and decides per-file compression. It runs
// once, after metadata is complete and preflight has passed.
func (m *Manager) Collect(opts CollectOptions) error {
	if m.state != StateTransferring {
		return fmt.Errorf("%w: collect in state %s", ErrProtocolViolation, m.state)
	}
	if m.collected {
		return fmt.Errorf("%w: files already collected", ErrProtocolViolation)
	}
	if err := m.Preflight(); err != nil {
		return err
	}

	err := Place(m.files, len(m.specs), PlaceOptions{
		Mode:        opts.Mode,
		Destination: opts.Destination,
		RemoteHome:  m.remoteHome,
		Expand:      opts.Expand,
	})
	if err != nil {
		return err
	}
	m.collected = true

	minSize := opts.CompressMinSize
	if minSize == 0 {
		minSize = DefaultCompressMinSize
	}
	var total int64
	for _, f := range m.files {
		f.Compression = CompressionFor(f, minSize)
		total += max(0, f.ExpectedSize)
	}
	m.progress.TotalSize = total
	return nil
}

// ContentRequests registers a route for every record that has content and
// returns the matching requests. Directories and hard links to a known
// record have none. When nothing needs content the finalize pass runs
// immediately and its error, if any, is returned.
func (m *Manager) ContentRequests() ([]protocol.Command, error) {
	if !m.collected {
		return nil, fmt.Errorf("%w: content requested before collect", ErrProtocolViolation)
	}
	if m.requested {
		return nil, fmt.Errorf("%w: content already requested", ErrProtocolViolation)
	}
	m.requested = true

	var cmds []protocol.Command
	for _, f := range m.files {
		if f.Type == protocol.FileTypeDirectory || (f.Type == protocol.FileTypeLink && f.RemoteTarget != "") {
			continue
		}
		m.routes[f.LocalID] = f
		cmds = append(cmds, protocol.Request(m.requestID, f.LocalID, f.RemotePath, f.Compression))
	}
	if len(m.routes) == 0 {
		return cmds, m.finalize()
	}
	return cmds, nil
}

// finalize creates directories and links in arrival order, then applies
// metadata in reverse so that parents are stamped after their children.
func (m *Manager) finalize() error {
	if m.finalized {
		return nil
	}
	m.finalized = true
	log := logging.Get("transfer")

	for _, f := range m.files {
		var err error
		switch f.Type {
		case protocol.FileTypeDirectory:
			if err = os.MkdirAll(f.LocalPath, 0o755); err != nil {
				err = localIO("mkdir", f.LocalPath, err)
			}
		case protocol.FileTypeLink:
			err = m.createHardlink(f)
		case protocol.FileTypeSymlink:
			err = m.createSymlink(f)
		}
		if err != nil {
			log.Error("finalize failed", "path", f.LocalPath, "error", err)
			return err
		}
	}

	for i := len(m.files) - 1; i >= 0; i-- {
		if issue := m.files[i].ApplyMetadata(); issue != nil {
			log.Warn("could not apply metadata", "issue", issue.String())
		}
	}

	m.state = StateDone
	log.Info("transfer complete", "files", len(m.files), "bytes", m.progress.Transferred)
	return nil
}

func (m *Manager) createHardlink(f *File) error {
	target, ok := m.byRemoteID[f.RemoteTarget]
	if !ok {
		return fmt.Errorf("%w: hard link target %q not found", ErrUnknownRecord, f.RemoteTarget)
	}
	if err := prepareLinkPath(f.LocalPath); err != nil {
		return err
	}
	if err := os.Link(target.LocalPath, f.LocalPath); err != nil {
		return localIO("link", f.LocalPath, err)
	}
	return nil
}

func (m *Manager) createSymlink(f *File) error {
	value := f.SymlinkValue()
	if f.RemoteTarget != "" {
		target, ok := m.byRemoteID[f.RemoteTarget]
		if !ok {
			return fmt.Errorf("%w: symbolic link target %q not found", ErrUnknownRecord, f.RemoteTarget)
		}
		value = target.LocalPath
		if !strings.HasPrefix(f.SymlinkValue(), "/") {
			rel, err := filepath.Rel(filepath.Dir(f.LocalPath), target.LocalPath)
			if err != nil {
				return localIO("symlink", f.LocalPath, err)
			}
			value = rel
		}
	}
	if err := prepareLinkPath(f.LocalPath); err != nil {
		return err
	}
	if err := os.Symlink(value, f.LocalPath); err != nil {
		return localIO("symlink", f.LocalPath, err)
	}
	return nil
}

// prepareLinkPath creates the parent of a link and removes a non-directory
// entry already occupying its path.
func prepareLinkPath(p string) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return localIO("mkdir", dir, err)
	}
	return removeEntry(p)
}
