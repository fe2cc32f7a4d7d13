package transfer

import (
	"errors"
	"fmt"
)

// Error kinds reported by the transfer engine. Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	// ErrPermissionDenied is returned when the peer refuses the transfer.
	ErrPermissionDenied = errors.New("permission for transfer denied")

	// ErrProtocolViolation is returned for a command that makes no sense in
	// the current state, or one whose fields are inconsistent.
	ErrProtocolViolation = errors.New("unexpected response from peer")

	// ErrNoMatchingSources is returned when a source spec matched nothing.
	ErrNoMatchingSources = errors.New("no matches found")

	// ErrSourceFailure is returned when the peer reports that it could not
	// process one or more sources.
	ErrSourceFailure = errors.New("failed to process some sources")

	// ErrUnknownRecord is returned for data addressed to an unrouted file id,
	// or a link whose target record does not exist.
	ErrUnknownRecord = errors.New("unknown record")

	// ErrLocalIO wraps local file system failures.
	ErrLocalIO = errors.New("local i/o error")
)

// MetadataIssue describes a failure to apply timestamps or permissions to a
// received entry. It does not implement error; metadata problems never fail
// a transfer.
type MetadataIssue struct {
	Path  string
	Op    string
	Cause error
}

// String formats the issue for logs.
func (i *MetadataIssue) String() string {
	return fmt.Sprintf("%s %s: %v", i.Op, i.Path, i.Cause)
}

func localIO(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrLocalIO, op, path, err)
}
