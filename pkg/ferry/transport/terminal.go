package transport

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
	"github.com/jamesainslie/ferry/pkg/ferry/wire"
	"golang.org/x/term"
)

// Terminal multiplexes protocol commands with the user's terminal I/O.
//
// Input is split: OSC 5113 payloads become commands, everything else is
// made available through Input for the UI to read keys from. Output from
// Send and Write share one lock so protocol frames never interleave with
// UI drawing.
type Terminal struct {
	in  io.Reader
	out io.Writer

	writeMu sync.Mutex

	keysR *io.PipeReader
	keysW *io.PipeWriter

	fd    int
	state *term.State
}

var _ Transport = (*Terminal)(nil)

// NewTerminal returns a transport reading from in and writing to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	r, w := io.Pipe()
	t := &Terminal{in: in, out: out, keysR: r, keysW: w, fd: -1}
	if f, ok := in.(*os.File); ok {
		t.fd = int(f.Fd())
	}
	return t
}

// IsTerminal reports whether the input is a terminal.
func (t *Terminal) IsTerminal() bool {
	return t.fd >= 0 && term.IsTerminal(t.fd)
}

// MakeRaw puts the input terminal into raw mode. It does nothing when the
// input is not a terminal.
func (t *Terminal) MakeRaw() error {
	if !t.IsTerminal() || t.state != nil {
		return nil
	}
	state, err := term.MakeRaw(t.fd)
	if err != nil {
		return err
	}
	t.state = state
	return nil
}

// Restore undoes MakeRaw.
func (t *Terminal) Restore() error {
	if t.state == nil {
		return nil
	}
	err := term.Restore(t.fd, t.state)
	t.state = nil
	return err
}

// Size returns the terminal's width and height.
func (t *Terminal) Size() (width, height int, err error) {
	if !t.IsTerminal() {
		return 0, 0, errors.New("not a terminal")
	}
	return term.GetSize(t.fd)
}

// Input returns the non-protocol part of the input.
func (t *Terminal) Input() io.Reader {
	return t.keysR
}

// Write writes UI output to the terminal.
func (t *Terminal) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.out.Write(p)
}

// Send frames a command and writes it to the terminal.
func (t *Terminal) Send(cmd protocol.Command) error {
	_, err := t.Write([]byte(wire.Frame(wire.Encode(cmd))))
	return err
}

// Run splits the input until it ends or ctx is done. The key stream
// returned by Input is closed when Run returns.
func (t *Terminal) Run(ctx context.Context, onCommand func(protocol.Command)) error {
	splitter := wire.NewSplitter(t.keysW, decodeTo(onCommand))

	done := make(chan error, 1)
	go func() {
		done <- splitter.Run(t.in)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	_ = t.keysW.CloseWithError(io.EOF)
	return err
}

// Close restores the terminal and closes the key stream.
func (t *Terminal) Close() error {
	_ = t.keysW.Close()
	return t.Restore()
}
