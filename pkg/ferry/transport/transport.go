// Package transport carries protocol commands between ferry and the peer.
//
// Terminal is the normal transport: commands travel as OSC sequences over
// the controlling terminal, interleaved with keyboard input. WebSocket
// carries one encoded payload per message for peers reachable over the
// network.
package transport

import (
	"context"

	"github.com/jamesainslie/ferry/pkg/ferry/logging"
	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
	"github.com/jamesainslie/ferry/pkg/ferry/wire"
)

// Transport sends commands to the peer and delivers the peer's commands.
type Transport interface {
	// Send delivers one command. It is safe for concurrent use.
	Send(cmd protocol.Command) error

	// Run reads from the peer until the input ends, ctx is done or a read
	// fails, calling onCommand for every decoded command.
	Run(ctx context.Context, onCommand func(protocol.Command)) error

	Close() error
}

// decodeTo returns a payload callback that decodes payloads and forwards
// the commands. Undecodable payloads are logged and dropped.
func decodeTo(onCommand func(protocol.Command)) func(string) {
	log := logging.Get("transport")
	return func(payload string) {
		cmd, err := wire.Decode(payload)
		if err != nil {
			log.Warn("dropping malformed command", "error", err, "bytes", len(payload))
			return
		}
		log.Debug("received", "action", cmd.Action, "file_id", cmd.FileID)
		onCommand(cmd)
	}
}
