// Package wire encodes protocol commands as key=value payloads and frames
// them as OSC control sequences so they can travel over a terminal.
//
// A payload is a list of `key=value` fields separated by `;`. Free-text and
// binary fields (name, status, data) are base64 encoded; everything else is
// plain ASCII. A framed command looks like:
//
//	ESC ] 5113 ; ac=file;id=abc;fid=1;n=fi9ub3Rlcw ESC \
package wire

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
)

// Code is the OSC number that carries file transfer commands.
const Code = 5113

const (
	oscStart = "\x1b]"
	oscEnd   = "\x1b\\"
)

// ErrMalformed is returned when a payload cannot be decoded.
var ErrMalformed = errors.New("malformed transfer command")

// Frame wraps an encoded payload in the OSC envelope.
func Frame(payload string) string {
	return oscStart + strconv.Itoa(Code) + ";" + payload + oscEnd
}

// Encode serializes a command into a payload.
func Encode(cmd protocol.Command) string {
	fields := make([]string, 0, 12)
	add := func(k, v string) {
		fields = append(fields, k+"="+v)
	}

	add("ac", cmd.Action.String())
	if cmd.ID != "" {
		add("id", cmd.ID)
	}
	if cmd.FileID != "" {
		add("fid", cmd.FileID)
	}
	if cmd.Name != "" {
		add("n", b64(cmd.Name))
	}
	if cmd.Status != "" {
		add("st", b64(cmd.Status))
	}
	if cmd.Parent != "" {
		add("pr", cmd.Parent)
	}
	if cmd.Action == protocol.ActionFile && cmd.Type != protocol.FileTypeRegular {
		add("ft", cmd.Type.String())
	}
	if cmd.Compression != protocol.CompressionNone {
		add("zip", cmd.Compression.String())
	}
	if cmd.Size != 0 {
		add("sz", strconv.FormatInt(cmd.Size, 10))
	}
	if cmd.MTime != 0 {
		add("mod", strconv.FormatInt(cmd.MTime, 10))
	}
	if cmd.Permissions != 0 {
		add("prm", strconv.FormatUint(uint64(cmd.Permissions), 10))
	}
	if len(cmd.Data) > 0 {
		add("d", base64.RawStdEncoding.EncodeToString(cmd.Data))
	}
	return strings.Join(fields, ";")
}

// Decode parses a payload produced by Encode (or by a compatible peer).
// Unknown keys are ignored.
func Decode(payload string) (protocol.Command, error) {
	var cmd protocol.Command
	if payload == "" {
		return cmd, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	for _, field := range strings.Split(payload, ";") {
		if field == "" {
			continue
		}
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			return cmd, fmt.Errorf("%w: field %q has no value", ErrMalformed, field)
		}

		var err error
		switch key {
		case "ac":
			cmd.Action = protocol.ParseAction(val)
		case "id":
			cmd.ID = val
		case "fid":
			cmd.FileID = val
		case "pr":
			cmd.Parent = val
		case "n":
			cmd.Name, err = unb64(val)
		case "st":
			cmd.Status, err = unb64(val)
		case "d":
			cmd.Data, err = decodeBytes(val)
		case "ft":
			cmd.Type, err = protocol.ParseFileType(val)
		case "zip":
			cmd.Compression, err = protocol.ParseCompression(val)
		case "sz":
			cmd.Size, err = strconv.ParseInt(val, 10, 64)
		case "mod":
			cmd.MTime, err = strconv.ParseInt(val, 10, 64)
		case "prm":
			var p uint64
			p, err = strconv.ParseUint(val, 10, 32)
			cmd.Permissions = uint32(p)
		}
		if err != nil {
			return cmd, fmt.Errorf("%w: key %s: %w", ErrMalformed, key, err)
		}
	}

	if cmd.Action == protocol.ActionInvalid {
		return cmd, fmt.Errorf("%w: missing or unknown action", ErrMalformed)
	}
	return cmd, nil
}

func b64(s string) string {
	return base64.RawStdEncoding.EncodeToString([]byte(s))
}

func unb64(s string) (string, error) {
	b, err := decodeBytes(s)
	return string(b), err
}

// decodeBytes accepts both padded and unpadded base64.
func decodeBytes(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
