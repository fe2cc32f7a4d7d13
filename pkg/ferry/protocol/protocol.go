// Package protocol defines the logical commands exchanged with the peer
// during a file transfer. It knows nothing about how commands are framed on
// the terminal; see package wire for that.
package protocol

import (
	"fmt"
	"strings"
)

// Action identifies what a command asks for or reports.
type Action int

// Actions understood by the receiver. The zero value is ActionInvalid.
const (
	ActionInvalid Action = iota
	ActionSend
	ActionFile
	ActionData
	ActionEndData
	ActionReceive
	ActionCancel
	ActionStatus
	ActionFinish
)

var actionNames = map[Action]string{
	ActionInvalid: "invalid",
	ActionSend:    "send",
	ActionFile:    "file",
	ActionData:    "data",
	ActionEndData: "end_data",
	ActionReceive: "receive",
	ActionCancel:  "cancel",
	ActionStatus:  "status",
	ActionFinish:  "finish",
}

// String returns the wire name of the action.
func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction parses a wire action name. Unknown names yield ActionInvalid.
func ParseAction(s string) Action {
	for a, name := range actionNames {
		if name == s {
			return a
		}
	}
	return ActionInvalid
}

// FileType classifies a remote file-system entry.
type FileType int

// File types. FileTypeLink is a hard link.
const (
	FileTypeRegular FileType = iota
	FileTypeDirectory
	FileTypeSymlink
	FileTypeLink
)

var fileTypeNames = map[FileType]string{
	FileTypeRegular:   "regular",
	FileTypeDirectory: "directory",
	FileTypeSymlink:   "symlink",
	FileTypeLink:      "link",
}

// String returns the wire name of the file type.
func (t FileType) String() string {
	if s, ok := fileTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("filetype(%d)", int(t))
}

// ShortText is the fixed-width badge used when listing planned transfers.
func (t FileType) ShortText() string {
	switch t {
	case FileTypeDirectory:
		return "dir "
	case FileTypeSymlink:
		return "sym "
	case FileTypeLink:
		return "lnk "
	default:
		return "file"
	}
}

// ParseFileType parses a wire file type name.
func ParseFileType(s string) (FileType, error) {
	for t, name := range fileTypeNames {
		if name == s {
			return t, nil
		}
	}
	return FileTypeRegular, fmt.Errorf("unknown file type %q", s)
}

// Compression is the content encoding requested for a file.
type Compression int

// Supported compressions.
const (
	CompressionNone Compression = iota
	CompressionZlib
)

// String returns the wire name of the compression.
func (c Compression) String() string {
	if c == CompressionZlib {
		return "zlib"
	}
	return "none"
}

// ParseCompression parses a wire compression name.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zlib":
		return CompressionZlib, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q", s)
	}
}

// Status values with special meaning.
const (
	StatusOK       = "OK"
	StatusCanceled = "CANCELED"
)

// Command is one decoded protocol command. Which fields are meaningful
// depends on Action.
type Command struct {
	Action      Action
	ID          string
	FileID      string
	Name        string
	Status      string
	Parent      string
	Data        []byte
	Size        int64
	MTime       int64
	Permissions uint32
	Type        FileType
	Compression Compression
}

// String renders the command for logs and protocol violation messages.
// Data is summarized by length.
func (c Command) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Command{action=%s", c.Action)
	if c.ID != "" {
		fmt.Fprintf(&b, " id=%s", c.ID)
	}
	if c.FileID != "" {
		fmt.Fprintf(&b, " file_id=%s", c.FileID)
	}
	if c.Name != "" {
		fmt.Fprintf(&b, " name=%q", c.Name)
	}
	if c.Status != "" {
		fmt.Fprintf(&b, " status=%q", c.Status)
	}
	if c.Parent != "" {
		fmt.Fprintf(&b, " parent=%s", c.Parent)
	}
	if c.Action == ActionFile {
		fmt.Fprintf(&b, " type=%s size=%d", c.Type, c.Size)
	}
	if len(c.Data) > 0 {
		fmt.Fprintf(&b, " data=%dB", len(c.Data))
	}
	b.WriteString("}")
	return b.String()
}

// Receive starts a receive request for count specs.
func Receive(id string, count int) Command {
	return Command{Action: ActionReceive, ID: id, Size: int64(count)}
}

// Announce names the spec with the given index.
func Announce(id string, index int, spec string) Command {
	return Command{Action: ActionFile, ID: id, FileID: fmt.Sprint(index), Name: spec}
}

// Request asks the peer for the contents of a remote file.
func Request(id, fileID, remotePath string, c Compression) Command {
	return Command{Action: ActionFile, ID: id, FileID: fileID, Name: remotePath, Compression: c}
}

// Cancel asks the peer to abort the transfer.
func Cancel(id string) Command {
	return Command{Action: ActionCancel, ID: id}
}
