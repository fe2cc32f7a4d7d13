package protocol_test

import (
	"testing"

	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want protocol.Action
	}{
		{"receive", protocol.ActionReceive},
		{"file", protocol.ActionFile},
		{"data", protocol.ActionData},
		{"end_data", protocol.ActionEndData},
		{"status", protocol.ActionStatus},
		{"cancel", protocol.ActionCancel},
		{"bogus", protocol.ActionInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, protocol.ParseAction(tt.in))
		})
	}
}

func TestParseFileType(t *testing.T) {
	ft, err := protocol.ParseFileType("symlink")
	require.NoError(t, err)
	assert.Equal(t, protocol.FileTypeSymlink, ft)

	_, err = protocol.ParseFileType("fifo")
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	c, err := protocol.ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, protocol.CompressionNone, c)

	c, err = protocol.ParseCompression("zlib")
	require.NoError(t, err)
	assert.Equal(t, protocol.CompressionZlib, c)

	_, err = protocol.ParseCompression("lz4")
	assert.Error(t, err)
}

func TestConstructors(t *testing.T) {
	rc := protocol.Receive("req", 3)
	assert.Equal(t, protocol.ActionReceive, rc.Action)
	assert.Equal(t, int64(3), rc.Size)

	an := protocol.Announce("req", 1, "~/notes")
	assert.Equal(t, "1", an.FileID)
	assert.Equal(t, "~/notes", an.Name)

	cc := protocol.Cancel("req")
	assert.Equal(t, protocol.ActionCancel, cc.Action)
	assert.Equal(t, "req", cc.ID)
}

func TestCommandString(t *testing.T) {
	cmd := protocol.Command{Action: protocol.ActionData, FileID: "7", Data: []byte("hello")}
	s := cmd.String()
	assert.Contains(t, s, "action=data")
	assert.Contains(t, s, "file_id=7")
	assert.Contains(t, s, "data=5B")
}
