package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/sys/unix"
)

// spoolSuffix names the sidecar file that collects compressed chunks until
// the final chunk arrives.
const spoolSuffix = ".ferry-zlib"

// mkdirAll is swapped out in tests to observe directory creation.
var mkdirAll = os.MkdirAll

// File is one remote file system entry and the state of its local copy.
type File struct {
	// RemoteID is the peer's identifier for the entry, used by children
	// (Parent) and links (RemoteTarget) to refer to it.
	RemoteID string

	// LocalID routes data chunks to this record. It is assigned by the
	// Manager in arrival order.
	LocalID string

	// SpecIndex is the source spec this entry matched.
	SpecIndex int

	Type         protocol.FileType
	RemotePath   string
	DisplayName  string
	Parent       string
	RemoteTarget string
	ExpectedSize int64
	MTime        int64
	Permissions  uint32

	// LocalPath is assigned once by placement.
	LocalPath string

	Transmitted int64
	StartedAt   time.Time
	DoneAt      time.Time
	Compression protocol.Compression

	symlinkValue []byte
	writeStarted bool
}

func newFile(cmd protocol.Command, specIndex int, localID int) *File {
	return &File{
		RemoteID:     cmd.Status,
		LocalID:      strconv.Itoa(localID),
		SpecIndex:    specIndex,
		Type:         cmd.Type,
		RemotePath:   cmd.Name,
		DisplayName:  SanitizeName(cmd.Name),
		Parent:       cmd.Parent,
		RemoteTarget: string(cmd.Data),
		ExpectedSize: cmd.Size,
		MTime:        cmd.MTime,
		Permissions:  cmd.Permissions,
	}
}

func (f *File) String() string {
	return fmt.Sprintf("File(remote=%q, local=%q)", f.RemotePath, f.LocalPath)
}

// SymlinkValue returns the link text received so far.
func (f *File) SymlinkValue() string {
	return string(f.symlinkValue)
}

func (f *File) setLocalPath(p string) error {
	if f.LocalPath != "" {
		return fmt.Errorf("%w: %s placed twice (%s, %s)", ErrProtocolViolation, f.RemotePath, f.LocalPath, p)
	}
	f.LocalPath = p
	return nil
}

// ApplyChunk applies one chunk of content and returns how many bytes this
// call appended on disk.
//
// Regular files create their parent directories on the first call only and
// then append. Symlink chunks accumulate the link text and never touch the
// disk. Directories and hard links have no content.
func (f *File) ApplyChunk(data []byte, final bool) (int, error) {
	switch f.Type {
	case protocol.FileTypeSymlink:
		f.symlinkValue = append(f.symlinkValue, data...)
		return 0, nil
	case protocol.FileTypeRegular:
	default:
		return 0, nil
	}

	if f.LocalPath == "" {
		return 0, fmt.Errorf("%w: %s has not been placed", ErrProtocolViolation, f.RemotePath)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if !f.writeStarted {
		dir := filepath.Dir(f.LocalPath)
		if err := mkdirAll(dir, 0o755); err != nil {
			return 0, localIO("mkdir", dir, err)
		}
		// A link left at the destination would redirect the write
		// outside the tree, so the entry is replaced rather than
		// truncated in place.
		for _, p := range []string{f.LocalPath, f.writePath()} {
			if err := removeEntry(p); err != nil {
				return 0, err
			}
		}
		f.writeStarted = true
		flags |= os.O_TRUNC
	}

	n, err := appendTo(f.writePath(), flags, data)
	if err != nil {
		return n, err
	}
	if final && f.Compression == protocol.CompressionZlib {
		if err := f.inflate(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (f *File) writePath() string {
	if f.Compression == protocol.CompressionZlib {
		return f.LocalPath + spoolSuffix
	}
	return f.LocalPath
}

// removeEntry removes a non-directory entry at p. A missing entry or a
// directory is left alone.
func removeEntry(p string) error {
	info, err := os.Lstat(p)
	if err != nil || info.IsDir() {
		return nil
	}
	if err := os.Remove(p); err != nil {
		return localIO("remove", p, err)
	}
	return nil
}

func appendTo(path string, flags int, data []byte) (int, error) {
	out, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return 0, localIO("open", path, err)
	}
	n, err := out.Write(data)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, localIO("write", path, err)
	}
	return n, nil
}

// inflate decompresses the spool into the destination and removes it.
func (f *File) inflate() error {
	spool := f.writePath()
	in, err := os.Open(spool)
	if err != nil {
		return localIO("open", spool, err)
	}
	defer in.Close()

	zr, err := zlib.NewReader(in)
	if err != nil {
		return localIO("inflate", spool, err)
	}
	defer zr.Close()

	out, err := os.OpenFile(f.LocalPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return localIO("open", f.LocalPath, err)
	}
	_, err = io.Copy(out, zr)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return localIO("inflate", f.LocalPath, err)
	}
	if err := os.Remove(spool); err != nil {
		return localIO("remove", spool, err)
	}
	return nil
}

// ApplyMetadata sets the modification time and permission bits of the local
// entry. Symlinks are never followed; platforms that cannot change symlink
// metadata are skipped without an issue. A zero mtime or permission value
// means the peer did not send one and is left alone.
func (f *File) ApplyMetadata() *MetadataIssue {
	if f.LocalPath == "" {
		return nil
	}

	ts := []unix.Timespec{unix.NsecToTimespec(f.MTime), unix.NsecToTimespec(f.MTime)}
	if f.Type == protocol.FileTypeSymlink {
		if f.Permissions != 0 {
			err := unix.Fchmodat(unix.AT_FDCWD, f.LocalPath, f.Permissions&0o7777, unix.AT_SYMLINK_NOFOLLOW)
			if err != nil && !unsupported(err) {
				return &MetadataIssue{Path: f.LocalPath, Op: "chmod", Cause: err}
			}
		}
		if f.MTime != 0 {
			err := unix.UtimesNanoAt(unix.AT_FDCWD, f.LocalPath, ts, unix.AT_SYMLINK_NOFOLLOW)
			if err != nil && !unsupported(err) {
				return &MetadataIssue{Path: f.LocalPath, Op: "utimes", Cause: err}
			}
		}
		return nil
	}

	if f.Permissions != 0 {
		if err := unix.Chmod(f.LocalPath, f.Permissions&0o7777); err != nil {
			return &MetadataIssue{Path: f.LocalPath, Op: "chmod", Cause: err}
		}
	}
	if f.MTime != 0 {
		if err := unix.UtimesNano(f.LocalPath, ts); err != nil {
			return &MetadataIssue{Path: f.LocalPath, Op: "utimes", Cause: err}
		}
	}
	return nil
}

func unsupported(err error) bool {
	return errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS)
}

// SanitizeName strips control characters so a remote name cannot drive the
// terminal when displayed.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
}
