package transfer_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
	"github.com/jamesainslie/ferry/pkg/ferry/transfer"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyChunk(t *testing.T) {
	t.Run("returns bytes appended by each call", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.bin")
		f := &transfer.File{Type: protocol.FileTypeRegular, LocalPath: dest}

		n, err := f.ApplyChunk([]byte("hello"), false)
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		n, err = f.ApplyChunk([]byte(" world"), true)
		require.NoError(t, err)
		assert.Equal(t, 6, n)
	})

	t.Run("first write replaces an existing file", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.txt")
		require.NoError(t, os.WriteFile(dest, []byte("stale content"), 0o644))

		f := &transfer.File{Type: protocol.FileTypeRegular, LocalPath: dest}
		_, err := f.ApplyChunk([]byte("new"), true)
		require.NoError(t, err)

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "new", string(got))
	})

	t.Run("existing symlink is replaced, not written through", func(t *testing.T) {
		dir := t.TempDir()
		outside := filepath.Join(dir, "outside.txt")
		require.NoError(t, os.WriteFile(outside, []byte("keep me"), 0o644))
		dest := filepath.Join(dir, "tree", "out.txt")
		require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
		require.NoError(t, os.Symlink(outside, dest))

		f := &transfer.File{Type: protocol.FileTypeRegular, LocalPath: dest}
		_, err := f.ApplyChunk([]byte("new"), true)
		require.NoError(t, err)

		got, err := os.ReadFile(outside)
		require.NoError(t, err)
		assert.Equal(t, "keep me", string(got))

		info, err := os.Lstat(dest)
		require.NoError(t, err)
		assert.True(t, info.Mode().IsRegular())
		got, err = os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "new", string(got))
	})

	t.Run("existing hard link is not written through", func(t *testing.T) {
		dir := t.TempDir()
		other := filepath.Join(dir, "other.txt")
		require.NoError(t, os.WriteFile(other, []byte("keep me"), 0o644))
		dest := filepath.Join(dir, "out.txt")
		require.NoError(t, os.Link(other, dest))

		f := &transfer.File{Type: protocol.FileTypeRegular, LocalPath: dest}
		_, err := f.ApplyChunk([]byte("new"), true)
		require.NoError(t, err)

		got, err := os.ReadFile(other)
		require.NoError(t, err)
		assert.Equal(t, "keep me", string(got))
		got, err = os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "new", string(got))
	})

	t.Run("empty final chunk creates an empty file", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "sub", "empty")
		f := &transfer.File{Type: protocol.FileTypeRegular, LocalPath: dest}

		n, err := f.ApplyChunk(nil, true)
		require.NoError(t, err)
		assert.Zero(t, n)

		info, err := os.Stat(dest)
		require.NoError(t, err)
		assert.Zero(t, info.Size())
	})

	t.Run("symlink chunks accumulate without touching disk", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "link")
		f := &transfer.File{Type: protocol.FileTypeSymlink, LocalPath: dest}

		n, err := f.ApplyChunk([]byte("../ta"), false)
		require.NoError(t, err)
		assert.Zero(t, n)
		n, err = f.ApplyChunk([]byte("rget"), true)
		require.NoError(t, err)
		assert.Zero(t, n)

		assert.Equal(t, "../target", f.SymlinkValue())
		_, err = os.Lstat(dest)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("directories and hard links ignore chunks", func(t *testing.T) {
		dir := t.TempDir()
		for _, ft := range []protocol.FileType{protocol.FileTypeDirectory, protocol.FileTypeLink} {
			dest := filepath.Join(dir, ft.String())
			f := &transfer.File{Type: ft, LocalPath: dest}
			n, err := f.ApplyChunk([]byte("ignored"), true)
			require.NoError(t, err)
			assert.Zero(t, n)
			_, err = os.Lstat(dest)
			assert.True(t, os.IsNotExist(err))
		}
	})

	t.Run("unwritable destination is a local i/o error", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0o644))

		f := &transfer.File{Type: protocol.FileTypeRegular, LocalPath: filepath.Join(blocker, "child")}
		_, err := f.ApplyChunk([]byte("x"), true)
		require.Error(t, err)
		assert.ErrorIs(t, err, transfer.ErrLocalIO)
	})

	t.Run("compressed chunks are inflated on the final chunk", func(t *testing.T) {
		content := bytes.Repeat([]byte("ferry carries files across the water\n"), 500)
		var compressed bytes.Buffer
		zw := zlib.NewWriter(&compressed)
		_, err := zw.Write(content)
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		dest := filepath.Join(t.TempDir(), "notes.txt")
		f := &transfer.File{Type: protocol.FileTypeRegular, LocalPath: dest, Compression: protocol.CompressionZlib}

		wire := compressed.Bytes()
		half := len(wire) / 2
		n1, err := f.ApplyChunk(wire[:half], false)
		require.NoError(t, err)
		n2, err := f.ApplyChunk(wire[half:], true)
		require.NoError(t, err)
		assert.Equal(t, len(wire), n1+n2)

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, content, got)

		matches, err := filepath.Glob(dest + ".*")
		require.NoError(t, err)
		assert.Empty(t, matches, "spool file should be removed")
	})
}

func TestApplyMetadata(t *testing.T) {
	mtime := time.Date(2024, 1, 18, 12, 0, 0, 0, time.UTC)

	t.Run("regular file", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(dest, []byte("x"), 0o644))

		f := &transfer.File{
			Type:        protocol.FileTypeRegular,
			LocalPath:   dest,
			MTime:       mtime.UnixNano(),
			Permissions: 0o600,
		}
		assert.Nil(t, f.ApplyMetadata())

		info, err := os.Stat(dest)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
		assert.True(t, info.ModTime().Equal(mtime))
	})

	t.Run("symlink is not followed", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "target")
		require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
		before, err := os.Stat(target)
		require.NoError(t, err)

		link := filepath.Join(dir, "link")
		require.NoError(t, os.Symlink("target", link))

		f := &transfer.File{
			Type:        protocol.FileTypeSymlink,
			LocalPath:   link,
			MTime:       mtime.UnixNano(),
			Permissions: 0o777,
		}
		assert.Nil(t, f.ApplyMetadata())

		after, err := os.Stat(target)
		require.NoError(t, err)
		assert.Equal(t, before.ModTime(), after.ModTime())
		assert.Equal(t, before.Mode(), after.Mode())

		linfo, err := os.Lstat(link)
		require.NoError(t, err)
		assert.True(t, linfo.ModTime().Equal(mtime))
	})

	t.Run("missing path is a soft issue", func(t *testing.T) {
		f := &transfer.File{
			Type:        protocol.FileTypeRegular,
			LocalPath:   filepath.Join(t.TempDir(), "missing"),
			Permissions: 0o644,
		}
		issue := f.ApplyMetadata()
		require.NotNil(t, issue)
		assert.Equal(t, "chmod", issue.Op)
		assert.Contains(t, issue.String(), "missing")
	})

	t.Run("zero values are left alone", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(dest, []byte("x"), 0o640))

		f := &transfer.File{Type: protocol.FileTypeRegular, LocalPath: dest}
		assert.Nil(t, f.ApplyMetadata())

		info, err := os.Stat(dest)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
	})
}

func TestShouldCompress(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/home/u/notes.txt", true},
		{"/home/u/main.go", true},
		{"/home/u/Makefile", true},
		{"/home/u/backup.tar.gz", false},
		{"/home/u/photo.JPG", false},
		{"/home/u/movie.mkv", false},
		{"/home/u/song.flac", false},
		{"/home/u/report.pdf", false},
		{"/home/u/archive.zip.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, transfer.ShouldCompress(tt.path))
		})
	}
}

func TestCompressionFor(t *testing.T) {
	big := &transfer.File{Type: protocol.FileTypeRegular, RemotePath: "/r/log.txt", ExpectedSize: 10000}
	small := &transfer.File{Type: protocol.FileTypeRegular, RemotePath: "/r/log.txt", ExpectedSize: 4096}
	archive := &transfer.File{Type: protocol.FileTypeRegular, RemotePath: "/r/a.zip", ExpectedSize: 10000}
	dir := &transfer.File{Type: protocol.FileTypeDirectory, RemotePath: "/r/d", ExpectedSize: 10000}

	assert.Equal(t, protocol.CompressionZlib, transfer.CompressionFor(big, transfer.DefaultCompressMinSize))
	assert.Equal(t, protocol.CompressionNone, transfer.CompressionFor(small, transfer.DefaultCompressMinSize))
	assert.Equal(t, protocol.CompressionNone, transfer.CompressionFor(archive, transfer.DefaultCompressMinSize))
	assert.Equal(t, protocol.CompressionNone, transfer.CompressionFor(dir, transfer.DefaultCompressMinSize))
	assert.Equal(t, protocol.CompressionNone, transfer.CompressionFor(big, -1))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "evil[31mname", transfer.SanitizeName("evil\x1b[31mname"))
	assert.Equal(t, "tab", transfer.SanitizeName("t\tab"))
	assert.Equal(t, "plain/päth", transfer.SanitizeName("plain/päth"))
}
