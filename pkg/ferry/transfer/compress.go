package transfer

import (
	"path/filepath"
	"strings"

	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
)

// DefaultCompressMinSize is the size a regular file must exceed before
// compression is requested for it.
const DefaultCompressMinSize = 4096

// precompressed holds extensions whose content is already compressed.
var precompressed = map[string]struct{}{
	// Archives
	".zip": {},
	".gz":  {},
	".tgz": {},
	".bz2": {},
	".xz":  {},
	".zst": {},
	".lz4": {},
	".rar": {},
	".7z":  {},
	".jar": {},
	".whl": {},
	".deb": {},
	".rpm": {},
	".apk": {},

	// Images
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
	".avif": {},
	".heic": {},

	// Video
	".mp4":  {},
	".mov":  {},
	".avi":  {},
	".mkv":  {},
	".webm": {},

	// Audio
	".mp3":  {},
	".ogg":  {},
	".flac": {},
	".aac":  {},
	".opus": {},
	".m4a":  {},

	// Documents
	".pdf":  {},
	".docx": {},
	".xlsx": {},
	".pptx": {},
	".odt":  {},
	".epub": {},
}

// ShouldCompress reports whether content stored at path is likely to
// benefit from compression, judged by its extension.
func ShouldCompress(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, skip := precompressed[ext]
	return !skip
}

// CompressionFor picks the compression to request for f. Only regular files
// larger than minSize with a compressible name qualify; a negative minSize
// disables compression entirely.
func CompressionFor(f *File, minSize int64) protocol.Compression {
	if minSize < 0 || f.Type != protocol.FileTypeRegular || f.ExpectedSize <= minSize {
		return protocol.CompressionNone
	}
	name := f.LocalPath
	if name == "" {
		name = f.RemotePath
	}
	if !ShouldCompress(name) {
		return protocol.CompressionNone
	}
	return protocol.CompressionZlib
}
