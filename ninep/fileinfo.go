package ninep

import (
	"io/fs"
	"time"
)

// Check interfaces
var (
	_ fs.FileInfo = (*FileInfo)(nil)
	_ fs.DirEntry = (*FileInfo)(nil)
)

// FileInfo is the externally visible projection of one stat record. It
// implements fs.FileInfo and fs.DirEntry for a remote file. The projection
// is a pure transform of the record: converting the same record always
// yields the same values.
type FileInfo struct {
	Stat Stat
}

// NewFileInfo returns the projection of the given stat record.
func NewFileInfo(s Stat) *FileInfo {
	return &FileInfo{Stat: s}
}

// Name returns the base name of the file.
func (fi *FileInfo) Name() string { return fi.Stat.Name }

// Size returns the length of the file in bytes.
func (fi *FileInfo) Size() int64 { return int64(fi.Stat.Length) }

// Mode returns the file mode bits translated to fs.FileMode.
func (fi *FileInfo) Mode() fs.FileMode {
	mode := fs.FileMode(fi.Stat.Mode & 0o777)
	if fi.Stat.Mode.IsDir() {
		mode |= fs.ModeDir
	}
	if fi.Stat.Mode&DMAPPEND != 0 {
		mode |= fs.ModeAppend
	}
	if fi.Stat.Mode&DMEXCL != 0 {
		mode |= fs.ModeExclusive
	}
	if fi.Stat.Mode&DMTMP != 0 {
		mode |= fs.ModeTemporary
	}
	return mode
}

// ModTime returns the modification time.
func (fi *FileInfo) ModTime() time.Time { return time.Unix(int64(fi.Stat.Mtime), 0) }

// AccessTime returns the last access time.
func (fi *FileInfo) AccessTime() time.Time { return time.Unix(int64(fi.Stat.Atime), 0) }

// IsDir returns true for directories.
func (fi *FileInfo) IsDir() bool { return fi.Stat.Mode.IsDir() }

// Sys returns the raw stat record.
func (fi *FileInfo) Sys() any { return fi.Stat }

// Type implements fs.DirEntry.
func (fi *FileInfo) Type() fs.FileMode { return fi.Mode().Type() }

// Info implements fs.DirEntry.
func (fi *FileInfo) Info() (fs.FileInfo, error) { return fi, nil }

// ModeString returns the mode as a "drwxr-xr-x" style permission string.
func (fi *FileInfo) ModeString() string { return fi.Stat.Mode.String() }

// TimeString returns the modification time in the fixed-width asctime
// layout, without a trailing newline.
func (fi *FileInfo) TimeString() string {
	return fi.ModTime().Format(time.ANSIC)
}
