package ixp

import (
	"github.com/ixpkit/ixp/ninep"
	"github.com/ixpkit/ixp/stream"
)

// Some types from subpackages are aliased here to make them easier to
// consume without importing more packages.

// Stat is a type alias for ninep.Stat, one raw file status record.
type Stat = ninep.Stat

// FileInfo is a type alias for ninep.FileInfo, the projection of a status
// record.
type FileInfo = ninep.FileInfo

// FileMode is a type alias for ninep.FileMode.
type FileMode = ninep.FileMode

// LineReader is a type alias for stream.LineReader.
type LineReader = stream.LineReader

// DirReader is a type alias for stream.DirReader.
type DirReader = stream.DirReader

// ExtendFunc is a type alias for stream.ExtendFunc, the timeout extension
// callback of LineReader.Next.
type ExtendFunc = stream.ExtendFunc

// Open modes re-exported for convenience.
const (
	OREAD  = ninep.OREAD
	OWRITE = ninep.OWRITE
	ORDWR  = ninep.ORDWR
	OTRUNC = ninep.OTRUNC
)

// DMDIR is the directory bit of a FileMode.
const DMDIR = ninep.DMDIR
