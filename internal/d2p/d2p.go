// Package d2p implements the D2PCodec (§4.3): a seek-indexed archive
// format used for incremental archive patching. The layout is:
//
//	Header (2B)       major=2, minor=1
//	Data              concatenated file bodies
//	Indexes           repeated {UTF name, dataOffset i32, size i32}
//	Properties        repeated {UTF key, UTF value}
//	Trailer (24B)     dataOffset, dataCount, indexOffset, indexCount,
//	                  propertiesOffset, propertiesCount (six i32, BE)
//
// All integers are big-endian. UTF strings are a 2-byte (i16 BE) length
// prefix followed by UTF-8 bytes. Index dataOffset fields are relative to
// the start of the Data region; trailer offset fields are absolute.
package d2p

import "github.com/pkg/errors"

const (
	headerSize  = 2
	trailerSize = 24

	majorVersion = 2
	minorVersion = 1
)

// ErrWrongVersion is D2P_WRONG_VERSION: the archive's header does not read
// 2.1.
var ErrWrongVersion = errors.New("d2p: wrong version")

// ErrNotFound is D2P_NOT_FOUND: the archive could not be read (missing,
// truncated, or structurally invalid).
var ErrNotFound = errors.New("d2p: not found")

// Property is one key/value pair stored in the archive's Properties
// region.
type Property struct {
	Key   string
	Value string
}

// Entry is one named file body, used both as Build's input and as part of
// Extract's output ordering.
type Entry struct {
	Name string
	Data []byte
}

// Meta describes an archive's non-file-body contents: its properties and
// the ordered list of member names, matching index order.
type Meta struct {
	Properties []Property
	Files      []string
}
