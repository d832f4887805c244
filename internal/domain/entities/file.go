package entities

import (
	"time"
)

// Field limits for FileRecord metadata
const (
	MaxFilenameBytes    = 255
	MaxContentTypeBytes = 100
	DigestHexLength     = 64
)

// FileRecord represents one stored file. Records are created once by a
// successful ingest and never mutated afterwards.
type FileRecord struct {
	ID               string
	StorageKey       string
	OriginalFilename string
	ContentType      string
	Size             int64
	Digest           string
	CreatedAt        time.Time
}

// SortOrder selects the ordering of a file listing
type SortOrder int

const (
	// SortDefault orders by CreatedAt descending
	SortDefault SortOrder = iota
	SortSizeAsc
	SortSizeDesc
)

// FileFilter represents the criteria of a file listing. Zero values and nil
// pointers mean "no constraint"; all set constraints are combined with AND.
type FileFilter struct {
	FilenameContains    string
	ContentTypeContains string
	Digest              string
	Size                *int64
	MinSize             *int64
	MaxSize             *int64
	UploadedAt          *time.Time
	UploadedAfter       *time.Time
	UploadedBefore      *time.Time
	Sort                SortOrder
}

// InsertResult is the outcome of an insert guarded by digest uniqueness.
// When Inserted is false, Record is the already stored record that owns
// the digest.
type InsertResult struct {
	Record   *FileRecord
	Inserted bool
}
