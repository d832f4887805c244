package usecase

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/domain/repository"
)

// ListParams are the raw listing query parameters. Empty means unset.
type ListParams struct {
	OriginalFilename string
	FileType         string
	Size             string
	MinSize          string
	MaxSize          string
	UploadedAt       string
	UploadedAfter    string
	UploadedBefore   string
	FileHash         string
	SizeSort         string
}

// accepted timestamp layouts, tried in order; layouts without a zone are UTC
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// BuildFileFilter translates raw parameters into a FileFilter. Malformed
// numbers or timestamps yield ErrInvalidFilter; an unknown size_sort value
// is ignored.
func BuildFileFilter(p ListParams) (entities.FileFilter, error) {
	b := repository.NewFileFilterBuilder().
		WithFilenameContains(p.OriginalFilename).
		WithContentTypeContains(p.FileType).
		WithDigest(strings.ToLower(strings.TrimSpace(p.FileHash)))

	size, err := parseSize("size", p.Size)
	if err != nil {
		return entities.FileFilter{}, err
	}
	minSize, err := parseSize("min_size", p.MinSize)
	if err != nil {
		return entities.FileFilter{}, err
	}
	maxSize, err := parseSize("max_size", p.MaxSize)
	if err != nil {
		return entities.FileFilter{}, err
	}
	b.WithSize(size).WithSizeRange(minSize, maxSize)

	at, err := parseTime("uploaded_at", p.UploadedAt)
	if err != nil {
		return entities.FileFilter{}, err
	}
	after, err := parseTime("uploaded_after", p.UploadedAfter)
	if err != nil {
		return entities.FileFilter{}, err
	}
	before, err := parseTime("uploaded_before", p.UploadedBefore)
	if err != nil {
		return entities.FileFilter{}, err
	}
	b.WithUploadedAt(at).WithDateRange(after, before)

	switch strings.ToLower(strings.TrimSpace(p.SizeSort)) {
	case "asc":
		b.WithSort(entities.SortSizeAsc)
	case "desc":
		b.WithSort(entities.SortSizeDesc)
	}

	return b.Build(), nil
}

func parseSize(name, raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%w: %s must be a non-negative integer, got %q", ErrInvalidFilter, name, raw)
	}
	return &v, nil
}

func parseTime(name, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	// an unescaped "+" offset arrives as a space after query decoding
	raw = strings.ReplaceAll(raw, " ", "+")

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s must be an RFC 3339 timestamp or date, got %q", ErrInvalidFilter, name, raw)
}
