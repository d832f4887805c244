// Package catalog implements repository.FileCatalog on SQLite and
// PostgreSQL, plus a read-through cache in front of either.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/zots0127/uploadstore/internal/domain/entities"
)

const fileColumns = `id, storage_key, original_filename, content_type, size, digest, created_at`

// dialect captures the few places where the two SQL backends differ
type dialect struct {
	// placeholder renders the n-th (1-based) bind parameter
	placeholder func(n int) string
	// contains renders a case-insensitive substring predicate
	contains func(column, param string) string
	// timeArg converts a timestamp to the stored representation
	timeArg func(t time.Time) any
}

// whereClause builds the WHERE clause and its arguments from filter.
// Every constraint is bound as a parameter; nothing is interpolated.
func whereClause(filter entities.FileFilter, d dialect) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(format string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(format, d.placeholder(len(args))))
	}
	addContains := func(column, value string) {
		args = append(args, "%"+escapeLike(value)+"%")
		conds = append(conds, d.contains(column, d.placeholder(len(args))))
	}

	if filter.FilenameContains != "" {
		addContains("original_filename", filter.FilenameContains)
	}
	if filter.ContentTypeContains != "" {
		addContains("content_type", filter.ContentTypeContains)
	}
	if filter.Digest != "" {
		add("digest = %s", filter.Digest)
	}
	if filter.Size != nil {
		add("size = %s", *filter.Size)
	}
	if filter.MinSize != nil {
		add("size >= %s", *filter.MinSize)
	}
	if filter.MaxSize != nil {
		add("size <= %s", *filter.MaxSize)
	}
	if filter.UploadedAt != nil {
		add("created_at = %s", d.timeArg(*filter.UploadedAt))
	}
	if filter.UploadedAfter != nil {
		add("created_at >= %s", d.timeArg(*filter.UploadedAfter))
	}
	if filter.UploadedBefore != nil {
		add("created_at <= %s", d.timeArg(*filter.UploadedBefore))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(order entities.SortOrder) string {
	switch order {
	case entities.SortSizeAsc:
		return " ORDER BY size ASC, created_at DESC, id DESC"
	case entities.SortSizeDesc:
		return " ORDER BY size DESC, created_at DESC, id DESC"
	default:
		return " ORDER BY created_at DESC, id DESC"
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE metacharacters in user input match literally
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
