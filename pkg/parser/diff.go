package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/runningman84/zfs-poolset/pkg/models"
)

// ErrMalformedDiffRow is returned for zfs diff lines that are not 4 or 5 fields wide
var ErrMalformedDiffRow = errors.New("malformed zfs diff row")

// DiffRow is one line of `zfs diff -FHt` output
type DiffRow struct {
	// Timestamp is the raw inode change time, e.g. "1700000000.500000"
	Timestamp string
	Time      time.Time
	Change    models.ChangeType
	File      models.FileType
	Path      string
	// NewPath is only set for renames
	NewPath string
}

// ParseDiffRow parses a single zfs diff line
func ParseDiffRow(line string) (DiffRow, error) {
	fields := strings.Split(strings.TrimSpace(line), "\t")
	return ParseDiffFields(fields)
}

// ParseDiffFields parses an already split zfs diff row
func ParseDiffFields(fields []string) (DiffRow, error) {
	if len(fields) != 4 && len(fields) != 5 {
		return DiffRow{}, fmt.Errorf("%w: unexpected field count %d in %v", ErrMalformedDiffRow, len(fields), fields)
	}

	ts := fields[0]
	secs := ts
	if idx := strings.Index(ts, "."); idx >= 0 {
		secs = ts[:idx]
	}
	epoch, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return DiffRow{}, fmt.Errorf("%w: bad timestamp %q: %v", ErrMalformedDiffRow, ts, err)
	}

	row := DiffRow{
		Timestamp: ts,
		Time:      time.Unix(epoch, 0),
		Change:    models.ChangeType(fields[1]),
		File:      models.FileType(fields[2]),
		Path:      fields[3],
	}
	if len(fields) == 5 {
		row.NewPath = fields[4]
	}

	return row, nil
}

// SplitFilePath splits a path into its last element and the directory holding it.
// A trailing slash yields an empty file name.
func SplitFilePath(s string) (file, dir string) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, "/")
	if idx < 0 {
		return s, ""
	}
	file = s[idx+1:]
	if file == "" {
		return "", s[:len(s)-1]
	}
	return file, s[:idx]
}
