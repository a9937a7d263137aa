package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/runningman84/zfs-poolset/pkg/models"
)

var (
	// ErrColumnMismatch is returned when a row has a different number of columns than requested properties
	ErrColumnMismatch = errors.New("column count does not match property count")
	// ErrDuplicatePath is returned when a listing reports the same entity twice
	ErrDuplicatePath = errors.New("duplicate entity path in listing")
)

// Row is one parsed line of zfs list / zpool list output
type Row struct {
	// Path is the first column: the full entity path or the pool name
	Path       string
	Properties []models.Property
}

// ParsePropertyRow splits one tab-separated line into the entity path and its properties.
// props holds the requested property names; props[0] is the name column.
func ParsePropertyRow(line string, props []string) (string, []models.Property, error) {
	items := strings.Split(strings.TrimSpace(line), "\t")
	if len(items) != len(props) {
		return "", nil, fmt.Errorf("%w: got %d columns for %d properties %v in row %q",
			ErrColumnMismatch, len(items), len(props), props, line)
	}

	pairs := make([]models.Property, 0, len(props)-1)
	for i := 1; i < len(props); i++ {
		pairs = append(pairs, models.Property{Name: props[i], Value: parseValue(props[i], items[i])})
	}

	return items[0], pairs, nil
}

func parseValue(name, raw string) models.Value {
	if raw == "-" {
		return models.Null()
	}
	if models.IsIntProperty(name) {
		// zfs prints some numeric properties as text (e.g. "1.00x"); keep those as text
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return models.Int(i)
		}
	}
	return models.Text(raw)
}

// ParseListing parses every non-blank line of a zfs list -H / zpool list -H output
func ParseListing(output []byte, props []string) ([]Row, error) {
	var rows []Row
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		path, pairs, err := ParsePropertyRow(line, props)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if _, dup := seen[path]; dup {
			return nil, fmt.Errorf("line %d: %w: %s", lineNo, ErrDuplicatePath, path)
		}
		seen[path] = struct{}{}

		rows = append(rows, Row{Path: path, Properties: pairs})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listing: %w", err)
	}

	return rows, nil
}
