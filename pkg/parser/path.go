package parser

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned for identifiers with empty segments
var ErrInvalidPath = errors.New("invalid entity path")

// EntityPath is a parsed pool/dataset/snapshot identifier such as "tank/home/alice@daily"
type EntityPath struct {
	Pool     string
	Datasets []string
	// Snapshot is empty unless HasSnapshot is set
	Snapshot    string
	HasSnapshot bool
}

// SplitPath splits name on the first "@" and then on "/"
func SplitPath(name string) (EntityPath, error) {
	var ep EntityPath

	fsPath := name
	if idx := strings.Index(name, "@"); idx >= 0 {
		fsPath = name[:idx]
		ep.Snapshot = name[idx+1:]
		ep.HasSnapshot = true
		if ep.Snapshot == "" {
			return EntityPath{}, fmt.Errorf("%w: empty snapshot name in %q", ErrInvalidPath, name)
		}
	}

	segments := strings.Split(fsPath, "/")
	for _, seg := range segments {
		if seg == "" {
			return EntityPath{}, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, name)
		}
	}

	ep.Pool = segments[0]
	ep.Datasets = segments[1:]
	return ep, nil
}

// IsPool reports whether the path names a pool itself
func (ep EntityPath) IsPool() bool {
	return len(ep.Datasets) == 0 && !ep.HasSnapshot
}

// FilesystemPath returns the path without the snapshot suffix
func (ep EntityPath) FilesystemPath() string {
	if len(ep.Datasets) == 0 {
		return ep.Pool
	}
	return ep.Pool + "/" + strings.Join(ep.Datasets, "/")
}

// String reassembles the full identifier
func (ep EntityPath) String() string {
	if ep.HasSnapshot {
		return ep.FilesystemPath() + "@" + ep.Snapshot
	}
	return ep.FilesystemPath()
}
