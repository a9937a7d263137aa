package zfs

import (
	"fmt"
	"os"
)

// Snapshot is a point-in-time, read-only child of a dataset or pool
type Snapshot struct {
	node
}

func newSnapshot(pool *Pool, name string, parent Entity) *Snapshot {
	s := &Snapshot{}
	s.init(s, pool, name, parent)
	return s
}

// Kind returns KindSnapshot
func (s *Snapshot) Kind() Kind {
	return KindSnapshot
}

// Path is the full snapshot name, e.g. "tank/data@daily"
func (s *Snapshot) Path() string {
	if s.parent == nil {
		return s.name
	}
	return s.parent.Path() + "@" + s.name
}

// Dataset returns the parent dataset, nil for snapshots of a pool
func (s *Snapshot) Dataset() *Dataset {
	ds, _ := s.parent.(*Dataset)
	return ds
}

// NameFull is the snapshot name relative to the pool, e.g. "data@daily".
// Snapshots of a pool return their full path.
func (s *Snapshot) NameFull() string {
	ds := s.Dataset()
	if ds == nil {
		return s.Path()
	}
	return ds.DSPath() + "@" + s.name
}

// SnapPath returns the snapshot's directory below the dataset's .zfs/snapshot
func (s *Snapshot) SnapPath() (string, error) {
	ds := s.Dataset()
	if ds == nil {
		return "", fmt.Errorf("%w: snap path is only available for snapshots of datasets, not %s", ErrPrecondition, s.Path())
	}
	mp, err := ds.Mountpoint()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/.zfs/snapshot/%s", mp, s.name), nil
}

// ResolveSnapPath maps a path on the live dataset to the same path inside this snapshot.
// It returns true and the snapshot path if the item exists in the snapshot, otherwise
// false and the snapshot directory.
func (s *Snapshot) ResolveSnapPath(path string) (bool, string, error) {
	ds := s.Dataset()
	if ds == nil {
		return false, "", fmt.Errorf("%w: %s is not a snapshot of a dataset", ErrPrecondition, s.Path())
	}
	mounted, err := ds.Mounted()
	if err != nil {
		return false, "", err
	}
	if !mounted {
		return false, "", fmt.Errorf("%w: dataset %s is not mounted", ErrPrecondition, ds.Path())
	}

	base, err := s.SnapPath()
	if err != nil {
		return false, "", err
	}
	rel, err := ds.RelPath(path)
	if err != nil {
		return false, "", err
	}

	target := base + rel
	if _, err := os.Stat(target); err != nil {
		return false, base, nil
	}
	return true, target, nil
}
