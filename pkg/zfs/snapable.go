package zfs

import (
	"errors"
	"fmt"
	"strings"
)

// snapable holds the behaviour shared by pools and datasets: both can have
// child datasets and snapshots.
type snapable struct {
	node
}

// IndexedSnapshot pairs a snapshot with its position among the parent's children
type IndexedSnapshot struct {
	Index    int
	Snapshot *Snapshot
}

// DatasetDepth pairs a dataset with its depth below the entity it was collected from
type DatasetDepth struct {
	Depth   int
	Dataset *Dataset
}

// Lookup resolves a path relative to this entity, e.g. "home/alice@daily"
func (s *snapable) Lookup(name string) (Entity, error) {
	fsPath, snapshot, hasSnapshot := strings.Cut(name, "@")
	if hasSnapshot && snapshot == "" {
		return nil, fmt.Errorf("%w: empty snapshot name in %q", ErrPrecondition, name)
	}

	var segments []string
	if fsPath != "" {
		segments = strings.Split(fsPath, "/")
	} else if !hasSnapshot {
		return nil, fmt.Errorf("%w: empty path", ErrPrecondition)
	}

	return s.lookupSegments(segments, snapshot, hasSnapshot)
}

func (s *snapable) lookupSegments(segments []string, snapshot string, hasSnapshot bool) (Entity, error) {
	var cur Entity = s.self
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: empty path segment under %s", ErrPrecondition, cur.Path())
		}
		child, err := cur.base().findChild(KindDataset, seg)
		if err != nil {
			return nil, err
		}
		cur = child
	}

	if hasSnapshot {
		return cur.base().findChild(KindSnapshot, snapshot)
	}
	return cur, nil
}

// GetDataset resolves a dataset path relative to this entity
func (s *snapable) GetDataset(name string) (*Dataset, error) {
	e, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}
	ds, ok := e.(*Dataset)
	if !ok {
		return nil, notFound("dataset", name, s.self.Path())
	}
	return ds, nil
}

// GetSnapshot returns the direct snapshot child called name
func (s *snapable) GetSnapshot(name string) (*Snapshot, error) {
	e, err := s.findChild(KindSnapshot, name)
	if err != nil {
		return nil, err
	}
	return e.(*Snapshot), nil
}

// Snapshots returns the direct snapshot children accepted by filter, in listing order.
// A nil filter accepts every snapshot.
func (s *snapable) Snapshots(filter func(*Snapshot) bool) []*Snapshot {
	var out []*Snapshot
	for _, is := range s.SnapshotsIndexed(filter) {
		out = append(out, is.Snapshot)
	}
	return out
}

// SnapshotsIndexed is Snapshots with each snapshot's index among all children
func (s *snapable) SnapshotsIndexed(filter func(*Snapshot) bool) []IndexedSnapshot {
	var out []IndexedSnapshot
	for idx, c := range s.children {
		snap, ok := c.(*Snapshot)
		if !ok {
			continue
		}
		if filter != nil && !filter(snap) {
			continue
		}
		out = append(out, IndexedSnapshot{Index: idx, Snapshot: snap})
	}
	return out
}

// filterSnapshots is SnapshotsIndexed for filters that can fail
func (s *snapable) filterSnapshots(filter func(*Snapshot) (bool, error)) ([]IndexedSnapshot, error) {
	var out []IndexedSnapshot
	var errs []error
	for idx, c := range s.children {
		snap, ok := c.(*Snapshot)
		if !ok {
			continue
		}
		keep, err := filter(snap)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if keep {
			out = append(out, IndexedSnapshot{Index: idx, Snapshot: snap})
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// AllDatasets returns every dataset below this entity, pre-order
func (s *snapable) AllDatasets() []*Dataset {
	var out []*Dataset
	for _, dd := range s.AllDatasetsWithDepth() {
		out = append(out, dd.Dataset)
	}
	return out
}

// AllDatasetsWithDepth returns every dataset below this entity with its depth; direct children have depth 0
func (s *snapable) AllDatasetsWithDepth() []DatasetDepth {
	var out []DatasetDepth
	collectDatasets(&s.node, 0, &out)
	return out
}

func collectDatasets(n *node, depth int, out *[]DatasetDepth) {
	for _, c := range n.children {
		ds, ok := c.(*Dataset)
		if !ok {
			continue
		}
		*out = append(*out, DatasetDepth{Depth: depth, Dataset: ds})
		collectDatasets(&ds.node, depth+1, out)
	}
}
