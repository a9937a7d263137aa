package zfs

import (
	"fmt"
	"os"
	"time"

	"github.com/gobwas/glob"
	"github.com/runningman84/zfs-poolset/pkg/parser"
)

// FindOptions filter the snapshots of a pool or dataset. Zero values are unset.
//
// Date windows resolve as follows:
//   - From only: [From, Now]
//   - delta only: [Now-delta, Now]
//   - From and To: [From, To], From must be before To and no delta may be given
//   - From and delta: [From, From+delta]
//   - To and delta: [To-delta, To]
//
// To without From or a delta is rejected. Bounds are inclusive.
type FindOptions struct {
	// Name is a glob matched against the snapshot name
	Name string
	// Contains is a path below the dataset mountpoint that must exist in the snapshot
	Contains string
	From     *time.Time
	To       *time.Time
	// Delta and DeltaSpec (e.g. "5d") are mutually exclusive
	Delta     time.Duration
	DeltaSpec string
	// Now defaults to time.Now()
	Now time.Time
}

// window is an inclusive creation time range
type window struct {
	from, to time.Time
}

func (w *window) contains(t time.Time) bool {
	return !t.Before(w.from) && !t.After(w.to)
}

func (o FindOptions) delta() (time.Duration, bool, error) {
	switch {
	case o.Delta != 0 && o.DeltaSpec != "":
		return 0, false, fmt.Errorf("%w: only one of delta and delta spec may be set", ErrPrecondition)
	case o.Delta < 0:
		return 0, false, fmt.Errorf("%w: delta must be > 0, got %s", ErrPrecondition, o.Delta)
	case o.Delta > 0:
		return o.Delta, true, nil
	case o.DeltaSpec != "":
		d, err := parser.BuildTimedelta(o.DeltaSpec)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %v", ErrPrecondition, err)
		}
		return d, true, nil
	}
	return 0, false, nil
}

// resolveWindow returns nil when no date filter applies
func (o FindOptions) resolveWindow() (*window, error) {
	delta, hasDelta, err := o.delta()
	if err != nil {
		return nil, err
	}
	now := o.Now
	if now.IsZero() {
		now = time.Now()
	}

	switch {
	case o.From == nil && o.To == nil && !hasDelta:
		return nil, nil
	case o.From != nil && o.To == nil && !hasDelta:
		return &window{from: *o.From, to: now}, nil
	case o.From == nil && o.To == nil:
		return &window{from: now.Add(-delta), to: now}, nil
	case o.From != nil && o.To != nil:
		if hasDelta {
			return nil, fmt.Errorf("%w: a delta cannot be combined with both from and to", ErrPrecondition)
		}
		if !o.From.Before(*o.To) {
			return nil, fmt.Errorf("%w: from (%s) must be before to (%s)", ErrPrecondition, o.From, o.To)
		}
		return &window{from: *o.From, to: *o.To}, nil
	case !hasDelta:
		return nil, fmt.Errorf("%w: to requires a from date or a delta", ErrPrecondition)
	}

	from, to, err := parser.CalcDateRange(delta, o.From, o.To)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	return &window{from: from, to: to}, nil
}

// snapshotFilter is the predicate FindSnapshots builds from FindOptions
type snapshotFilter struct {
	name     glob.Glob
	contains string
	hasPath  bool
	window   *window
}

func (f *snapshotFilter) match(s *Snapshot) (bool, error) {
	if f.hasPath {
		snapPath, err := s.SnapPath()
		if err != nil {
			return false, err
		}
		if _, err := os.Stat(snapPath + f.contains); err != nil {
			return false, nil
		}
	}
	if f.name != nil && !f.name.Match(s.Name()) {
		return false, nil
	}
	if f.window != nil {
		created, err := s.Creation()
		if err != nil {
			return false, err
		}
		if !f.window.contains(created) {
			return false, nil
		}
	}
	return true, nil
}

func (s *snapable) newSnapshotFilter(opts FindOptions) (*snapshotFilter, error) {
	f := &snapshotFilter{}

	w, err := opts.resolveWindow()
	if err != nil {
		return nil, err
	}
	f.window = w

	if opts.Name != "" {
		g, err := compileGlob(opts.Name)
		if err != nil {
			return nil, err
		}
		f.name = g
	}

	if opts.Contains != "" {
		ds, ok := s.self.(*Dataset)
		if !ok {
			return nil, fmt.Errorf("%w: contains can only be used on datasets, not %s", ErrPrecondition, s.self.Path())
		}
		rel, err := ds.RelPath(opts.Contains)
		if err != nil {
			return nil, err
		}
		f.contains = rel
		f.hasPath = true
	}

	return f, nil
}

// FindSnapshots returns the direct snapshots matching opts, in listing order
func (s *snapable) FindSnapshots(opts FindOptions) ([]*Snapshot, error) {
	indexed, err := s.FindSnapshotsIndexed(opts)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, 0, len(indexed))
	for _, is := range indexed {
		out = append(out, is.Snapshot)
	}
	return out, nil
}

// FindSnapshotsIndexed is FindSnapshots with each snapshot's index among all children
func (s *snapable) FindSnapshotsIndexed(opts FindOptions) ([]IndexedSnapshot, error) {
	f, err := s.newSnapshotFilter(opts)
	if err != nil {
		return nil, err
	}
	return s.filterSnapshots(f.match)
}

// RemoveDuplicateSnapshotsByDate drops snapshots whose creation equals that of
// the snapshot before them. Input is expected in creation order.
func RemoveDuplicateSnapshotsByDate(snapshots []*Snapshot) ([]*Snapshot, error) {
	var out []*Snapshot
	var last time.Time
	for i, snap := range snapshots {
		created, err := snap.Creation()
		if err != nil {
			return nil, err
		}
		if i > 0 && created.Equal(last) {
			continue
		}
		out = append(out, snap)
		last = created
	}
	return out, nil
}
