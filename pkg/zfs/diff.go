package zfs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/runningman84/zfs-poolset/pkg/models"
	"github.com/runningman84/zfs-poolset/pkg/parser"
	"k8s.io/klog/v2"
)

// onDeleteQueue marks zfs diff rows for objects that are pending deletion and no longer exist
const onDeleteQueue = "(on_delete_queue)"

// Diff is one change reported by zfs diff between two snapshots, or between a
// snapshot and the live filesystem.
type Diff struct {
	left  *Snapshot
	right *Snapshot

	timestamp  string
	changeTime time.Time
	changeType models.ChangeType
	fileType   models.FileType

	file, dir, pathFull          string
	fileNew, dirNew, pathFullNew string
}

// NewDiff builds a Diff from a parsed row. A nil left means there is no earlier
// snapshot; a nil right means the diff is against the live filesystem.
func NewDiff(row parser.DiffRow, left, right *Snapshot) (*Diff, error) {
	if left != nil && right != nil {
		if err := checkDiffOrder(left, right); err != nil {
			return nil, err
		}
	}

	d := &Diff{
		left:        left,
		right:       right,
		timestamp:   row.Timestamp,
		changeTime:  row.Time,
		changeType:  row.Change,
		fileType:    row.File,
		pathFull:    row.Path,
		pathFullNew: row.NewPath,
	}

	if row.File == models.Directory {
		d.dir = row.Path
		d.dirNew = row.NewPath
	} else {
		d.file, d.dir = parser.SplitFilePath(row.Path)
		if row.NewPath != "" {
			d.fileNew, d.dirNew = parser.SplitFilePath(row.NewPath)
		}
	}
	return d, nil
}

// checkDiffOrder rejects a left snapshot created after the right one. Equal
// creation times are allowed since zfs only records whole seconds.
func checkDiffOrder(left, right *Snapshot) error {
	lc, err := left.Creation()
	if err != nil {
		return err
	}
	rc, err := right.Creation()
	if err != nil {
		return err
	}
	if lc.After(rc) {
		return fmt.Errorf("%w: %s (created %s) is newer than %s (created %s)", ErrPrecondition,
			left.Path(), lc.Format(time.DateTime), right.Path(), rc.Format(time.DateTime))
	}
	return nil
}

// Left returns the earlier snapshot, nil if NoFromSnap
func (d *Diff) Left() *Snapshot { return d.left }

// Right returns the later snapshot, nil if ToPresent
func (d *Diff) Right() *Snapshot { return d.right }

// Timestamp is the raw inode change time, e.g. "1700000000.500000"
func (d *Diff) Timestamp() string { return d.timestamp }

func (d *Diff) ChangeTime() time.Time         { return d.changeTime }
func (d *Diff) ChangeType() models.ChangeType { return d.changeType }
func (d *Diff) FileType() models.FileType     { return d.fileType }

// File is the file name, empty for directories
func (d *Diff) File() string { return d.file }

// Dir is the directory holding File, or the directory itself
func (d *Diff) Dir() string      { return d.dir }
func (d *Diff) PathFull() string { return d.pathFull }

// FileNew, DirNew and PathFullNew are only set for renames
func (d *Diff) FileNew() string     { return d.fileNew }
func (d *Diff) DirNew() string      { return d.dirNew }
func (d *Diff) PathFullNew() string { return d.pathFullNew }

func (d *Diff) NoFromSnap() bool { return d.left == nil }
func (d *Diff) ToPresent() bool  { return d.right == nil }

func (d *Diff) FileTypeName() (string, error)   { return models.FileTypeName(d.fileType) }
func (d *Diff) ChangeTypeName() (string, error) { return models.ChangeTypeName(d.changeType) }

// SnapPathLeft resolves the changed path inside the left snapshot's .zfs directory
func (d *Diff) SnapPathLeft() (string, error) {
	if d.left == nil {
		return "", fmt.Errorf("%w: diff has no left snapshot", ErrPrecondition)
	}
	return inSnapshot(d.left, d.pathFull)
}

// SnapPathRight resolves the changed path on the right side. For renames it is
// the new path. Diffs against the live filesystem return the live path.
func (d *Diff) SnapPathRight() (string, error) {
	path := d.pathFull
	if d.changeType == models.Renamed && d.pathFullNew != "" {
		path = d.pathFullNew
	}
	if d.right == nil {
		return path, nil
	}
	return inSnapshot(d.right, path)
}

func inSnapshot(s *Snapshot, path string) (string, error) {
	ds := s.Dataset()
	if ds == nil {
		return "", fmt.Errorf("%w: %s is not a snapshot of a dataset", ErrPrecondition, s.Path())
	}
	mp, err := ds.Mountpoint()
	if err != nil {
		return "", err
	}
	snapPath, err := s.SnapPath()
	if err != nil {
		return "", err
	}
	rel, ok := underMountpoint(path, mp)
	if !ok {
		return "", fmt.Errorf("%w: %s is not under mountpoint %s", ErrPrecondition, path, mp)
	}
	return snapPath + rel, nil
}

func (d *Diff) String() string {
	s := fmt.Sprintf("<diff> %s [%s][%s] %s", d.changeTime.Format(time.DateTime), d.changeType, d.fileType, d.pathFull)
	if d.pathFullNew != "" {
		s += " --> " + d.pathFullNew
	}
	return s
}

// DiffOptions select and filter the changes returned by Dataset.Diffs.
// A nil slice disables that filter; an empty one matches nothing.
type DiffOptions struct {
	// From is required
	From *Snapshot
	// To defaults to the live filesystem
	To *Snapshot
	// Include and Exclude are globs matched against the full path and, for renames, the new path
	Include     []string
	Exclude     []string
	FileTypes   []models.FileType
	ChangeTypes []models.ChangeType
}

func (d *Dataset) checkDiffOptions(opts DiffOptions) error {
	if err := d.assertHaveMounts(); err != nil {
		return err
	}
	mounted, err := d.Mounted()
	if err != nil {
		return err
	}
	if !mounted {
		return fmt.Errorf("%w: cannot diff unmounted dataset %s", ErrPrecondition, d.Path())
	}
	if opts.From == nil {
		return fmt.Errorf("%w: a from snapshot is required", ErrPrecondition)
	}
	if opts.From.Invalidated() {
		return fmt.Errorf("%w: %s", ErrInvalidated, opts.From.Path())
	}
	if opts.To != nil {
		if opts.To.Invalidated() {
			return fmt.Errorf("%w: %s", ErrInvalidated, opts.To.Path())
		}
		return checkDiffOrder(opts.From, opts.To)
	}
	return nil
}

// Diffs runs zfs diff from opts.From to opts.To (or the live filesystem) and
// returns the filtered changes. If zfs diff fails a warning is logged and no
// changes are returned.
func (d *Dataset) Diffs(opts DiffOptions) ([]*Diff, error) {
	if err := d.checkDiffOptions(opts); err != nil {
		return nil, err
	}
	include, err := compileGlobs(opts.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compileGlobs(opts.Exclude)
	if err != nil {
		return nil, err
	}

	conn := d.pool.Connection()
	if conn == nil {
		return nil, fmt.Errorf("%w: pool %s has no connection to run zfs diff", ErrPrecondition, d.pool.Name())
	}

	args := []string{"diff", "-FHt", opts.From.Path()}
	if opts.To != nil {
		args = append(args, opts.To.Path())
	}
	stdout, err := conn.runZFS(args...)
	if err != nil {
		if !errors.Is(err, ErrCommandFailed) {
			return nil, err
		}
		klog.Warningf("zfs diff of %s failed, returning no changes: %v", d.Path(), err)
		conn.metrics.diffFailures.Inc(1)
		return nil, nil
	}

	var diffs []*Diff
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		row, err := parser.ParseDiffRow(line)
		if err != nil {
			return nil, fmt.Errorf("zfs diff of %s: %w", d.Path(), err)
		}
		diff, err := NewDiff(row, opts.From, opts.To)
		if err != nil {
			return nil, err
		}
		if keepDiff(diff, opts, include, exclude) {
			diffs = append(diffs, diff)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read zfs diff output: %w", err)
	}

	klog.V(1).Infof("zfs diff of %s: %d changes after filtering", d.Path(), len(diffs))
	return diffs, nil
}

func keepDiff(d *Diff, opts DiffOptions, include, exclude globSet) bool {
	if strings.Contains(d.pathFull, onDeleteQueue) {
		return false
	}
	if opts.FileTypes != nil && !slices.Contains(opts.FileTypes, d.fileType) {
		return false
	}
	if opts.ChangeTypes != nil && !slices.Contains(opts.ChangeTypes, d.changeType) {
		return false
	}

	paths := []string{d.pathFull}
	if d.pathFullNew != "" {
		paths = append(paths, d.pathFullNew)
	}
	if include != nil && !include.match(paths...) {
		return false
	}
	if exclude != nil && exclude.match(paths...) {
		return false
	}
	return true
}
