package zfs

import (
	"errors"
	"fmt"
	"slices"

	"github.com/runningman84/zfs-poolset/pkg/models"
	"github.com/runningman84/zfs-poolset/pkg/parser"
	"k8s.io/klog/v2"
)

var (
	// DefaultZFSProps are always requested from zfs list, in this order
	DefaultZFSProps = []string{"name", "creation"}
	// MountProps are appended to the zfs list properties unless mounts are skipped
	MountProps = []string{"mountpoint", "mounted"}
	// DefaultZPoolProps are always requested from zpool list, in this order
	DefaultZPoolProps = []string{"name", "size", "allocated", "free", "checkpoint", "fragmentation", "capacity", "health"}
)

// LoadOptions select what a load asks zfs and zpool for
type LoadOptions struct {
	// ZFSProps are extra zfs list properties
	ZFSProps []string
	// ZPoolProps are extra zpool list properties
	ZPoolProps []string
	// SkipMounts leaves out mountpoint and mounted unless ZFSProps names both
	SkipMounts bool
	// Force re-runs the list commands even if the requested properties did not change
	Force bool
}

// Props returns the full zfs and zpool property lists for these options and
// whether mount information will be available.
func (o LoadOptions) Props() (zfsProps, zpoolProps []string, haveMounts bool) {
	zfsProps = slices.Clone(DefaultZFSProps)
	switch {
	case slices.Contains(o.ZFSProps, "mountpoint") && slices.Contains(o.ZFSProps, "mounted"):
		haveMounts = true
	case !o.SkipMounts:
		zfsProps = append(zfsProps, MountProps...)
		haveMounts = true
	}
	zfsProps = appendUnique(zfsProps, o.ZFSProps)
	zpoolProps = appendUnique(slices.Clone(DefaultZPoolProps), o.ZPoolProps)
	return zfsProps, zpoolProps, haveMounts
}

func appendUnique(dst []string, extra []string) []string {
	for _, p := range extra {
		if !slices.Contains(dst, p) {
			dst = append(dst, p)
		}
	}
	return dst
}

// LoadResult summarises a reconciliation pass
type LoadResult struct {
	Added   int
	Removed int
	Total   int
}

// plannedRow is a zfs list row with its path already split and checked
type plannedRow struct {
	row   parser.Row
	path  parser.EntityPath
	zpool []models.Property
}

// Load reconciles the tree with the raw output of
// `zfs list -Hpr -o <zfsProps> -t all` and `zpool list -Hp -o <zpoolProps>`,
// where the property lists are opts.Props(). Entities missing from the new
// listing are removed and invalidated; new ones are created; properties of
// listed entities are overwritten. If the listings are inconsistent, Load
// returns an ErrStructural error and leaves the tree untouched.
func (ps *PoolSet) Load(zfsOutput, zpoolOutput []byte, opts LoadOptions) (LoadResult, error) {
	zfsProps, zpoolProps, haveMounts := opts.Props()

	zfsRows, err := parser.ParseListing(zfsOutput, zfsProps)
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: zfs list: %v", ErrStructural, err)
	}
	zpoolRows, err := parser.ParseListing(zpoolOutput, zpoolProps)
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: zpool list: %v", ErrStructural, err)
	}

	plan, err := planRows(zfsRows, zpoolRows)
	if err != nil {
		return LoadResult{}, err
	}

	// Old paths deepest first, so children go before their parents
	var oldPaths []string
	for e := range ps.Walk() {
		oldPaths = append(oldPaths, e.Path())
	}
	slices.Reverse(oldPaths)

	result := LoadResult{}
	newPaths := make(map[string]struct{}, len(plan))
	for _, pr := range plan {
		newPaths[pr.row.Path] = struct{}{}
		added, err := ps.apply(pr, haveMounts)
		if err != nil {
			return result, err
		}
		result.Added += added
	}

	for _, path := range oldPaths {
		if _, ok := newPaths[path]; ok {
			continue
		}
		if err := ps.removePath(path); err != nil {
			return result, err
		}
		result.Removed++
	}

	ps.haveMounts = haveMounts
	result.Total = ps.Len()

	klog.V(1).Infof("Reconciled poolset: %d added, %d removed, %d total", result.Added, result.Removed, result.Total)
	return result, nil
}

// planRows checks the zfs rows in listing order: every pool has a zpool row and
// every dataset or snapshot appears after its parent.
func planRows(zfsRows, zpoolRows []parser.Row) ([]plannedRow, error) {
	zpoolByName := make(map[string][]models.Property, len(zpoolRows))
	for _, r := range zpoolRows {
		zpoolByName[r.Path] = r.Properties
	}

	seen := make(map[string]struct{}, len(zfsRows))
	plan := make([]plannedRow, 0, len(zfsRows))
	for _, row := range zfsRows {
		ep, err := parser.SplitPath(row.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStructural, err)
		}

		pr := plannedRow{row: row, path: ep}
		switch {
		case ep.IsPool():
			props, ok := zpoolByName[ep.Pool]
			if !ok {
				return nil, fmt.Errorf("%w: pool %s is listed by zfs but not by zpool", ErrStructural, ep.Pool)
			}
			pr.zpool = props
		case ep.HasSnapshot:
			if _, ok := seen[ep.FilesystemPath()]; !ok {
				return nil, fmt.Errorf("%w: snapshot %s listed before its parent %s", ErrStructural, row.Path, ep.FilesystemPath())
			}
		default:
			parent := parser.EntityPath{Pool: ep.Pool, Datasets: ep.Datasets[:len(ep.Datasets)-1]}
			if _, ok := seen[parent.FilesystemPath()]; !ok {
				return nil, fmt.Errorf("%w: dataset %s listed before its parent %s", ErrStructural, row.Path, parent.FilesystemPath())
			}
		}

		seen[row.Path] = struct{}{}
		plan = append(plan, pr)
	}
	return plan, nil
}

// apply attaches one planned row to the tree and merges its properties.
// It returns the number of entities created.
func (ps *PoolSet) apply(pr plannedRow, haveMounts bool) (int, error) {
	added := 0
	ep := pr.path

	pool, ok := ps.pools[ep.Pool]
	if !ok {
		pool = newPool(ep.Pool, ps.conn, haveMounts)
		ps.addPool(pool)
		added++
	}

	var cur Entity = pool
	for _, seg := range ep.Datasets {
		child, err := cur.base().findChild(KindDataset, seg)
		switch {
		case errors.Is(err, ErrNotFound):
			child = newDataset(pool, seg, cur)
			added++
		case err != nil:
			return added, err
		}
		cur = child
	}

	if ep.HasSnapshot {
		snap, err := cur.base().findChild(KindSnapshot, ep.Snapshot)
		switch {
		case errors.Is(err, ErrNotFound):
			snap = newSnapshot(pool, ep.Snapshot, cur)
			added++
		case err != nil:
			return added, err
		}
		cur = snap
	}

	cur.base().props.Merge(pr.row.Properties)
	if ds, ok := cur.(*Dataset); ok {
		ds.resetMountCache()
	}
	if ep.IsPool() {
		pool.props.Merge(pr.zpool)
		pool.haveMounts = haveMounts
	}

	return added, nil
}

// removePath drops an entity that vanished from the listing
func (ps *PoolSet) removePath(path string) error {
	ep, err := parser.SplitPath(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStructural, err)
	}
	if ep.IsPool() {
		return ps.removePool(ep.Pool)
	}

	e, err := ps.Lookup(path)
	if err != nil {
		return fmt.Errorf("%w: stale entity %s: %v", ErrStructural, path, err)
	}
	return e.Parent().base().remove(e)
}
