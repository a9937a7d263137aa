package inspector

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/docker/go-units"
	"github.com/rcrowley/go-metrics"
	"github.com/runningman84/zfs-poolset/pkg/config"
	"github.com/runningman84/zfs-poolset/pkg/models"
	"github.com/runningman84/zfs-poolset/pkg/zfs"
	"k8s.io/klog/v2"
)

const timeFormat = "2006-01-02 15:04:05"

// Inspector loads the pool set of one host and reports on it
type Inspector struct {
	config *config.Config
	conn   *zfs.Connection
	now    func() time.Time

	datasetCount  int // Datasets inspected in the current run
	snapshotCount int // Snapshots matched by the snapshot filters
	diffCount     int // Changes reported by diffs
}

// NewInspector creates a new inspector instance
func NewInspector(cfg *config.Config) *Inspector {
	var runner zfs.Runner = zfs.ExecRunner{}
	if cfg.Mode == "test" {
		runner = zfs.FixtureRunner{Dir: cfg.TestDataDir}
	}

	return &Inspector{
		config: cfg,
		conn: zfs.NewConnection(zfs.ConnectionOptions{
			Host:           cfg.Host,
			Trust:          cfg.Trust,
			SSHCipher:      cfg.SSHCipher,
			IdentityFile:   cfg.IdentityFile,
			KnownHostsFile: cfg.KnownHostsFile,
			ZFSCmd:         cfg.ZFSCmd,
			ZPoolCmd:       cfg.ZPoolCmd,
			Runner:         runner,
		}),
		now: time.Now,
	}
}

// Connection returns the connection the inspector loads from
func (i *Inspector) Connection() *zfs.Connection {
	return i.conn
}

// Run loads the pool set and logs status, usage, snapshots and optionally diffs for every allowed pool
func (i *Inspector) Run() error {
	i.datasetCount = 0
	i.snapshotCount = 0
	i.diffCount = 0

	i.logConfig()

	userland, kernel, err := i.conn.Version()
	if err != nil {
		return fmt.Errorf("failed to get ZFS version: %w", err)
	}
	klog.Infof("ZFS Version - Userland: %s, Kernel: %s", userland, kernel)

	ps, err := i.conn.LoadPoolSet(zfs.LoadOptions{
		ZFSProps:   i.config.ZFSProps,
		ZPoolProps: i.config.ZPoolProps,
		SkipMounts: i.config.SkipMounts,
	})
	if err != nil {
		return fmt.Errorf("failed to load pools: %w", err)
	}

	var errs []error
	for _, pool := range ps.Pools() {
		if !i.config.IsPoolAllowed(pool.Name()) {
			klog.Infof("Skipping pool %s (not in whitelist)", pool.Name())
			continue
		}
		if err := i.inspectPool(pool); err != nil {
			klog.Errorf("Error inspecting pool %s: %v", pool.Name(), err)
			errs = append(errs, fmt.Errorf("pool %s: %w", pool.Name(), err))
		}
	}

	i.logMetrics()

	if len(errs) > 0 {
		return fmt.Errorf("inspector encountered %d error(s) during execution: %w", len(errs), errors.Join(errs...))
	}

	klog.Infof("Run completed successfully - inspected %d dataset(s), matched %d snapshot(s), found %d change(s)",
		i.datasetCount, i.snapshotCount, i.diffCount)
	return nil
}

func (i *Inspector) logConfig() {
	klog.Info("Current config")
	klog.Infof("Mode: %s", i.config.Mode)
	klog.Infof("Log level: %s", i.config.LogLevel)
	klog.Infof("Host: %s", i.config.Host)
	klog.Infof("Extra zfs properties: %v", i.config.ZFSProps)
	if len(i.config.ZPoolProps) > 0 {
		klog.Infof("Extra zpool properties: %v", i.config.ZPoolProps)
	}
	if len(i.config.PoolWhitelist) > 0 {
		klog.Infof("Pool whitelist: %v", i.config.PoolWhitelist)
	} else {
		klog.Infof("Pool whitelist: all pools")
	}
	if i.config.SnapshotName != "" {
		klog.Infof("Snapshot name filter: %s", i.config.SnapshotName)
	}
	if i.config.SnapshotDelta != "" {
		klog.Infof("Snapshot window: last %s", i.config.SnapshotDelta)
	}
	if i.config.DiffLatest {
		klog.Infof("Diffing the latest snapshots, showing up to %d change(s) per dataset", i.config.MaxDiffLines)
	}
}

func (i *Inspector) inspectPool(pool *zfs.Pool) error {
	klog.Infof("Inspecting pool %s", pool.Name())
	i.logPoolStatus(pool)

	if err := i.logSnapshotSummary(pool.Path(), pool); err != nil {
		return err
	}

	for _, dd := range pool.AllDatasetsWithDepth() {
		ds := dd.Dataset
		i.datasetCount++
		klog.V(1).Infof("Dataset %s (depth %d)", ds.Path(), dd.Depth)

		i.logFilesystemUsage(ds)
		if err := i.logSnapshotSummary(ds.Path(), ds); err != nil {
			return err
		}
		if i.config.DiffLatest {
			if err := i.diffLatest(ds); err != nil {
				return err
			}
		}
	}

	klog.Infof("Finished pool %s", pool.Name())
	return nil
}

func intProp(e zfs.Entity, name string) (int64, bool) {
	v, err := e.Property(name)
	if err != nil {
		return 0, false
	}
	return v.Int64()
}

func (i *Inspector) logPoolStatus(pool *zfs.Pool) {
	health, err := pool.Property("health")
	if err == nil && health.String() != "ONLINE" {
		klog.Warningf(" Pool %s is %s - consider running 'zpool status %s'", pool.Name(), health, pool.Name())
	}

	size, okSize := intProp(pool, "size")
	alloc, okAlloc := intProp(pool, "allocated")
	if !okSize || !okAlloc {
		return
	}
	capacity, _ := intProp(pool, "capacity")
	fragmentation, _ := intProp(pool, "fragmentation")
	klog.Infof("Pool %s: %s, %s of %s allocated (%d%%), fragmentation %d%%",
		pool.Name(), health, units.BytesSize(float64(alloc)), units.BytesSize(float64(size)), capacity, fragmentation)
}

func (i *Inspector) logFilesystemUsage(ds *zfs.Dataset) {
	used, okUsed := intProp(ds, "used")
	avail, okAvail := intProp(ds, "available")
	if !okUsed || !okAvail {
		return
	}

	if used > 0 && avail > 0 {
		percent := float64(used) / float64(used+avail) * 100
		klog.Infof("Filesystem %s usage: %s used, %s available (%.1f%%)",
			ds.Path(), units.BytesSize(float64(used)), units.BytesSize(float64(avail)), percent)
	} else {
		klog.Infof("Filesystem %s usage: %s used, %s available",
			ds.Path(), units.BytesSize(float64(used)), units.BytesSize(float64(avail)))
	}
}

type snapshotFinder interface {
	FindSnapshots(opts zfs.FindOptions) ([]*zfs.Snapshot, error)
}

func (i *Inspector) findSnapshots(f snapshotFinder) ([]*zfs.Snapshot, error) {
	return f.FindSnapshots(zfs.FindOptions{
		Name:      i.config.SnapshotName,
		DeltaSpec: i.config.SnapshotDelta,
		Now:       i.now(),
	})
}

func (i *Inspector) logSnapshotSummary(path string, f snapshotFinder) error {
	snapshots, err := i.findSnapshots(f)
	if err != nil {
		return fmt.Errorf("failed to find snapshots of %s: %w", path, err)
	}
	i.snapshotCount += len(snapshots)

	if len(snapshots) == 0 {
		klog.V(1).Infof("  %s: 0 snapshot(s)", path)
		return nil
	}

	var oldest, newest time.Time
	for n, s := range snapshots {
		created, err := s.Creation()
		if err != nil {
			return err
		}
		if n == 0 || created.Before(oldest) {
			oldest = created
		}
		if n == 0 || created.After(newest) {
			newest = created
		}
	}

	klog.Infof("  %s: %d snapshot(s) [oldest: %s, newest: %s]",
		path, len(snapshots), oldest.Format(timeFormat), newest.Format(timeFormat))
	return nil
}

// diffLatest diffs the two most recent matching snapshots of a mounted dataset
func (i *Inspector) diffLatest(ds *zfs.Dataset) error {
	mounted, err := ds.Mounted()
	if err != nil {
		return err
	}
	if !mounted {
		klog.V(1).Infof("Not diffing %s (not mounted)", ds.Path())
		return nil
	}

	snapshots, err := i.findSnapshots(ds)
	if err != nil {
		return err
	}
	if len(snapshots) < 2 {
		klog.V(1).Infof("Not diffing %s (%d snapshot(s))", ds.Path(), len(snapshots))
		return nil
	}
	from, to := snapshots[len(snapshots)-2], snapshots[len(snapshots)-1]

	diffs, err := ds.Diffs(zfs.DiffOptions{From: from, To: to})
	if err != nil {
		return fmt.Errorf("failed to diff %s: %w", ds.Path(), err)
	}
	i.diffCount += len(diffs)

	klog.Infof("Diff %s..%s: %d change(s)", from.NameFull(), to.Name(), len(diffs))
	counts := map[models.ChangeType]int{}
	for _, d := range diffs {
		counts[d.ChangeType()]++
	}
	for _, ct := range []models.ChangeType{models.Created, models.Modified, models.Removed, models.Renamed} {
		if counts[ct] == 0 {
			continue
		}
		name, _ := models.ChangeTypeName(ct)
		klog.Infof("  %s: %d", name, counts[ct])
	}

	for n, d := range diffs {
		if n >= i.config.MaxDiffLines {
			klog.Infof("  ... %d more", len(diffs)-n)
			break
		}
		klog.Infof("  %s", d)
	}
	return nil
}

func (i *Inspector) logMetrics() {
	registry := i.conn.Metrics()
	var names []string
	registry.Each(func(name string, _ interface{}) {
		names = append(names, name)
	})
	slices.Sort(names)

	for _, name := range names {
		switch m := registry.Get(name).(type) {
		case metrics.Counter:
			klog.V(1).Infof("Metric %s: %d", name, m.Count())
		case metrics.Gauge:
			klog.V(1).Infof("Metric %s: %d", name, m.Value())
		case metrics.Timer:
			klog.V(1).Infof("Metric %s: %d call(s), mean %s", name, m.Count(), time.Duration(m.Mean()))
		}
	}
}
