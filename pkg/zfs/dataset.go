package zfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dataset is a filesystem or volume below a pool
type Dataset struct {
	snapable
	dspath string

	// cached after first read, reset when a load rewrites the properties
	mountpoint *string
	mounted    *bool
}

func newDataset(pool *Pool, name string, parent Entity) *Dataset {
	d := &Dataset{}
	d.init(d, pool, name, parent)
	d.dspath = strings.TrimPrefix(d.Path(), pool.Name()+"/")
	return d
}

// Kind returns KindDataset
func (d *Dataset) Kind() Kind {
	return KindDataset
}

// Path is the full dataset name, e.g. "rpool/ROOT/ubuntu"
func (d *Dataset) Path() string {
	if d.parent == nil {
		return d.name
	}
	return d.parent.Path() + "/" + d.name
}

// DSPath is the path relative to the pool, e.g. "ROOT/ubuntu"
func (d *Dataset) DSPath() string {
	return d.dspath
}

func (d *Dataset) assertHaveMounts() error {
	if d.pool == nil || !d.pool.HaveMounts() {
		return fmt.Errorf("%w: %s", ErrMountsUnavailable, d.Path())
	}
	return nil
}

func (d *Dataset) resetMountCache() {
	d.mountpoint = nil
	d.mounted = nil
}

// Mountpoint returns the mountpoint property. Unset mountpoints (volumes) are reported as "none".
func (d *Dataset) Mountpoint() (string, error) {
	if d.mountpoint == nil {
		if err := d.assertHaveMounts(); err != nil {
			return "", err
		}
		v, err := d.Property("mountpoint")
		if err != nil {
			return "", err
		}
		mp := "none"
		if s, ok := v.Text(); ok {
			mp = s
		}
		d.mountpoint = &mp
	}
	return *d.mountpoint, nil
}

// Mounted reports whether zfs lists the dataset as mounted
func (d *Dataset) Mounted() (bool, error) {
	if d.mounted == nil {
		if err := d.assertHaveMounts(); err != nil {
			return false, err
		}
		v, err := d.Property("mounted")
		if err != nil {
			return false, err
		}
		mounted := v.String() == "yes"
		d.mounted = &mounted
	}
	return *d.mounted, nil
}

// HasMount reports whether the dataset has a filesystem mountpoint. "none" and
// "legacy" are not paths and report false.
func (d *Dataset) HasMount() (bool, error) {
	mp, err := d.Mountpoint()
	if err != nil {
		return false, err
	}
	return mp != "none" && mp != "legacy", nil
}

// RelPath returns the location of path relative to the dataset mountpoint.
// path must be on the system being inspected but does not need to exist.
func (d *Dataset) RelPath(path string) (string, error) {
	mp, err := d.Mountpoint()
	if err != nil {
		return "", err
	}
	resolved, err := realPath(path)
	if err != nil {
		return "", err
	}
	rel, ok := underMountpoint(resolved, mp)
	if !ok {
		return "", fmt.Errorf("%w: path %s is not under mountpoint %s of %s", ErrPrecondition, path, mp, d.Path())
	}
	return rel, nil
}

func (d *Dataset) String() string {
	if d.pool != nil && d.pool.HaveMounts() {
		if mp, err := d.Mountpoint(); err == nil {
			return fmt.Sprintf("<dataset: %s> mountpoint: %s", d.Path(), mp)
		}
	}
	return fmt.Sprintf("<dataset: %s>", d.Path())
}

// realPath expands ~, makes path absolute and resolves symlinks when the path exists
func realPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: path must not be blank", ErrPrecondition)
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand %s: %w", path, err)
		}
		path = filepath.Join(home, path[1:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// underMountpoint returns the part of path below mp (with a leading slash) and whether path is under mp
func underMountpoint(path, mp string) (string, bool) {
	if mp == "/" {
		return path, true
	}
	if path == mp {
		return "", true
	}
	if strings.HasPrefix(path, mp+"/") {
		return path[len(mp):], true
	}
	return "", false
}
