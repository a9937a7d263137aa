package zfs

import (
	"fmt"
	"iter"
	"slices"

	"github.com/runningman84/zfs-poolset/pkg/parser"
)

// PoolSet is the root of the model: every pool reported by the last load.
// Loads mutate it in place; callers must not load concurrently.
type PoolSet struct {
	conn       *Connection
	pools      map[string]*Pool
	order      []string
	haveMounts bool
}

// NewPoolSet creates an empty poolset that is not bound to a connection.
// Pools built by Load on it cannot run zfs diff.
func NewPoolSet() *PoolSet {
	return newPoolSet(nil)
}

func newPoolSet(conn *Connection) *PoolSet {
	return &PoolSet{
		conn:  conn,
		pools: make(map[string]*Pool),
	}
}

// HaveMounts reports whether the last load collected mountpoint and mounted
func (ps *PoolSet) HaveMounts() bool {
	return ps.haveMounts
}

// Pools returns the pools in the order they were first listed
func (ps *PoolSet) Pools() []*Pool {
	out := make([]*Pool, 0, len(ps.order))
	for _, name := range ps.order {
		out = append(out, ps.pools[name])
	}
	return out
}

// GetPool returns the pool called name
func (ps *PoolSet) GetPool(name string) (*Pool, error) {
	p, ok := ps.pools[name]
	if !ok {
		return nil, notFound("pool", name, "")
	}
	return p, nil
}

// Lookup resolves a full identifier: "pool", "pool/ds/child" or "pool/ds@snap"
func (ps *PoolSet) Lookup(name string) (Entity, error) {
	ep, err := parser.SplitPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrecondition, err)
	}

	pool, ok := ps.pools[ep.Pool]
	if !ok {
		return nil, notFound("pool", ep.Pool, "")
	}
	return pool.lookupSegments(ep.Datasets, ep.Snapshot, ep.HasSnapshot)
}

// Walk yields every entity of every pool, pre-order
func (ps *PoolSet) Walk() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for _, p := range ps.Pools() {
			if !p.walk(yield) {
				return
			}
		}
	}
}

// Len returns the number of entities in the tree
func (ps *PoolSet) Len() int {
	n := 0
	for range ps.Walk() {
		n++
	}
	return n
}

func (ps *PoolSet) addPool(p *Pool) {
	ps.pools[p.Name()] = p
	ps.order = append(ps.order, p.Name())
}

// removePool invalidates a pool and everything below it
func (ps *PoolSet) removePool(name string) error {
	p, ok := ps.pools[name]
	if !ok {
		return notFound("pool", name, "")
	}
	for len(p.children) > 0 {
		if err := p.remove(p.children[0]); err != nil {
			return err
		}
	}
	p.invalidated = true
	delete(ps.pools, name)
	ps.order = slices.DeleteFunc(ps.order, func(n string) bool { return n == name })
	return nil
}

// FindDatasetForPath returns the dataset whose mountpoint holds path, together with
// the resolved absolute path and the path relative to the mountpoint.
// Datasets mounted at / are ignored.
func (ps *PoolSet) FindDatasetForPath(path string) (*Dataset, string, string, error) {
	if !ps.haveMounts {
		return nil, "", "", ErrMountsUnavailable
	}
	resolved, err := realPath(path)
	if err != nil {
		return nil, "", "", err
	}

	var best *Dataset
	var bestMP, bestRel string
	for _, pool := range ps.Pools() {
		for _, ds := range pool.AllDatasets() {
			hasMount, err := ds.HasMount()
			if err != nil {
				return nil, "", "", err
			}
			mp, _ := ds.Mountpoint()
			if !hasMount || mp == "/" {
				continue
			}
			rel, ok := underMountpoint(resolved, mp)
			if !ok {
				continue
			}
			if best == nil || len(mp) > len(bestMP) {
				best, bestMP, bestRel = ds, mp, rel
			}
		}
	}

	if best == nil {
		return nil, resolved, "", notFound("dataset for path", resolved, "")
	}
	return best, resolved, bestRel, nil
}

func (ps *PoolSet) String() string {
	return fmt.Sprintf("<poolset: %d pools>", len(ps.pools))
}
