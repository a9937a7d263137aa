package zfs

import (
	"fmt"
	"iter"
	"slices"
	"strconv"
	"time"

	"github.com/runningman84/zfs-poolset/pkg/models"
)

// Kind distinguishes the three entity types
type Kind int

const (
	KindPool Kind = iota
	KindDataset
	KindSnapshot
)

func (k Kind) String() string {
	switch k {
	case KindPool:
		return "pool"
	case KindDataset:
		return "dataset"
	case KindSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// Entity is implemented by *Pool, *Dataset and *Snapshot
type Entity interface {
	Name() string
	Path() string
	Kind() Kind
	Pool() *Pool
	Parent() Entity
	Children() []Entity
	Invalidated() bool
	Property(name string) (models.Value, error)
	HasProperty(name string) bool
	PropertyNames() []string
	Creation() (time.Time, error)
	Walk() (iter.Seq[Entity], error)

	base() *node
}

// node is the record shared by every entity kind
type node struct {
	self        Entity
	name        string
	pool        *Pool
	parent      Entity
	children    []Entity
	props       *models.Properties
	invalidated bool
}

func (n *node) init(self Entity, pool *Pool, name string, parent Entity) {
	n.self = self
	n.name = name
	n.pool = pool
	n.props = models.NewProperties()
	if parent != nil {
		n.parent = parent
		pn := parent.base()
		pn.children = append(pn.children, self)
	}
}

func (n *node) base() *node {
	return n
}

// Name returns the last path segment
func (n *node) Name() string {
	return n.name
}

// Pool returns the pool owning this entity
func (n *node) Pool() *Pool {
	return n.pool
}

// Parent returns nil for pools and for removed entities
func (n *node) Parent() Entity {
	return n.parent
}

// Children returns a copy of the direct children in listing order
func (n *node) Children() []Entity {
	return slices.Clone(n.children)
}

// Invalidated reports whether the entity was removed from the tree
func (n *node) Invalidated() bool {
	return n.invalidated
}

// Property returns a loaded property. A property loaded as "-" is returned as models.Null().
func (n *node) Property(name string) (models.Value, error) {
	v, ok := n.props.Get(name)
	if !ok {
		return models.Value{}, fmt.Errorf("%w: %s on %s", ErrPropertyNotLoaded, name, n.self.Path())
	}
	return v, nil
}

// HasProperty reports whether name was loaded, regardless of its value
func (n *node) HasProperty(name string) bool {
	return n.props.Has(name)
}

// PropertyNames lists loaded properties in the order they were requested
func (n *node) PropertyNames() []string {
	return n.props.Keys()
}

// Creation parses the creation property (unix seconds)
func (n *node) Creation() (time.Time, error) {
	v, err := n.Property("creation")
	if err != nil {
		return time.Time{}, err
	}
	if i, ok := v.Int64(); ok {
		return time.Unix(i, 0), nil
	}
	s, ok := v.Text()
	if !ok {
		return time.Time{}, fmt.Errorf("%w: creation of %s is empty", ErrPropertyNotLoaded, n.self.Path())
	}
	epoch, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid creation %q on %s: %w", s, n.self.Path(), err)
	}
	return time.Unix(epoch, 0), nil
}

// Walk returns a pre-order sequence of this entity and all its descendants.
// Each range over the sequence starts a new traversal.
func (n *node) Walk() (iter.Seq[Entity], error) {
	if n.invalidated {
		return nil, fmt.Errorf("%w: %s", ErrInvalidated, n.self.Path())
	}
	return func(yield func(Entity) bool) {
		n.walk(yield)
	}, nil
}

func (n *node) walk(yield func(Entity) bool) bool {
	if !yield(n.self) {
		return false
	}
	for _, c := range n.children {
		if !c.base().walk(yield) {
			return false
		}
	}
	return true
}

// GetChild returns the direct child called name. When a dataset and a snapshot share
// a name the dataset is returned; use GetSnapshot for the snapshot.
func (n *node) GetChild(name string) (Entity, error) {
	child, err := n.findChild(KindDataset, name)
	if err == nil {
		return child, nil
	}
	child, err = n.findChild(KindSnapshot, name)
	if err != nil {
		return nil, notFound("child", name, n.self.Path())
	}
	return child, nil
}

func (n *node) findChild(kind Kind, name string) (Entity, error) {
	var found Entity
	for _, c := range n.children {
		if c.Kind() != kind || c.Name() != name {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: duplicate %s %s under %s", ErrStructural, kind, name, n.self.Path())
		}
		found = c
	}
	if found == nil {
		return nil, notFound(kind.String(), name, n.self.Path())
	}
	return found, nil
}

// remove unlinks child and invalidates its whole subtree, depth first
func (n *node) remove(child Entity) error {
	idx := slices.Index(n.children, child)
	if idx < 0 {
		return notFound(child.Kind().String(), child.Name(), n.self.Path())
	}
	n.children = slices.Delete(n.children, idx, idx+1)

	c := child.base()
	c.invalidated = true
	c.parent = nil
	for len(c.children) > 0 {
		if err := c.remove(c.children[0]); err != nil {
			return err
		}
	}
	return nil
}

func (n *node) String() string {
	return fmt.Sprintf("<%s: %s>", n.self.Kind(), n.self.Path())
}
