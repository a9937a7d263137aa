package zfs

// Pool is a top-level ZFS storage pool
type Pool struct {
	snapable
	conn       *Connection
	haveMounts bool
}

func newPool(name string, conn *Connection, haveMounts bool) *Pool {
	p := &Pool{conn: conn, haveMounts: haveMounts}
	p.init(p, p, name, nil)
	return p
}

// Kind returns KindPool
func (p *Pool) Kind() Kind {
	return KindPool
}

// Path of a pool is its name
func (p *Pool) Path() string {
	return p.name
}

// Connection returns the connection the pool was loaded through, nil for pools built from raw listings
func (p *Pool) Connection() *Connection {
	return p.conn
}

// HaveMounts reports whether mountpoint and mounted were collected by the last load
func (p *Pool) HaveMounts() bool {
	return p.haveMounts
}
