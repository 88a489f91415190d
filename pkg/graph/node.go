package graph

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrNodeInUse is returned by Dispose while geometry still aliases the
	// node's raw buffers.
	ErrNodeInUse = errors.New("node raw data still referenced by geometry")
	// ErrNotSealed is returned by Dispose for an instanced node whose
	// placements have not all been materialized.
	ErrNotSealed = errors.New("instanced node not sealed")
	// ErrDisposed is returned when leasing a node whose raw data is gone.
	ErrDisposed = errors.New("node already disposed")
)

// heavyFields are the raw keys released by Dispose.
var heavyFields = []string{
	"vertices", "faces", "colors", "points", "value",
	"start", "end", "startPoint", "endPoint", "midPoint",
}

// Node is a read-only view of one graph record handed to the converter.
type Node struct {
	ID  string
	Raw Object
	// Instanced is set when Raw is or may be shared by several placements.
	// Geometry produced from an instanced node never aliases Raw.
	Instanced bool
	// Nested holds segment children for composite curves.
	Nested []*Node

	leases   atomic.Int64
	sealed   atomic.Bool
	disposed atomic.Bool
	mu       sync.Mutex
}

// NewNode wraps a raw record. The id falls back to a random one when the
// record has none.
func NewNode(raw Object, instanced bool) *Node {
	id := raw.ID()
	if id == "" {
		id = uuid.NewString()
	}
	return &Node{ID: id, Raw: raw, Instanced: instanced}
}

// Short returns an abbreviated id for log messages.
func (n *Node) Short() string {
	if len(n.ID) > 10 {
		return n.ID[:10]
	}
	return n.ID
}

// Lease marks that some geometry aliases a node's raw buffers.
type Lease struct {
	node *Node
	once sync.Once
}

// Acquire takes a lease on the node's raw data.
func (n *Node) Acquire() (*Lease, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.disposed.Load() {
		return nil, ErrDisposed
	}
	n.leases.Add(1)
	return &Lease{node: n}, nil
}

// Release gives the lease back. It is safe to call more than once and on a
// nil lease.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() { l.node.leases.Add(-1) })
}

// Leases returns the number of outstanding leases.
func (n *Node) Leases() int64 {
	return n.leases.Load()
}

// Seal records that every placement of an instanced node has been
// converted. No further conversions are expected after Seal.
func (n *Node) Seal() {
	n.sealed.Store(true)
}

// Sealed reports whether Seal was called.
func (n *Node) Sealed() bool {
	return n.sealed.Load()
}

// Disposed reports whether Dispose succeeded.
func (n *Node) Disposed() bool {
	return n.disposed.Load()
}

// Dispose drops the heavy raw buffers. Instanced nodes must be sealed and
// no lease may be outstanding.
func (n *Node) Dispose() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.disposed.Load() {
		return nil
	}
	if n.Instanced && !n.sealed.Load() {
		return ErrNotSealed
	}
	if n.leases.Load() > 0 {
		return ErrNodeInUse
	}
	for _, k := range heavyFields {
		delete(n.Raw, k)
	}
	n.disposed.Store(true)
	return nil
}
