package cache

// lruNode is an intrusive circular doubly linked list link. The pool owns a
// sentinel node (entry == nil) heading the eviction queue; every entry embeds
// one node whose entry field points back at it.
//
// An unlinked node points at itself. All list operations on the eviction
// queue happen under the pool's lru mutex.
type lruNode struct {
	next  *lruNode
	prev  *lruNode
	entry *entryBase
}

// init makes n a single-element (unlinked) ring.
func (n *lruNode) init() {
	n.next = n
	n.prev = n
}

// linked reports whether n is part of a ring other than its own.
func (n *lruNode) linked() bool { return n.next != n }

// insertBefore links x immediately before n. With n the sentinel this
// appends x to the tail of the queue.
func (n *lruNode) insertBefore(x *lruNode) {
	x.prev = n.prev
	x.next = n
	x.prev.next = x
	n.prev = x
}

// unlink removes n from its ring and leaves it self-looped.
func (n *lruNode) unlink() {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.init()
}

// front returns the first element after the sentinel n, or nil if empty.
func (n *lruNode) front() *lruNode {
	if n.next == n {
		return nil
	}
	return n.next
}
