// Package pool provides a small resource pool used to reuse the byte
// buffers that internal/fsutil shuttles through its 8KiB chunked
// read/write loops.
package pool

import (
	"sync"
)

// Generator generates a new resource when the pool is empty.
type Generator func() interface{}

type node struct {
	resource interface{}
	next     *node
}

// Pool is a resource pool implemented as a linked list under a single
// mutex. In most cases there is no need to prefill it.
type Pool struct {
	size    int
	maxSize int
	head    *node
	tail    *node
	locker  sync.Mutex
}

// NewPool creates a new pool. If maxSize <= 0 the pool size is unbounded.
func NewPool(maxSize int) *Pool {
	return &Pool{
		maxSize: maxSize,
	}
}

// Size returns the current number of resources held in the pool.
func (p *Pool) Size() int {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.size
}

// Get returns a resource from the pool, or calls g to generate a new one
// if the pool is empty. g may be nil iff the pool is known not to be
// empty. Get never blocks.
func (p *Pool) Get(g Generator) interface{} {
	p.locker.Lock()
	defer p.locker.Unlock()
	if p.head == nil {
		return g()
	}
	ret := p.head
	p.head = ret.next
	p.size--
	if p.size == 0 {
		p.tail = nil
	}
	return ret.resource
}

// Put returns a resource to the pool. It returns false iff the pool is
// already at maxSize.
func (p *Pool) Put(resource interface{}) bool {
	p.locker.Lock()
	defer p.locker.Unlock()
	if p.maxSize > 0 && p.size >= p.maxSize {
		return false
	}
	item := &node{resource: resource}
	p.size++
	if p.size == 1 {
		p.head = item
		p.tail = item
		return true
	}
	p.tail.next = item
	p.tail = item
	return true
}
