// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

// Package cache provides the bounded LRU set the queue consumer uses to drop
// rapid redeliveries of the same task attempt before touching the metadata
// store.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	key       string
	expiresAt time.Time
	prev      *entry
	next      *entry
}

// LRU is a thread-safe set of recently seen keys with a capacity bound and a
// per-entry TTL. All operations are O(1). Expired entries are dropped lazily
// on access and in bulk by CleanupExpired.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*entry

	// head.next is the most recently used entry, tail.prev the least.
	head *entry
	tail *entry

	hits   int64
	misses int64
	now    func() time.Time
}

// NewLRU creates an LRU. Non-positive values fall back to 10000 entries and a
// five minute TTL.
func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &LRU{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*entry, capacity),
		head:     &entry{},
		tail:     &entry{},
		now:      time.Now,
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Seen reports whether key was recorded within the TTL. When it was not, the
// key is recorded, so exactly one of several concurrent callers sees false.
func (c *LRU) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.items[key]; ok {
		if now.Before(e.expiresAt) {
			c.unlink(e)
			c.pushFront(e)
			c.hits++
			return true
		}
		c.remove(e)
	}

	e := &entry{key: key, expiresAt: now.Add(c.ttl)}
	c.pushFront(e)
	c.items[key] = e
	for len(c.items) > c.capacity {
		c.remove(c.tail.prev)
	}
	c.misses++
	return false
}

// Forget drops key so the next Seen records it afresh. The consumer calls it
// when a delivery fails and must be processable again on redelivery.
func (c *LRU) Forget(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if ok {
		c.remove(e)
	}
	return ok
}

// Len returns the number of entries, expired ones included.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CleanupExpired removes expired entries and returns how many it removed.
func (c *LRU) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for e := c.tail.prev; e != c.head; {
		prev := e.prev
		if !now.Before(e.expiresAt) {
			c.remove(e)
			removed++
		}
		e = prev
	}
	return removed
}

// Stats returns hit and miss counts and the current size.
func (c *LRU) Stats() (hits, misses int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.items)
}

func (c *LRU) pushFront(e *entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *LRU) unlink(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *LRU) remove(e *entry) {
	if e == c.head || e == c.tail {
		return
	}
	c.unlink(e)
	delete(c.items, e.key)
}
