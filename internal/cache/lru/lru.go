// Package lru provides a size-bounded, least-recently-used cache.
package lru

import (
	"container/list"
	"errors"
)

const (
	// InvalidEntryErrorMsg is returned by Insert when value is nil.
	InvalidEntryErrorMsg = "invalid entry: value cannot be nil"

	// InvalidEntrySizeErrorMsg is returned by Insert when a single entry's
	// size exceeds the cache's max size -- it could never fit regardless
	// of what else is evicted.
	InvalidEntrySizeErrorMsg = "invalid entry: size exceeds cache max size"
)

// ValueType is any cached value that knows its own weight.
type ValueType interface {
	Size() uint64
}

type entry struct {
	key   string
	value ValueType
}

// Cache is a size-bounded LRU cache keyed by string. It is not safe for
// concurrent use; callers that need that must add their own locking.
type Cache struct {
	maxSize  uint64
	curSize  uint64
	ll       *list.List
	elements map[string]*list.Element
}

// New returns an empty cache that evicts least-recently-used entries once
// the sum of inserted entries' Size() would exceed maxSize.
func New(maxSize uint64) Cache {
	return Cache{
		maxSize:  maxSize,
		ll:       list.New(),
		elements: make(map[string]*list.Element),
	}
}

// Insert adds or replaces key's value, evicting least-recently-used entries
// as needed to stay within maxSize. It returns every value evicted as a
// result, oldest first. Inserting a nil value or one whose Size() alone
// exceeds maxSize is an error and leaves the cache unchanged.
func (c *Cache) Insert(key string, value ValueType) ([]ValueType, error) {
	if value == nil {
		return nil, errors.New(InvalidEntryErrorMsg)
	}
	if value.Size() > c.maxSize {
		return nil, errors.New(InvalidEntrySizeErrorMsg)
	}

	if el, ok := c.elements[key]; ok {
		c.curSize -= el.Value.(*entry).value.Size()
		c.ll.Remove(el)
		delete(c.elements, key)
	}

	el := c.ll.PushFront(&entry{key: key, value: value})
	c.elements[key] = el
	c.curSize += value.Size()

	var evicted []ValueType
	for c.curSize > c.maxSize {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		oldestEntry := oldest.Value.(*entry)
		c.ll.Remove(oldest)
		delete(c.elements, oldestEntry.key)
		c.curSize -= oldestEntry.value.Size()
		evicted = append(evicted, oldestEntry.value)
	}

	return evicted, nil
}

// LookUp returns key's value and marks it most-recently-used, or nil if key
// is absent.
func (c *Cache) LookUp(key string) ValueType {
	el, ok := c.elements[key]
	if !ok {
		return nil
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).value
}

// Erase removes key if present and returns its value, or nil.
func (c *Cache) Erase(key string) ValueType {
	el, ok := c.elements[key]
	if !ok {
		return nil
	}
	c.ll.Remove(el)
	delete(c.elements, key)
	c.curSize -= el.Value.(*entry).value.Size()
	return el.Value.(*entry).value
}

// CheckInvariants panics if the cache's bookkeeping is inconsistent. Intended
// for use in tests wrapping Cache with invariant checks around every call.
func (c *Cache) CheckInvariants() {
	if len(c.elements) != c.ll.Len() {
		panic("lru: elements map and list length diverged")
	}

	var total uint64
	for el := c.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if c.elements[e.key] != el {
			panic("lru: element map points to the wrong list node for key " + e.key)
		}
		total += e.value.Size()
	}
	if total != c.curSize {
		panic("lru: curSize bookkeeping diverged from actual entry sizes")
	}
	if c.curSize > c.maxSize {
		panic("lru: curSize exceeds maxSize")
	}
}
