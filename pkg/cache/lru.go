package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Siddarth2230/shortlink/pkg/metrics"
)

const layerMemory = "memory"

// Node represents a doubly linked list node
type Node struct {
	Key       string
	Value     string
	ExpiresAt time.Time
	Prev      *Node
	Next      *Node
}

// LRUCache is a thread-safe, capacity-bounded LRU cache whose entries
// also expire after their TTL. Expired entries are dropped lazily on access
// and preferentially on eviction.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	cache    map[string]*Node
	head     *Node // most recently used
	tail     *Node // least recently used
}

// NewLRUCache creates an LRU cache with given capacity and default TTL
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 1000 // default
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		cache:    make(map[string]*Node, capacity),
	}

	// Initialize dummy head and tail
	c.head = &Node{}
	c.tail = &Node{}
	c.head.Next = c.tail
	c.tail.Prev = c.head

	return c
}

// Get retrieves the URL for code and marks it as recently used
func (c *LRUCache) Get(_ context.Context, code string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(code)
	node, exists := c.cache[key]
	if !exists {
		metrics.CacheMisses.WithLabelValues(layerMemory).Inc()
		return "", ErrCacheMiss
	}
	if !c.now().Before(node.ExpiresAt) {
		c.unlink(node)
		metrics.CacheMisses.WithLabelValues(layerMemory).Inc()
		return "", ErrCacheMiss
	}

	c.moveToFront(node)
	metrics.CacheHits.WithLabelValues(layerMemory).Inc()
	return node.Value, nil
}

// Set adds or replaces the entry for code. A non-positive ttl writes nothing.
func (c *LRUCache) Set(_ context.Context, code, url string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrNonPositiveTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(code)
	expiresAt := c.now().Add(ttl)

	// If key exists, update value and move to front
	if node, exists := c.cache[key]; exists {
		node.Value = url
		node.ExpiresAt = expiresAt
		c.moveToFront(node)
		return nil
	}
	if len(c.cache) >= c.capacity {
		c.evict()
	}

	node := &Node{
		Key:       key,
		Value:     url,
		ExpiresAt: expiresAt,
	}
	c.addToFront(node)
	c.cache[key] = node
	metrics.CacheSize.WithLabelValues(layerMemory).Set(float64(len(c.cache)))
	return nil
}

// SetDefault stores url under code with the cache's default TTL.
func (c *LRUCache) SetDefault(ctx context.Context, code, url string) error {
	return c.Set(ctx, code, url, c.ttl)
}

// Delete removes the entry for code, if any.
func (c *LRUCache) Delete(_ context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, exists := c.cache[Key(code)]; exists {
		c.unlink(node)
	}
	return nil
}

// TTL reports the remaining lifetime of the entry for code.
func (c *LRUCache) TTL(_ context.Context, code string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, exists := c.cache[Key(code)]
	if !exists {
		return 0, ErrCacheMiss
	}
	d := node.ExpiresAt.Sub(c.now())
	if d <= 0 {
		return 0, ErrCacheMiss
	}
	return d, nil
}

func (c *LRUCache) Ping(context.Context) error {
	return nil
}

// Clear empties the cache
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*Node, c.capacity)
	c.head.Next = c.tail
	c.tail.Prev = c.head
	metrics.CacheSize.WithLabelValues(layerMemory).Set(0)
}

func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// moveToFront moves a node to the head (most recent)
func (c *LRUCache) moveToFront(node *Node) {
	c.removeNode(node)
	c.addToFront(node)
}

// removeNode removes a node from the list (doesn't delete from map)
func (c *LRUCache) removeNode(node *Node) {
	node.Prev.Next = node.Next
	node.Next.Prev = node.Prev
}

// addToFront adds a node right after the dummy head
func (c *LRUCache) addToFront(node *Node) {
	next := c.head.Next

	node.Next = next
	node.Prev = c.head

	c.head.Next = node
	next.Prev = node
}

func (c *LRUCache) unlink(node *Node) {
	c.removeNode(node)
	delete(c.cache, node.Key)
	metrics.CacheSize.WithLabelValues(layerMemory).Set(float64(len(c.cache)))
}

// evict drops the coldest expired entry if there is one, otherwise the
// least recently used one.
func (c *LRUCache) evict() {
	now := c.now()
	for n := c.tail.Prev; n != c.head; n = n.Prev {
		if !now.Before(n.ExpiresAt) {
			c.unlink(n)
			return
		}
	}

	lru := c.tail.Prev
	if lru == c.head {
		return
	}
	c.unlink(lru)
}
