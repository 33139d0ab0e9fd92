// Package cache 容量受限的进程内 LRU 缓存，条目在写入 TTL 之后过期
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Cache 并发安全的泛型 LRU 缓存
//
// TTL 从最近一次 Set 起计算，读取不会延长条目寿命；缓存的值因此最多落后于数据源 TTL。
type Cache[K comparable, V any] struct {
	name    string
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	items   map[K]*list.Element
	lruList *list.List // 最近使用的在前
	stats   Stats
}

type entry[K comparable, V any] struct {
	key      K
	value    V
	storedAt time.Time
}

// Config 缓存配置
type Config struct {
	// Name 用于日志与 String
	Name string
	// MaxSize 最大条目数，0 表示不限制
	MaxSize int
	// TTL 为 0 表示永不过期
	TTL time.Duration
	// Now 时钟，测试时注入
	Now func() time.Time
}

// Stats 命中统计
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expires   int64
	Size      int
}

// New 创建缓存
func New[K comparable, V any](cfg Config) *Cache[K, V] {
	if cfg.Name == "" {
		cfg.Name = "unnamed"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache[K, V]{
		name:    cfg.Name,
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
		now:     cfg.Now,
		items:   make(map[K]*list.Element),
		lruList: list.New(),
	}
}

// Get 读取未过期的条目
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.expired(e) {
		c.remove(el)
		c.stats.Misses++
		c.stats.Expires++
		return zero, false
	}
	c.lruList.MoveToFront(el)
	c.stats.Hits++
	return e.value, true
}

// Set 写入或覆盖条目，并重置其 TTL
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.storedAt = now
		c.lruList.MoveToFront(el)
		return
	}
	if c.maxSize > 0 && len(c.items) >= c.maxSize {
		if oldest := c.lruList.Back(); oldest != nil {
			c.remove(oldest)
			c.stats.Evictions++
		}
	}
	c.items[key] = c.lruList.PushFront(&entry[K, V]{key: key, value: value, storedAt: now})
}

// Delete 删除条目，返回条目是否存在
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.remove(el)
	return true
}

// Clear 清空缓存，统计保留
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element)
	c.lruList.Init()
}

// Stats 统计副本
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.items)
	return s
}

// HitRate 命中率，没有访问时为 0
func (c *Cache[K, V]) HitRate() float64 {
	s := c.Stats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (c *Cache[K, V]) String() string {
	s := c.Stats()
	return fmt.Sprintf("Cache[%s]: size=%d/%d, hits=%d, misses=%d, evictions=%d, expires=%d",
		c.name, s.Size, c.maxSize, s.Hits, s.Misses, s.Evictions, s.Expires)
}

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl
}

// remove 需持锁调用
func (c *Cache[K, V]) remove(el *list.Element) {
	c.lruList.Remove(el)
	delete(c.items, el.Value.(*entry[K, V]).key)
}
