package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble/v2"

	"loom/internal/realtime"
)

// Cache is the local message cache: per-peer JSON snapshots in a pebble
// database so previously seen conversations render without the backend.
type Cache struct {
	mu sync.Mutex
	db *pebble.DB
}

// OpenCache opens (or creates) the cache at dir.
func OpenCache(dir string) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("chat: empty cache dir")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("chat: open cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

// Put replaces the cached snapshot for peerID.
func (c *Cache) Put(peerID int64, msgs []realtime.Message) error {
	if c == nil || c.db == nil {
		return nil
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Set(cacheKey(peerID), data, pebble.Sync)
}

// Get returns the cached snapshot for peerID; ok=false when none exists.
func (c *Cache) Get(peerID int64) ([]realtime.Message, bool, error) {
	if c == nil || c.db == nil {
		return nil, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	data, closer, err := c.db.Get(cacheKey(peerID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = closer.Close() }()

	var msgs []realtime.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, false, err
	}
	return msgs, true, nil
}

func cacheKey(peerID int64) []byte {
	return []byte("messages/" + strconv.FormatInt(peerID, 10))
}
