package leader

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is the persisted election-cell value: spec §6.4's single
// {tab_id, timestamp_ms} JSON object.
type Record struct {
	TabID       string `json:"tab_id"`
	HeartbeatMs int64  `json:"timestamp_ms"`
}

// ElectionCell is the shared mutable cell the Elector claims. Claim always
// performs an unconditional last-writer-wins write; ownership is decided
// by a subsequent Read (read-back-confirm), never by the cell itself.
type ElectionCell interface {
	Read(ctx context.Context) (Record, bool, error)
	Claim(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
}

// MemoryCell is an in-process ElectionCell, useful when every candidate
// consumer lives in the same process (tests, single-host deployments
// without Redis). It additionally exposes a change-notification channel.
type MemoryCell struct {
	mu      sync.Mutex
	rec     *Record
	changed chan struct{}
}

// NewMemoryCell constructs an empty cell.
func NewMemoryCell() *MemoryCell {
	return &MemoryCell{changed: make(chan struct{}, 1)}
}

func (c *MemoryCell) Read(_ context.Context) (Record, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return Record{}, false, nil
	}
	return *c.rec, true, nil
}

func (c *MemoryCell) Claim(_ context.Context, rec Record) error {
	c.mu.Lock()
	c.rec = &rec
	c.mu.Unlock()
	notify(c.changed)
	return nil
}

func (c *MemoryCell) Clear(_ context.Context) error {
	c.mu.Lock()
	c.rec = nil
	c.mu.Unlock()
	notify(c.changed)
	return nil
}

// Changed fires whenever the cell's value is written or cleared.
func (c *MemoryCell) Changed() <-chan struct{} { return c.changed }

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// cellTTL bounds how long a Redis-backed record survives without a
// renewal, as a belt-and-suspenders complement to the Elector's own 5s
// staleness check.
const cellTTL = 10 * time.Second

// RedisCell is an ElectionCell backed by a single Redis key, used when
// candidate consumers run in separate processes.
type RedisCell struct {
	client *redis.Client
	key    string
}

// NewRedisCell builds a RedisCell storing its record under key.
func NewRedisCell(client *redis.Client, key string) *RedisCell {
	return &RedisCell{client: client, key: key}
}

func (c *RedisCell) Read(ctx context.Context) (Record, bool, error) {
	val, err := c.client.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (c *RedisCell) Claim(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, payload, cellTTL).Err()
}

func (c *RedisCell) Clear(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
