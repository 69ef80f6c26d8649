// Package cache adds a Redis read-through layer in front of the task store.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/ldi/taskboard/pkg/models"
)

// Backend is the store being cached.
type Backend interface {
	ListTasks(ctx context.Context) ([]*models.Task, error)
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	CreateTask(ctx context.Context, in models.TaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, id int64, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// Cache serves ListTasks and GetTask from Redis when possible and evicts on
// every successful write. Redis failures fall back to the backend.
type Cache struct {
	base   Backend
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// New creates a caching wrapper around base. A nil client or zero ttl disables caching.
func New(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("cache.New: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		base:   base,
		redis:  client,
		ttl:    ttl,
		prefix: "taskboard:",
	}
}

func (c *Cache) ListTasks(ctx context.Context) ([]*models.Task, error) {
	var tasks []*models.Task
	if c.load(ctx, c.listKey(), &tasks) {
		return tasks, nil
	}

	tasks, err := c.base.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	c.store(ctx, c.listKey(), tasks)
	return tasks, nil
}

func (c *Cache) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	var task models.Task
	if c.load(ctx, c.taskKey(id), &task) {
		return &task, nil
	}

	t, err := c.base.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	c.store(ctx, c.taskKey(id), t)
	return t, nil
}

func (c *Cache) CreateTask(ctx context.Context, in models.TaskInput) (*models.Task, error) {
	t, err := c.base.CreateTask(ctx, in)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, c.listKey())
	return t, nil
}

func (c *Cache) UpdateTask(ctx context.Context, id int64, patch models.TaskPatch) (*models.Task, error) {
	t, err := c.base.UpdateTask(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, c.listKey(), c.taskKey(id))
	return t, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id int64) error {
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, c.listKey(), c.taskKey(id))
	return nil
}

// Ping checks the backend only; a missing Redis degrades to uncached reads.
func (c *Cache) Ping(ctx context.Context) error {
	return c.base.Ping(ctx)
}

// Invalidate drops every cached entry written by this cache.
func (c *Cache) Invalidate(ctx context.Context) {
	if c.redis == nil {
		return
	}
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if iter.Err() != nil || len(keys) == 0 {
		return
	}
	_ = c.redis.Del(ctx, keys...).Err()
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func (c *Cache) listKey() string {
	return c.prefix + "tasks"
}

func (c *Cache) taskKey(id int64) string {
	return c.prefix + "task:" + strconv.FormatInt(id, 10)
}
