// Package searchmirror maintains a best-effort full-text mirror of entity
// display attributes in Redis.
//
// The mirror is not authoritative: the coordination layer indexes documents
// after the authoritative writes land and logs (rather than propagates)
// indexing failures, so a degraded mirror never blocks creates or deletes.
// Query ranking is deliberately naive; this adapter only honors the contract
// the core needs.
package searchmirror

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Client provides namespaced Redis operations for the search mirror.
// The client is safe for concurrent use.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// NewClient creates a search mirror client. All keys are prefixed with the
// namespace so multiple deployments can share one Redis.
func NewClient(opts *redis.Options, namespace string) (*Client, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	return &Client{
		rdb:       redis.NewClient(opts),
		namespace: namespace,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) docKey(kind string, id int64) string {
	return fmt.Sprintf("%s:search:%s:%d", c.namespace, kind, id)
}

func (c *Client) idsKey(kind string) string {
	return fmt.Sprintf("%s:search:%s:ids", c.namespace, kind)
}

// Index writes the display fields of one entity as a hash and registers the
// id in the kind's member set. Indexing is idempotent.
func (c *Client) Index(ctx context.Context, kind string, id int64, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	key := c.docKey(kind, id)
	if err := c.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("index %s %d: %w", kind, id, err)
	}
	if err := c.rdb.SAdd(ctx, c.idsKey(kind), id).Err(); err != nil {
		return fmt.Errorf("register %s %d: %w", kind, id, err)
	}
	return nil
}

// Remove drops an entity from the mirror. Removing an absent id is a no-op.
func (c *Client) Remove(ctx context.Context, kind string, id int64) error {
	if err := c.rdb.Del(ctx, c.docKey(kind, id)).Err(); err != nil {
		return fmt.Errorf("remove %s %d: %w", kind, id, err)
	}
	if err := c.rdb.SRem(ctx, c.idsKey(kind), id).Err(); err != nil {
		return fmt.Errorf("unregister %s %d: %w", kind, id, err)
	}
	return nil
}

// Hit is one search result: the indexed display fields of an entity.
type Hit map[string]string

// Search scans each kind's indexed documents for a case-insensitive
// substring match of q and returns up to size hits per kind starting at
// offset from, newest id first.
func (c *Client) Search(ctx context.Context, kinds []string, q string, from, size int) (map[string][]Hit, error) {
	needle := strings.ToLower(q)
	results := make(map[string][]Hit, len(kinds))

	for _, kind := range kinds {
		ids, err := c.rdb.SMembers(ctx, c.idsKey(kind)).Result()
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", kind, err)
		}

		numeric := make([]int64, 0, len(ids))
		for _, raw := range ids {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			numeric = append(numeric, id)
		}
		sort.Slice(numeric, func(i, j int) bool { return numeric[i] > numeric[j] })

		hits := make([]Hit, 0, size)
		matched := 0
		for _, id := range numeric {
			fields, err := c.rdb.HGetAll(ctx, c.docKey(kind, id)).Result()
			if err != nil {
				return nil, fmt.Errorf("search %s %d: %w", kind, id, err)
			}
			if !matches(fields, needle) {
				continue
			}
			matched++
			if matched <= from {
				continue
			}
			hits = append(hits, Hit(fields))
			if len(hits) == size {
				break
			}
		}
		results[kind] = hits
	}

	return results, nil
}

func matches(fields map[string]string, needle string) bool {
	for _, v := range fields {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}
