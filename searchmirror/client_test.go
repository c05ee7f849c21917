package searchmirror

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)

	c, err := NewClient(&redis.Options{Addr: mr.Addr()}, "palette-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewClientRequiresNamespace(t *testing.T) {
	_, err := NewClient(&redis.Options{}, "")
	assert.Error(t, err)
}

func TestIndexAndSearch(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	require.NoError(t, c.Index(ctx, "art", 10000002, map[string]string{
		"id":    "10000002",
		"title": "The Starry Night",
	}))
	require.NoError(t, c.Index(ctx, "artizen", 10000001, map[string]string{
		"id":   "10000001",
		"name": "Vincent van Gogh",
	}))

	results, err := c.Search(ctx, []string{"art", "artizen"}, "starry", 0, 20)
	require.NoError(t, err)

	assert.Len(t, results["art"], 1)
	assert.Equal(t, "The Starry Night", results["art"][0]["title"])
	assert.Empty(t, results["artizen"])
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	require.NoError(t, c.Index(ctx, "artizen", 10000001, map[string]string{"name": "Vincent van Gogh"}))

	results, err := c.Search(ctx, []string{"artizen"}, "VAN GOGH", 0, 20)
	require.NoError(t, err)
	assert.Len(t, results["artizen"], 1)
}

func TestSearchOrdersNewestFirstAndPaginates(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	for id := int64(10000001); id <= 10000005; id++ {
		require.NoError(t, c.Index(ctx, "art", id, map[string]string{
			"id":    strconv.FormatInt(id, 10),
			"title": "Composition",
		}))
	}

	page1, err := c.Search(ctx, []string{"art"}, "composition", 0, 2)
	require.NoError(t, err)
	require.Len(t, page1["art"], 2)
	assert.Equal(t, "10000005", page1["art"][0]["id"])

	page2, err := c.Search(ctx, []string{"art"}, "composition", 2, 2)
	require.NoError(t, err)
	require.Len(t, page2["art"], 2)
	assert.Equal(t, "10000003", page2["art"][0]["id"])
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	require.NoError(t, c.Index(ctx, "art", 10000002, map[string]string{"title": "The Starry Night"}))
	require.NoError(t, c.Remove(ctx, "art", 10000002))

	results, err := c.Search(ctx, []string{"art"}, "starry", 0, 20)
	require.NoError(t, err)
	assert.Empty(t, results["art"])

	// Removing again is a no-op.
	assert.NoError(t, c.Remove(ctx, "art", 10000002))
}
