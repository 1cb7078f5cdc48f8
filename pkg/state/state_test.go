package state

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client)
}

func TestStore_Config(t *testing.T) {
	for _, mode := range []string{"redis", "memory"} {
		t.Run(mode, func(t *testing.T) {
			assert := assert.New(t)
			ctx := context.Background()

			var store *Store
			if mode == "redis" {
				store = redisStore(t)
			} else {
				store = NewStore(nil)
			}

			value, err := store.GetString(ctx, "missing", "fallback")
			require.NoError(t, err)
			assert.Equal("fallback", value)

			require.NoError(t, store.SetConfig(ctx, "max_rows", "5000"))
			n, err := store.GetInt(ctx, "max_rows", 10)
			require.NoError(t, err)
			assert.Equal(int64(5000), n)

			require.NoError(t, store.SetConfig(ctx, "use_final", "true"))
			b, err := store.GetBool(ctx, "use_final", false)
			require.NoError(t, err)
			assert.True(b)

			// unparseable values fall back
			require.NoError(t, store.SetConfig(ctx, "max_rows", "lots"))
			n, err = store.GetInt(ctx, "max_rows", 10)
			require.NoError(t, err)
			assert.Equal(int64(10), n)
		})
	}
}

func TestStore_QueryFlags(t *testing.T) {
	for _, mode := range []string{"redis", "memory"} {
		t.Run(mode, func(t *testing.T) {
			assert := assert.New(t)
			ctx := context.Background()

			var store *Store
			if mode == "redis" {
				store = redisStore(t)
			} else {
				store = NewStore(nil)
			}

			needsFinal, excluded, err := store.QueryFlags(ctx, []int64{1, 2})
			require.NoError(t, err)
			assert.False(needsFinal)
			assert.Empty(excluded)

			require.NoError(t, store.SetProjectNeedsFinal(ctx, 1))
			require.NoError(t, store.AddExcludedGroups(ctx, 2, []int64{10, 20}))

			needsFinal, excluded, err = store.QueryFlags(ctx, []int64{1, 2})
			require.NoError(t, err)
			assert.True(needsFinal)
			assert.Equal([]int64{10, 20}, excluded)

			// other projects are unaffected
			needsFinal, excluded, err = store.QueryFlags(ctx, []int64{3})
			require.NoError(t, err)
			assert.False(needsFinal)
			assert.Empty(excluded)
		})
	}
}

func TestStore_QueryFlagsOrderStable(t *testing.T) {
	for _, mode := range []string{"redis", "memory"} {
		t.Run(mode, func(t *testing.T) {
			assert := assert.New(t)
			ctx := context.Background()

			var store *Store
			if mode == "redis" {
				store = redisStore(t)
			} else {
				store = NewStore(nil)
			}
			require.NoError(t, store.AddExcludedGroups(ctx, 1, []int64{30, 10, 20, 40, 5}))

			// the exclusion lands in the query text, so repeated calls
			// must produce the same order
			first, excluded, err := store.QueryFlags(ctx, []int64{1})
			require.NoError(t, err)
			assert.False(first)
			assert.Equal([]int64{5, 10, 20, 30, 40}, excluded)
			for i := 0; i < 5; i++ {
				_, again, err := store.QueryFlags(ctx, []int64{1})
				require.NoError(t, err)
				assert.Equal(excluded, again)
			}
		})
	}
}
