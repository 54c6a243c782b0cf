package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	t.Run("Put and Get", func(t *testing.T) {
		err := store.Put(ctx, []byte("a"), []byte("1"))
		require.NoError(t, err)

		v, err := store.Get(ctx, []byte("a"))
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), v)
	})

	t.Run("Get missing returns ErrNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, []byte("missing"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, []byte("b"), []byte("2")))
		require.NoError(t, store.Delete(ctx, []byte("b")))
		_, err := store.Get(ctx, []byte("b"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Iter returns lexicographic order within prefix", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, []byte("p/2"), []byte("v2")))
		require.NoError(t, store.Put(ctx, []byte("p/1"), []byte("v1")))
		require.NoError(t, store.Put(ctx, []byte("p/3"), []byte("v3")))
		require.NoError(t, store.Put(ctx, []byte("q/1"), []byte("other")))

		it := store.Iter(ctx, []byte("p/"))
		defer it.Close()

		var keys []string
		for it.Next() {
			keys = append(keys, string(it.Key()))
		}
		assert.Equal(t, []string{"p/1", "p/2", "p/3"}, keys)
	})

	t.Run("MultiGet", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, []byte("m1"), []byte("v1")))
		vals, err := store.MultiGet(ctx, [][]byte{[]byte("m1"), []byte("missing-key")})
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), vals[0])
		assert.Nil(t, vals[1])
	})
}
