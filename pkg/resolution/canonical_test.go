package resolution

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainMap is an in-memory merge chain: id -> next hop (nil = canonical).
type chainMap map[string]*string

func (c chainMap) MergedInto(_ context.Context, id string) (*string, bool, error) {
	next, ok := c[id]
	if !ok {
		return nil, false, nil
	}
	return next, true, nil
}

func ref(s string) *string { return &s }

func TestCanonicalID(t *testing.T) {
	t.Run("already canonical", func(t *testing.T) {
		chain := chainMap{"a": nil}
		id, err := CanonicalID(context.Background(), chain, "a")
		require.NoError(t, err)
		assert.Equal(t, "a", id)
	})

	t.Run("follows chain to the end", func(t *testing.T) {
		chain := chainMap{"a": ref("b"), "b": ref("c"), "c": nil}
		id, err := CanonicalID(context.Background(), chain, "a")
		require.NoError(t, err)
		assert.Equal(t, "c", id)
	})

	t.Run("missing id", func(t *testing.T) {
		chain := chainMap{}
		id, err := CanonicalID(context.Background(), chain, "ghost")
		require.NoError(t, err)
		assert.Empty(t, id)
	})

	t.Run("two-node cycle detected", func(t *testing.T) {
		chain := chainMap{"a": ref("b"), "b": ref("a")}
		_, err := CanonicalID(context.Background(), chain, "a")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMergeCycle))
	})

	t.Run("self cycle detected", func(t *testing.T) {
		chain := chainMap{"a": ref("a")}
		_, err := CanonicalID(context.Background(), chain, "a")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMergeCycle))
	})
}
