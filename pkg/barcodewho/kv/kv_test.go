package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	b, err := OpenBadger(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	onDisk, err := OpenBadger(BadgerOptions{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		b.Close()
		onDisk.Close()
	})
	return map[string]Store{"memory": NewMemory(), "badger": b, "badger-disk": onDisk}
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, Key{"names", "x"})
			require.True(t, errors.Is(err, ErrNotFound))
			require.True(t, errors.Is(err, internalerr.ErrNotFound))

			require.NoError(t, s.Set(ctx, Key{"names", "b"}, []byte("2")))
			require.NoError(t, s.BatchSet(ctx, []Entry{
				{Key: Key{"names", "a"}, Value: []byte("1")},
				{Key: Key{"namesake", "c"}, Value: []byte("3")},
			}))

			v, err := s.Get(ctx, Key{"names", "b"})
			require.NoError(t, err)
			require.Equal(t, "2", string(v))

			var keys []string
			for e, err := range s.List(ctx, Key{"names"}) {
				require.NoError(t, err)
				keys = append(keys, e.Key.String())
			}
			require.Equal(t, []string{"names/a", "names/b"}, keys)

			require.NoError(t, s.Delete(ctx, Key{"names", "a"}))
			require.NoError(t, s.Delete(ctx, Key{"names", "a"}))
			_, err = s.Get(ctx, Key{"names", "a"})
			require.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestOpenBadgerRequiresDir(t *testing.T) {
	_, err := OpenBadger(BadgerOptions{})
	require.Error(t, err)
}
