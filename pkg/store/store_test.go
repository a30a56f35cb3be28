package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories builds each KV implementation against a temp location
func storeFactories(t *testing.T) map[string]func() KV {
	return map[string]func() KV{
		"memory": func() KV { return NewMemoryStore() },
		"sqlite": func() KV {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestKVRoundTrip(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			kv := factory()
			defer kv.Close()
			ctx := context.Background()

			require.NoError(t, kv.Set(ctx, "case/100", []byte(`{"title":"a"}`)))

			value, err := kv.Get(ctx, "case/100")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"title":"a"}`), value)

			// Overwrite
			require.NoError(t, kv.Set(ctx, "case/100", []byte(`{"title":"b"}`)))
			value, err = kv.Get(ctx, "case/100")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"title":"b"}`), value)
		})
	}
}

func TestKVGetMissing(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			kv := factory()
			defer kv.Close()

			_, err := kv.Get(context.Background(), "missing")
			assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
		})
	}
}

func TestKVDelete(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			kv := factory()
			defer kv.Close()
			ctx := context.Background()

			require.NoError(t, kv.Set(ctx, "run/abc", []byte("x")))
			require.NoError(t, kv.Delete(ctx, "run/abc"))

			_, err := kv.Get(ctx, "run/abc")
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting a missing key is not an error
			assert.NoError(t, kv.Delete(ctx, "run/abc"))
		})
	}
}

func TestKVDeletePrefix(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			kv := factory()
			defer kv.Close()
			ctx := context.Background()

			require.NoError(t, kv.Set(ctx, "cache/aaa", []byte("1")))
			require.NoError(t, kv.Set(ctx, "cache/bbb", []byte("2")))
			require.NoError(t, kv.Set(ctx, "case/100", []byte("3")))

			require.NoError(t, kv.DeletePrefix(ctx, "cache/"))

			_, err := kv.Get(ctx, "cache/aaa")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = kv.Get(ctx, "cache/bbb")
			assert.ErrorIs(t, err, ErrNotFound)

			// Other prefixes untouched
			value, err := kv.Get(ctx, "case/100")
			require.NoError(t, err)
			assert.Equal(t, []byte("3"), value)
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "procedures", []byte(`{}`)))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "procedures")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{}`), value)
}

func TestJSONHelpers(t *testing.T) {
	kv := NewMemoryStore()
	ctx := context.Background()

	type record struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, SetJSON(ctx, kv, "run/1", record{Name: "stage1", Count: 4}))

	var loaded record
	require.NoError(t, GetJSON(ctx, kv, "run/1", &loaded))
	assert.Equal(t, record{Name: "stage1", Count: 4}, loaded)

	err := GetJSON(ctx, kv, "run/missing", &loaded)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "case/ext-9", CaseKey("ext-9"))
	assert.Equal(t, "run/r1", RunKey("r1"))
	assert.Equal(t, "manifest/r1", ManifestKey("r1"))
	assert.Equal(t, "checkpoint/r1", CheckpointKey("r1"))
}
