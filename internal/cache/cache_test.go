package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKey_Deterministic(t *testing.T) {
	k1 := Key("what is the grace period", "fp-1", "rag")
	k2 := Key("what is the grace period", "fp-1", "rag")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestKey_NoCollisionAcrossDocuments(t *testing.T) {
	sameQuestion := "what is the grace period"
	k1 := Key(sameQuestion, "fingerprint-doc-a", "rag")
	k2 := Key(sameQuestion, "fingerprint-doc-b", "rag")
	assert.NotEqual(t, k1, k2)
}

func TestKey_LengthPrefixed(t *testing.T) {
	// Concatenation-ambiguous parts must not collide.
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, s.Put(ctx, "k", "v", 0))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, "k", "v", time.Minute))

	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, s.Len())
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, "docqa", zap.NewNop()), mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, s.Put(ctx, "answer-key", "42", time.Hour))
	got, err := s.Get(ctx, "answer-key")
	require.NoError(t, err)
	assert.Equal(t, "42", got)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	require.NoError(t, s.Put(ctx, "k", "v", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestFSBlobStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSBlobStore(t.TempDir(), 0, zap.NewNop())
	require.NoError(t, err)

	_, err = s.GetBlob(ctx, "deadbeef")
	assert.ErrorIs(t, err, ErrCacheMiss)

	blob := []byte(`{"chunks":["a"],"embeddings":[[0.1]]}`)
	require.NoError(t, s.PutBlob(ctx, "deadbeef", blob))

	got, err := s.GetBlob(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestFSBlobStore_RejectsPathTraversal(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSBlobStore(t.TempDir(), 0, zap.NewNop())
	require.NoError(t, err)

	_, err = s.GetBlob(ctx, "../etc/passwd")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCacheMiss)

	err = s.PutBlob(ctx, "a/b", []byte("x"))
	require.Error(t, err)
}

func TestFSBlobStore_Sweep(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFSBlobStore(dir, 2, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.PutBlob(ctx, "first", []byte("1")))
	// Distinct mtimes so the sweep order is deterministic.
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "first.blob"), old, old))

	require.NoError(t, s.PutBlob(ctx, "second", []byte("2")))
	require.NoError(t, s.PutBlob(ctx, "third", []byte("3")))

	_, err = s.GetBlob(ctx, "first")
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = s.GetBlob(ctx, "second")
	assert.NoError(t, err)
	_, err = s.GetBlob(ctx, "third")
	assert.NoError(t, err)
}
