package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/omnigw/internal/config"
	"github.com/vyrodovalexey/omnigw/internal/kvstore"
	"github.com/vyrodovalexey/omnigw/internal/retry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore reaches no backend at all.
type failingStore struct{}

var errUnreachable = errors.New("connection refused")

func (failingStore) SetWithExpiry(context.Context, string, []byte, time.Duration) error {
	return errUnreachable
}
func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errUnreachable }
func (failingStore) Delete(context.Context, string) error        { return errUnreachable }
func (failingStore) Ping(context.Context) error                  { return errUnreachable }
func (failingStore) Close() error                                { return nil }

func newRedisBacked(t *testing.T) (*Tiered, *miniredis.Miniredis, *fakeClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStore(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		kvstore.WithRetry(&retry.Config{MaxRetries: -1}),
	)
	t.Cleanup(func() { _ = store.Close() })

	clock := newFakeClock()
	return New(store, DefaultPolicy(), WithClock(clock.Now)), mr, clock
}

// ============================================================
// Expiry
// ============================================================

func TestTiered_EntryLiveUntilTTL(t *testing.T) {
	t.Parallel()

	c, mr, clock := newRedisBacked(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", map[string]int{"v": 1}, 10*time.Second))

	clock.Advance(10 * time.Second)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok, "entry must be live at exactly its TTL")
	assert.JSONEq(t, `{"v":1}`, string(got))

	clock.Advance(time.Millisecond)
	mr.FastForward(11 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestTiered_FastTierNeverServesExpired(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := New(nil, DefaultPolicy(), WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Second))
	clock.Advance(2 * time.Second)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	// still physically present until cleared
	assert.Equal(t, 1, c.Stats().FastEntries)
	assert.Equal(t, 1, c.ClearExpired())
	assert.Equal(t, 0, c.Stats().FastEntries)
}

func TestTiered_LastSetWins(t *testing.T) {
	t.Parallel()

	c, _, _ := newRedisBacked(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, 0))
	require.NoError(t, c.Set(ctx, "k", 2, 0))

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "2", string(got))
}

// ============================================================
// Durable tier
// ============================================================

func TestTiered_DurableHitRepopulatesWithDefaultTTL(t *testing.T) {
	t.Parallel()

	c, mr, clock := newRedisBacked(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("omnigw:k", `{"from":"durable"}`))
	mr.SetTTL("omnigw:k", time.Hour)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `{"from":"durable"}`, string(got))
	assert.Equal(t, int64(1), c.Stats().DurableHits)

	// the fast-tier copy lives for the default TTL, not the durable TTL
	mr.Del("omnigw:k")
	clock.Advance(DefaultTTL)
	_, ok = c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().FastHits)

	clock.Advance(time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestTiered_WritesBothTiers(t *testing.T) {
	t.Parallel()

	c, mr, _ := newRedisBacked(t)
	require.NoError(t, c.Set(context.Background(), "k", []string{"a"}, 30*time.Second))

	raw, err := mr.Get("omnigw:k")
	require.NoError(t, err)
	assert.JSONEq(t, `["a"]`, raw)
	assert.Equal(t, 30*time.Second, mr.TTL("omnigw:k"))
}

func TestTiered_DurableFailuresSwallowed(t *testing.T) {
	t.Parallel()

	c := New(failingStore{}, DefaultPolicy())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, `"v"`, string(got))

	_, ok = c.Get(ctx, "absent")
	assert.False(t, ok)

	c.Delete(ctx, "k")
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)

	// set, two durable reads and the delete
	assert.Equal(t, int64(4), c.Stats().DurableErrors)
}

func TestTiered_UndecodableDurableEntryIsMiss(t *testing.T) {
	t.Parallel()

	c, mr, _ := newRedisBacked(t)
	require.NoError(t, mr.Set("omnigw:k", "{not json"))

	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestTiered_DeleteRemovesBothTiers(t *testing.T) {
	t.Parallel()

	c, mr, _ := newRedisBacked(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", true, 0))
	c.Delete(ctx, "k")

	assert.False(t, mr.Exists("omnigw:k"))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

// ============================================================
// Encoding, eviction, policy
// ============================================================

func TestTiered_SetRejectsUnencodable(t *testing.T) {
	t.Parallel()

	c := New(nil, DefaultPolicy())
	err := c.Set(context.Background(), "k", func() {}, 0)
	assert.ErrorIs(t, err, ErrEncode)

	err = c.Set(context.Background(), "raw", json.RawMessage(`{`), 0)
	assert.ErrorIs(t, err, ErrEncode)
}

func TestTiered_GetInto(t *testing.T) {
	t.Parallel()

	c := New(nil, DefaultPolicy())
	ctx := context.Background()

	type profile struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.Set(ctx, "p", profile{Name: "ada"}, 0))

	var got profile
	ok, err := c.GetInto(ctx, "p", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ada", got.Name)

	ok, err = c.GetInto(ctx, "missing", &got)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestTiered_MaxEntriesEvictsOldest(t *testing.T) {
	t.Parallel()

	c := New(nil, DefaultPolicy(), WithMaxEntries(2))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), i, 0))
	}

	_, ok := c.Get(ctx, "k0")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "k2")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Stats().FastEntries)
}

func TestPolicy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultPolicy(), Policy{}.withDefaults())

	cfg := config.DefaultConfig().Cache
	cfg.APIResponseTTL = config.Duration(5 * time.Second)
	p := PolicyFromConfig(cfg)
	assert.Equal(t, 5*time.Second, p.APIResponse)
	assert.Equal(t, DefaultPermissionsTTL, p.Permissions)
}

func TestTiered_CategoryTTLsFollowPolicy(t *testing.T) {
	t.Parallel()

	c, mr, clock := newRedisBacked(t)
	ctx := context.Background()

	c.SetPolicy(Policy{APIResponse: 2 * time.Second})

	require.NoError(t, c.SetAPIResponse(ctx, "get", "/api/status", json.RawMessage(`{"ok":true}`)))
	require.NoError(t, c.SetPermissions(ctx, "u1", []string{"user"}))
	require.NoError(t, c.SetExternalSession(ctx, "github", "s1", map[string]string{"token": "t"}))

	assert.Equal(t, 2*time.Second, mr.TTL("omnigw:api:GET:/api/status"))
	assert.Equal(t, DefaultPermissionsTTL, mr.TTL("omnigw:user:permissions:u1"))
	assert.Equal(t, DefaultExternalSessionTTL, mr.TTL("omnigw:cache:session:github:s1"))

	perms, ok := c.GetPermissions(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, []string{"user"}, perms)

	_, ok = c.GetExternalSession(ctx, "github", "s1")
	assert.True(t, ok)

	clock.Advance(3 * time.Second)
	mr.FastForward(3 * time.Second)
	_, ok = c.GetAPIResponse(ctx, "GET", "/api/status")
	assert.False(t, ok)

	c.InvalidatePermissions(ctx, "u1")
	_, ok = c.GetPermissions(ctx, "u1")
	assert.False(t, ok)
}

func TestTiered_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := New(kvstore.NewMemoryStore(), DefaultPolicy(), WithMaxEntries(50))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", (i+j)%64)
				_ = c.Set(ctx, key, j, time.Minute)
				c.Get(ctx, key)
				if j%50 == 0 {
					c.ClearExpired()
					c.Delete(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Stats().FastEntries, 50)
}

func TestTiered_RunStopsWithContext(t *testing.T) {
	t.Parallel()

	c := New(nil, DefaultPolicy())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Millisecond) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestStats_HitRate(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Stats{}.HitRate())
	assert.InDelta(t, 0.75, Stats{FastHits: 2, DurableHits: 1, Misses: 1}.HitRate(), 1e-9)
}
