package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Timi0217/mixtapelive-sub000/internal/clock"
	"github.com/Timi0217/mixtapelive-sub000/internal/models"
)

func TestTrySetActiveSession_MutualExclusion(t *testing.T) {
	cache := NewMemoryCache(nil)
	ctx := context.Background()

	// Two concurrent starts for the same curator: exactly one must win.
	const attempts = 50
	var wg sync.WaitGroup
	results := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := cache.TrySetActiveSession(ctx, "curator-1", "session-a")
			if err != nil {
				t.Errorf("TrySetActiveSession returned error: %v", err)
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", wins)
	}
}

func TestActiveSession_ClearReleasesKey(t *testing.T) {
	cache := NewMemoryCache(nil)
	ctx := context.Background()

	cache.TrySetActiveSession(ctx, "curator-1", "session-a")

	got, _ := cache.GetActiveSession(ctx, "curator-1")
	if got != "session-a" {
		t.Fatalf("Expected session-a, got %q", got)
	}

	cache.ClearActiveSession(ctx, "curator-1")

	// A new session should now be able to reserve the key
	ok, _ := cache.TrySetActiveSession(ctx, "curator-1", "session-b")
	if !ok {
		t.Error("Expected reservation to succeed after clear")
	}
}

func TestTrackSnapshot_TTL(t *testing.T) {
	clk := &clock.MockClock{MockTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewMemoryCache(clk)
	ctx := context.Background()

	snap := &models.TrackSnapshot{CuratorID: "curator-1", TrackID: "track-9", Platform: "spotify"}
	cache.SetTrackSnapshot(ctx, "curator-1", snap, 60*time.Second)

	// Fresh reads return the snapshot unchanged
	clk.Advance(59 * time.Second)
	got, _ := cache.GetTrackSnapshot(ctx, "curator-1")
	if got == nil || got.TrackID != "track-9" {
		t.Fatalf("Expected fresh snapshot, got %v", got)
	}

	// At the 60s boundary it is stale
	clk.Advance(1 * time.Second)
	got, _ = cache.GetTrackSnapshot(ctx, "curator-1")
	if got != nil {
		t.Errorf("Expected stale snapshot to be absent, got %v", got)
	}
}

func TestBatchGetTrackSnapshots(t *testing.T) {
	cache := NewMemoryCache(nil)
	ctx := context.Background()

	cache.SetTrackSnapshot(ctx, "c1", &models.TrackSnapshot{TrackID: "t1"}, time.Minute)
	cache.SetTrackSnapshot(ctx, "c2", &models.TrackSnapshot{TrackID: "t2"}, time.Minute)

	snaps, err := cache.BatchGetTrackSnapshots(ctx, []string{"c1", "c2", "c3"})
	if err != nil {
		t.Fatalf("BatchGetTrackSnapshots error: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(snaps))
	}
	if snaps["c1"].TrackID != "t1" || snaps["c2"].TrackID != "t2" {
		t.Errorf("Wrong snapshots returned: %v", snaps)
	}
	if _, ok := snaps["c3"]; ok {
		t.Error("Curator with no snapshot should be absent from the map")
	}
}

func TestListenerSet(t *testing.T) {
	cache := NewMemoryCache(nil)
	ctx := context.Background()

	cache.AddListener(ctx, "session-a", "u1")
	cache.AddListener(ctx, "session-a", "u2")
	cache.AddListener(ctx, "session-a", "u2") // idempotent

	count, _ := cache.ListenerCount(ctx, "session-a")
	if count != 2 {
		t.Errorf("Expected 2 listeners, got %d", count)
	}

	cache.RemoveListener(ctx, "session-a", "u1")
	listeners, _ := cache.Listeners(ctx, "session-a")
	if len(listeners) != 1 || listeners[0] != "u2" {
		t.Errorf("Expected [u2], got %v", listeners)
	}
}

func TestListenerSet_SafetyExpiry(t *testing.T) {
	clk := &clock.MockClock{MockTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewMemoryCache(clk)
	ctx := context.Background()

	cache.AddListener(ctx, "session-a", "u1")

	// An abandoned session's listener set self-heals after 1h
	clk.Advance(ListenerSetTTL + time.Second)
	count, _ := cache.ListenerCount(ctx, "session-a")
	if count != 0 {
		t.Errorf("Expected expired set to count 0, got %d", count)
	}
}

func TestCheckAndConsumeRateLimit(t *testing.T) {
	clk := &clock.MockClock{MockTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewMemoryCache(clk)
	ctx := context.Background()

	window := 3 * time.Second

	ok, _ := cache.CheckAndConsumeRateLimit(ctx, "u1", "session-a", window)
	if !ok {
		t.Fatal("First send should pass")
	}

	// 1s later: still inside the window
	clk.Advance(time.Second)
	ok, _ = cache.CheckAndConsumeRateLimit(ctx, "u1", "session-a", window)
	if ok {
		t.Error("Second send inside the window should be rejected")
	}

	// Different user is unaffected
	ok, _ = cache.CheckAndConsumeRateLimit(ctx, "u2", "session-a", window)
	if !ok {
		t.Error("Other users should not share the cooldown")
	}

	// After the window, allowed again
	clk.Advance(3 * time.Second)
	ok, _ = cache.CheckAndConsumeRateLimit(ctx, "u1", "session-a", window)
	if !ok {
		t.Error("Send after the window should pass")
	}
}

func TestCheckAndConsumeRateLimit_Concurrent(t *testing.T) {
	cache := NewMemoryCache(nil)
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := cache.CheckAndConsumeRateLimit(ctx, "u1", "session-a", 3*time.Second)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	passed := 0
	for ok := range results {
		if ok {
			passed++
		}
	}
	if passed != 1 {
		t.Errorf("Expected exactly 1 send to pass, got %d", passed)
	}
}

func TestLiveIndex_Ordering(t *testing.T) {
	cache := NewMemoryCache(nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.AddToLiveIndex(ctx, "s-newest", base.Add(2*time.Minute))
	cache.AddToLiveIndex(ctx, "s-oldest", base)
	cache.AddToLiveIndex(ctx, "s-middle", base.Add(time.Minute))

	ids, _ := cache.LiveIndex(ctx)
	want := []string{"s-oldest", "s-middle", "s-newest"}
	if len(ids) != len(want) {
		t.Fatalf("Expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Index order wrong at %d: got %s, want %s", i, ids[i], want[i])
		}
	}

	cache.RemoveFromLiveIndex(ctx, "s-middle")
	ids, _ = cache.LiveIndex(ctx)
	if len(ids) != 2 {
		t.Errorf("Expected 2 ids after removal, got %d", len(ids))
	}
}
