package auth

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newClockedCache(ttl time.Duration) (*KeyCache, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewKeyCache(ttl)
	c.now = clk.Now
	return c, clk
}

func TestKeyCache_FreshHit(t *testing.T) {
	c, _ := newClockedCache(time.Minute)
	c.Put("egk_abc123", &ProjectContext{ProjectID: "proj_1"})

	res := c.Lookup("egk_abc123")
	if !res.Hit || res.Refresh {
		t.Fatalf("expected fresh hit, got %+v", res)
	}
	if res.Project.ProjectID != "proj_1" {
		t.Errorf("expected proj_1, got %s", res.Project.ProjectID)
	}
}

func TestKeyCache_Miss(t *testing.T) {
	c, _ := newClockedCache(time.Minute)

	if res := c.Lookup("egk_nonexistent"); res != (Lookup{}) {
		t.Errorf("expected empty lookup on miss, got %+v", res)
	}
}

func TestKeyCache_FreshUntilExactlyTTL(t *testing.T) {
	c, clk := newClockedCache(30 * time.Second)
	c.Put("egk_abc123", &ProjectContext{ProjectID: "proj_1"})

	clk.Advance(30*time.Second - time.Nanosecond)
	if c.Lookup("egk_abc123").Refresh {
		t.Fatal("entry expired before its TTL")
	}
	clk.Advance(time.Nanosecond)
	if !c.Lookup("egk_abc123").Refresh {
		t.Error("entry should be stale once its TTL has elapsed")
	}
}

func TestKeyCache_StaleSignalsRefreshOnce(t *testing.T) {
	c, clk := newClockedCache(time.Second)
	c.Put("egk_abc123", &ProjectContext{ProjectID: "proj_1"})
	clk.Advance(time.Minute)

	first := c.Lookup("egk_abc123")
	if !first.Hit || !first.Refresh {
		t.Fatalf("first stale read should hit and signal refresh, got %+v", first)
	}
	second := c.Lookup("egk_abc123")
	if !second.Hit || second.Refresh {
		t.Errorf("second stale read should hit without refresh, got %+v", second)
	}
	if second.Project.ProjectID != "proj_1" {
		t.Error("stale read should still return the project")
	}
}

func TestKeyCache_PutAfterStaleRestartsTTL(t *testing.T) {
	c, clk := newClockedCache(time.Second)
	c.Put("egk_abc123", &ProjectContext{ProjectID: "proj_1"})
	clk.Advance(2 * time.Second)
	if !c.Lookup("egk_abc123").Refresh {
		t.Fatal("expected refresh signal")
	}

	c.Put("egk_abc123", &ProjectContext{ProjectID: "proj_1", Name: "renamed"})
	res := c.Lookup("egk_abc123")
	if !res.Hit || res.Refresh {
		t.Fatalf("expected fresh hit after Put, got %+v", res)
	}
	if res.Project.Name != "renamed" {
		t.Errorf("expected updated project, got %+v", res.Project)
	}

	clk.Advance(2 * time.Second)
	if !c.Lookup("egk_abc123").Refresh {
		t.Error("a refreshed entry should signal again on its next expiry")
	}
}

func TestKeyCache_Evict(t *testing.T) {
	c, _ := newClockedCache(time.Minute)
	c.Put("egk_abc123", &ProjectContext{ProjectID: "proj_1"})

	c.Evict("egk_abc123")
	c.Evict("egk_abc123")

	if c.Lookup("egk_abc123").Hit {
		t.Error("expected miss after Evict")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}

func TestKeyCache_EvictProject(t *testing.T) {
	c, _ := newClockedCache(time.Minute)
	c.Put("egk_key1aaaa", &ProjectContext{ProjectID: "proj_1"})
	c.Put("egk_key2bbbb", &ProjectContext{ProjectID: "proj_1"})
	c.Put("egk_key3cccc", &ProjectContext{ProjectID: "proj_2"})

	c.EvictProject("proj_1")

	if c.Lookup("egk_key1aaaa").Hit || c.Lookup("egk_key2bbbb").Hit {
		t.Error("expected proj_1 keys evicted")
	}
	if !c.Lookup("egk_key3cccc").Hit {
		t.Error("expected proj_2 key kept")
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 cached key, got %d", c.Len())
	}
}

func TestKeyCache_PutMovesKeyBetweenProjects(t *testing.T) {
	c, _ := newClockedCache(time.Minute)
	c.Put("egk_key1aaaa", &ProjectContext{ProjectID: "proj_1"})
	c.Put("egk_key1aaaa", &ProjectContext{ProjectID: "proj_2"})

	c.EvictProject("proj_1")
	if res := c.Lookup("egk_key1aaaa"); !res.Hit || res.Project.ProjectID != "proj_2" {
		t.Errorf("evicting the old project should keep the reassigned key, got %+v", res)
	}

	c.EvictProject("proj_2")
	if c.Lookup("egk_key1aaaa").Hit {
		t.Error("expected key evicted with its current project")
	}
}

func TestKeyCache_ConcurrentStaleRefresh(t *testing.T) {
	c, clk := newClockedCache(time.Second)
	c.Put("egk_key", &ProjectContext{ProjectID: "proj_1"})
	clk.Advance(time.Minute)

	var wg sync.WaitGroup
	var refreshes atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.Lookup("egk_key")
			if !res.Hit {
				t.Error("expected stale hit")
			}
			if res.Refresh {
				refreshes.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := refreshes.Load(); n != 1 {
		t.Errorf("expected exactly 1 refresh signal, got %d", n)
	}
}

func BenchmarkKeyCache_Lookup_FreshHit(b *testing.B) {
	c := NewKeyCache(5 * time.Minute)
	c.Put("egk_bench_key", &ProjectContext{ProjectID: "proj_bench", Name: "bench"})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if !c.Lookup("egk_bench_key").Hit {
				b.Fatal("expected hit")
			}
		}
	})
}
