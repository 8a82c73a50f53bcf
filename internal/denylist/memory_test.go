package denylist

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
)

func TestMemoryStore_Expiry(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk)
	ctx := context.Background()

	if err := store.SetWithTTL(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	if ok, _ := store.Exists(ctx, "k"); !ok {
		t.Fatal("Exists = false, want true before expiry")
	}

	clk.Advance(time.Minute)
	if ok, _ := store.Exists(ctx, "k"); ok {
		t.Fatal("Exists = true, want false at expiry")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after expired read", store.Len())
	}
}

func TestMemoryStore_MissingKey(t *testing.T) {
	store := NewMemoryStore(nil)
	ok, err := store.Exists(context.Background(), "nope")
	if err != nil || ok {
		t.Errorf("Exists = %v, %v; want false, nil", ok, err)
	}
}

func TestMemoryStore_OverwriteExtends(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk)
	ctx := context.Background()

	_ = store.SetWithTTL(ctx, "k", "v", time.Minute)
	clk.Advance(30 * time.Second)
	_ = store.SetWithTTL(ctx, "k", "v", time.Minute)
	clk.Advance(45 * time.Second)

	if ok, _ := store.Exists(ctx, "k"); !ok {
		t.Error("overwritten entry should still exist")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			_ = store.SetWithTTL(ctx, key, "v", time.Minute)
			_, _ = store.Exists(ctx, key)
		}(i)
	}
	wg.Wait()
	if store.Len() != 5 {
		t.Errorf("Len() = %d, want 5", store.Len())
	}
}
