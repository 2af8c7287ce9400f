package preferences

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestClampSpotsLimit(t *testing.T) {
	tests := []struct {
		n, max, want int
	}{
		{n: 0, max: 20, want: 1},
		{n: 5, max: 20, want: 5},
		{n: 25, max: 20, want: 20},
		{n: 15, max: 10, want: 10},
		{n: 30, max: 50, want: 20},
	}
	for _, tt := range tests {
		if got := ClampSpotsLimit(tt.n, tt.max); got != tt.want {
			t.Errorf("ClampSpotsLimit(%d, %d) = %d, want %d", tt.n, tt.max, got, tt.want)
		}
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := NewRedisStore(rdb, time.Hour)
	ctx := context.Background()

	if _, ok, err := store.GetSpotsLimit(ctx, "browser-1"); err != nil || ok {
		t.Fatalf("expected no stored limit, got ok=%v err=%v", ok, err)
	}
	if err := store.SetSpotsLimit(ctx, "browser-1", 7); err != nil {
		t.Fatalf("SetSpotsLimit: %v", err)
	}
	n, ok, err := store.GetSpotsLimit(ctx, "browser-1")
	if err != nil || !ok || n != 7 {
		t.Fatalf("GetSpotsLimit = %d, %v, %v", n, ok, err)
	}

	key := store.key("browser-1")
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Fatalf("ttl = %v, want 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, _ := store.GetSpotsLimit(ctx, "browser-1"); ok {
		t.Fatalf("expected limit to expire")
	}
}

func TestRedisStoreClampsAndIgnoresCorrupt(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := NewRedisStore(rdb, 0)
	ctx := context.Background()

	if err := store.SetSpotsLimit(ctx, "c", 99); err != nil {
		t.Fatalf("SetSpotsLimit: %v", err)
	}
	if n, _, _ := store.GetSpotsLimit(ctx, "c"); n != MaxSpotsLimit {
		t.Fatalf("limit = %d, want %d", n, MaxSpotsLimit)
	}

	mr.HSet(store.key("c"), fieldSpotsLimit, "many")
	if _, ok, err := store.GetSpotsLimit(ctx, "c"); ok || err != nil {
		t.Fatalf("expected corrupt value to read as absent, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.SetSpotsLimit(ctx, "", 3); err == nil {
		t.Fatalf("expected error for empty client id")
	}
	if err := store.SetSpotsLimit(ctx, "c", -4); err != nil {
		t.Fatalf("SetSpotsLimit: %v", err)
	}
	n, ok, err := store.GetSpotsLimit(ctx, "c")
	if err != nil || !ok || n != MinSpotsLimit {
		t.Fatalf("GetSpotsLimit = %d, %v, %v", n, ok, err)
	}
}

func TestStoresKeepClientIDsDistinct(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	stores := map[string]Store{
		"redis":  NewRedisStore(rdb, time.Hour),
		"memory": NewMemoryStore(),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.SetSpotsLimit(ctx, "Browser-A", 4); err != nil {
				t.Fatalf("SetSpotsLimit: %v", err)
			}
			if err := store.SetSpotsLimit(ctx, "browser-a", 9); err != nil {
				t.Fatalf("SetSpotsLimit: %v", err)
			}
			if n, ok, _ := store.GetSpotsLimit(ctx, "Browser-A"); !ok || n != 4 {
				t.Fatalf("Browser-A = %d, %v", n, ok)
			}
			if n, ok, _ := store.GetSpotsLimit(ctx, "browser-a"); !ok || n != 9 {
				t.Fatalf("browser-a = %d, %v", n, ok)
			}
		})
	}
}
