package credcache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	m := NewMemory()
	m.now = func() time.Time { return now }

	creds := Credentials{AccessKeyID: "AKIA", SecretKey: "s", SessionToken: "tok"}
	m.Put(context.Background(), "bearer-1", creds, time.Minute)

	got, ok := m.Get(context.Background(), "bearer-1")
	if !ok || got.AccessKeyID != "AKIA" {
		t.Fatalf("expected cache hit, got ok=%v creds=%+v", ok, got)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := m.Get(context.Background(), "bearer-1"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestMemoryZeroTTLNotStored(t *testing.T) {
	m := NewMemory()
	m.Put(context.Background(), "t", Credentials{}, 0)
	if _, ok := m.Get(context.Background(), "t"); ok {
		t.Fatal("zero-ttl entry should not be stored")
	}
}

// Concurrent writers for the same token must not corrupt the map;
// last-writer-wins is acceptable because writes are idempotent.
func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Put(context.Background(), "shared", Credentials{AccessKeyID: "AKIA"}, time.Minute)
			m.Get(context.Background(), "shared")
		}()
	}
	wg.Wait()
	if got, ok := m.Get(context.Background(), "shared"); !ok || got.AccessKeyID != "AKIA" {
		t.Fatalf("expected hit after concurrent writes, got ok=%v", ok)
	}
}

func TestCredentialsExpired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := Credentials{Expiration: now.Add(time.Minute)}
	if c.Expired(now) {
		t.Fatal("not yet expired")
	}
	if !c.Expired(now.Add(2 * time.Minute)) {
		t.Fatal("should be expired")
	}
	if (Credentials{}).Expired(now) {
		t.Fatal("zero expiration never expires")
	}
}
