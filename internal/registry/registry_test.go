package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegistry_AddReplaces(t *testing.T) {
	r := New[string]("descriptors")

	if got := r.Add("ts", "v1"); got != "ts" {
		t.Errorf("Add() = %q, want %q", got, "ts")
	}
	r.Add("ts", "v2")

	got, err := r.Get("ts")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "v2" {
		t.Errorf("Get() = %q, want %q", got, "v2")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := New[int]("capabilities")

	_, err := r.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if v, ok := r.GetOrNil("missing"); ok || v != 0 {
		t.Errorf("GetOrNil(missing) = %v, %v", v, ok)
	}
	if v := r.GetOrDefault("missing", 7); v != 7 {
		t.Errorf("GetOrDefault(missing) = %v, want 7", v)
	}
	if r.Contains("missing") {
		t.Error("Contains(missing) = true")
	}
}

func TestRegistry_AddIfAbsent(t *testing.T) {
	r := New[string]("instances")

	v, stored := r.AddIfAbsent("go", "first")
	if !stored || v != "first" {
		t.Errorf("first AddIfAbsent = %q, %v", v, stored)
	}
	v, stored = r.AddIfAbsent("go", "second")
	if stored || v != "first" {
		t.Errorf("second AddIfAbsent = %q, %v, want first, false", v, stored)
	}
}

func TestRegistry_AllIsSnapshot(t *testing.T) {
	r := New[int]("streams")
	r.Add("a", 1)
	r.Add("b", 2)

	snap := r.All()
	r.Add("c", 3)
	snap["a"] = 100

	if len(snap) != 2 {
		t.Fatalf("len(snapshot) = %d, want 2", len(snap))
	}
	if _, ok := snap["c"]; ok {
		t.Error("snapshot observed a later Add")
	}
	if v, _ := r.Get("a"); v != 1 {
		t.Errorf("mutating the snapshot changed the registry: a = %d", v)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
	ids := r.IDs()
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Errorf("IDs() = %v", ids)
	}
}

func TestRegistry_ConcurrentAdds(t *testing.T) {
	r := New[int]("descriptors")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Add(fmt.Sprintf("id-%d", i%10), i)
			r.Contains("id-0")
		}(i)
	}
	wg.Wait()

	if r.Len() != 10 {
		t.Errorf("Len() = %d, want 10", r.Len())
	}
}

func TestLocks_SameMutexPerID(t *testing.T) {
	var l Locks

	var wg sync.WaitGroup
	got := make([]*sync.Mutex, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = l.For("ts")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(got); i++ {
		if got[i] != got[0] {
			t.Fatalf("For(ts) returned different mutexes")
		}
	}
	if l.For("go") == got[0] {
		t.Error("different ids share a mutex")
	}
}

func TestLocks_WithSerializes(t *testing.T) {
	var l Locks
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.With("ts", func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
}
