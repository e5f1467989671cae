package anonymizer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestFingerprint_ScopedByClass(t *testing.T) {
	a := Fingerprint(ClassName, "12345")
	b := Fingerprint(ClassID, "12345")
	if a == b {
		t.Fatal("expected different fingerprints for different classes")
	}
	if len(a) != fingerprintBytes*2 {
		t.Errorf("expected %d hex chars, got %d", fingerprintBytes*2, len(a))
	}
	if a != Fingerprint(ClassName, "12345") {
		t.Error("expected fingerprint to be stable")
	}
}

func TestShardedCache_Determinism(t *testing.T) {
	c := NewShardedCache()
	calls := 0
	gen := func() string {
		calls++
		return fmt.Sprintf("value-%d", calls)
	}

	first := c.GetOrCreate(ClassPhone, "555-0100", gen)
	second := c.GetOrCreate(ClassPhone, "555-0100", gen)
	if first != second {
		t.Errorf("expected same pseudonym, got %q and %q", first, second)
	}
	if calls != 1 {
		t.Errorf("expected generator to run once, ran %d times", calls)
	}
}

func TestShardedCache_ClassIsolation(t *testing.T) {
	c := NewShardedCache()
	name := c.GetOrCreate(ClassName, "smith", func() string { return "name-pseudonym" })
	id := c.GetOrCreate(ClassID, "smith", func() string { return "id-pseudonym" })
	if name == id {
		t.Fatal("expected classes not to alias")
	}
	if id != "id-pseudonym" {
		t.Errorf("expected id generator to run, got %q", id)
	}
}

func TestShardedCache_ConcurrentAtMostOnce(t *testing.T) {
	c := NewShardedCache()
	var calls int32
	var wg sync.WaitGroup
	results := make([]string, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.GetOrCreate(ClassSSN, "123-45-6789", func() string {
				n := atomic.AddInt32(&calls, 1)
				return fmt.Sprintf("gen-%d", n)
			})
		}(i)
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected exactly one generation, got %d", calls)
	}
	for i, r := range results {
		if r != results[0] {
			t.Errorf("result %d = %q, want %q", i, r, results[0])
		}
	}
}

func TestShardedCache_Stats(t *testing.T) {
	c := NewShardedCache()
	stats := c.Stats()
	for _, class := range ValueClasses() {
		if n, ok := stats[class]; !ok || n != 0 {
			t.Errorf("expected class %s reported as 0, got %d (present=%v)", class, n, ok)
		}
	}

	c.GetOrCreate(ClassName, "a", func() string { return "x" })
	c.GetOrCreate(ClassName, "b", func() string { return "y" })
	c.GetOrCreate(ClassAddress, "a", func() string { return "z" })
	c.GetOrCreate(ClassName, "a", func() string { return "ignored" })

	stats = c.Stats()
	if stats[ClassName] != 2 {
		t.Errorf("expected 2 names, got %d", stats[ClassName])
	}
	if stats[ClassAddress] != 1 {
		t.Errorf("expected 1 address, got %d", stats[ClassAddress])
	}
	if stats.Total() != 3 {
		t.Errorf("expected total 3, got %d", stats.Total())
	}
}
