package frontier

import (
	"sync"
	"testing"
)

func TestVisitedSetMarkIfAbsent(t *testing.T) {
	v := NewVisitedSet()
	if !v.MarkIfAbsent("http://example.test/") {
		t.Error("expected first mark to succeed")
	}
	if v.MarkIfAbsent("http://example.test/") {
		t.Error("expected second mark of same URL to fail")
	}
	if v.Len() != 1 {
		t.Errorf("expected 1 visited URL, got %d", v.Len())
	}
}

func TestVisitedSetConcurrentMarkIsExclusive(t *testing.T) {
	v := NewVisitedSet()
	const n = 100
	results := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = v.MarkIfAbsent("http://example.test/race")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, r := range results {
		if r {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one winner across concurrent marks, got %d", wins)
	}
}
