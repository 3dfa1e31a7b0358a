package kpm

import (
	"sync"
	"testing"

	"github.com/j-veylop/kpm-aggregator/internal/models"
)

func newAgg(root string) func() *models.ProjectAggregate {
	return func() *models.ProjectAggregate {
		return models.NewProjectAggregate(root, root)
	}
}

func TestStore_UpdateCreatesOnce(t *testing.T) {
	s := NewStore()
	created := 0
	create := func() *models.ProjectAggregate {
		created++
		return models.NewProjectAggregate("/p", "p")
	}

	for range 3 {
		s.Update("/p", create, func(agg *models.ProjectAggregate) {
			agg.Keystrokes++
		})
	}

	if created != 1 {
		t.Errorf("create called %d times, want 1", created)
	}
	agg, ok := s.Get("/p")
	if !ok {
		t.Fatal("Get(/p) not found")
	}
	if agg.Keystrokes != 3 {
		t.Errorf("Keystrokes = %d, want 3", agg.Keystrokes)
	}
}

func TestStore_Take(t *testing.T) {
	s := NewStore()
	s.Update("/p", newAgg("/p"), func(agg *models.ProjectAggregate) {
		agg.Keystrokes = 5
	})

	agg := s.Take("/p")
	if agg == nil || agg.Keystrokes != 5 {
		t.Fatalf("Take(/p) = %+v, want keystrokes 5", agg)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Take, want 0", s.Len())
	}
	if s.Take("/p") != nil {
		t.Error("second Take should return nil")
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.Update("/b", newAgg("/b"), func(agg *models.ProjectAggregate) {
		agg.File("/b/x.go").Add = 1
	})
	s.Update("/a", newAgg("/a"), func(*models.ProjectAggregate) {})

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() len = %d, want 2", len(snap))
	}
	if snap[0].Directory != "/a" || snap[1].Directory != "/b" {
		t.Errorf("Snapshot() not sorted: %s, %s", snap[0].Directory, snap[1].Directory)
	}

	snap[1].Source["/b/x.go"].Add = 100
	agg, _ := s.Get("/b")
	if agg.Source["/b/x.go"].Add != 1 {
		t.Error("mutating snapshot changed the store")
	}
}

func TestStore_Keys(t *testing.T) {
	s := NewStore()
	for _, k := range []string{"/c", "/a", "/b"} {
		s.Update(k, newAgg(k), func(*models.ProjectAggregate) {})
	}
	keys := s.Keys()
	want := []string{"/a", "/b", "/c"}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestStore_ConcurrentUpdateAndTake(t *testing.T) {
	s := NewStore()
	const writers = 8
	const perWriter = 200

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		taken int
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				s.Update("/p", newAgg("/p"), func(agg *models.ProjectAggregate) {
					agg.Keystrokes++
				})
			}
		}()
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-done:
				return
			default:
			}
			if agg := s.Take("/p"); agg != nil {
				mu.Lock()
				taken += agg.Keystrokes
				mu.Unlock()
			}
		}
	}()

	wg.Wait()
	close(done)
	<-stopped
	if agg := s.Take("/p"); agg != nil {
		mu.Lock()
		taken += agg.Keystrokes
		mu.Unlock()
	}

	mu.Lock()
	defer mu.Unlock()
	if taken != writers*perWriter {
		t.Errorf("total keystrokes = %d, want %d", taken, writers*perWriter)
	}
}
