package ledger

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/signalsfoundry/dynpool/model"
)

func TestObserveAndGet(t *testing.T) {
	l := New()
	l.Observe(model.Disposition{
		CatalogID:     44713,
		Constellation: model.ConstellationStarlink,
		Stage:         "propagate",
		Status:        model.DispositionFailed,
		Reason:        "propagation returned non-finite position",
	})

	got, ok := l.Get(44713)
	if !ok {
		t.Fatalf("Get(44713) missing")
	}
	if got.Status != model.DispositionFailed || got.Stage != "propagate" {
		t.Fatalf("Get returned %#v", got)
	}
}

func TestObserve_TerminalDropWins(t *testing.T) {
	l := New()
	l.Observe(model.Disposition{CatalogID: 1, Stage: "visibility", Status: model.DispositionExcluded, Reason: "never above threshold"})

	// A later blanket inclusion must not mask the exclusion.
	l.Observe(model.Disposition{CatalogID: 1, Stage: "pool", Status: model.DispositionIncluded})

	got, _ := l.Get(1)
	if got.Status != model.DispositionExcluded {
		t.Fatalf("exclusion overwritten: %#v", got)
	}

	// A later failure may refine an inclusion.
	l.Observe(model.Disposition{CatalogID: 2, Stage: "catalog", Status: model.DispositionIncluded})
	l.Observe(model.Disposition{CatalogID: 2, Stage: "signal", Status: model.DispositionFailed, Reason: "link budget produced NaN"})
	got, _ = l.Get(2)
	if got.Status != model.DispositionFailed {
		t.Fatalf("failure did not overwrite inclusion: %#v", got)
	}
}

func TestSnapshotOrderedAndCounts(t *testing.T) {
	l := New()
	for _, id := range []uint32{300, 100, 200} {
		l.Observe(model.Disposition{CatalogID: id, Status: model.DispositionIncluded})
	}
	l.Observe(model.Disposition{CatalogID: 50, Status: model.DispositionExcluded})

	snap := l.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("Snapshot len = %d, want 4", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i-1].CatalogID >= snap[i].CatalogID {
			t.Fatalf("snapshot not ordered: %d before %d", snap[i-1].CatalogID, snap[i].CatalogID)
		}
	}

	counts := l.Counts()
	if counts[model.DispositionIncluded] != 3 || counts[model.DispositionExcluded] != 1 {
		t.Fatalf("Counts = %#v", counts)
	}
}

func TestSubscribe(t *testing.T) {
	l := New()

	var wg sync.WaitGroup
	wg.Add(1)
	var got model.Disposition
	unsub := l.Subscribe(func(d model.Disposition) {
		got = d
		wg.Done()
	})

	l.Observe(model.Disposition{CatalogID: 7, Status: model.DispositionFailed, Reason: "stale elements"})
	wg.Wait()

	if got.CatalogID != 7 || got.Status != model.DispositionFailed {
		t.Fatalf("subscriber saw %#v", got)
	}

	unsub()
	l.Observe(model.Disposition{CatalogID: 8, Status: model.DispositionIncluded})
	if got.CatalogID != 7 {
		t.Fatalf("unsubscribed callback still invoked: %#v", got)
	}
}

func TestSubscribe_UnsubscribeRemovesOnlyItself(t *testing.T) {
	l := New()

	var first, second int
	unsubFirst := l.Subscribe(func(model.Disposition) { first++ })
	l.Subscribe(func(model.Disposition) { second++ })

	unsubFirst()
	unsubFirst() // repeated calls must stay no-ops

	l.Observe(model.Disposition{CatalogID: 9, Status: model.DispositionIncluded})

	if first != 0 {
		t.Fatalf("unsubscribed callback fired %d times", first)
	}
	if second != 1 {
		t.Fatalf("remaining subscriber fired %d times, want 1", second)
	}
}

func TestReconcile(t *testing.T) {
	l := New()
	for i := range 5 {
		l.Observe(model.Disposition{CatalogID: uint32(i + 1), Status: model.DispositionIncluded})
	}

	if err := l.Reconcile(5); err != nil {
		t.Fatalf("Reconcile(5): %v", err)
	}
	if err := l.Reconcile(6); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("Reconcile(6) = %v, want ErrValidation", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	l := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			l.Observe(model.Disposition{
				CatalogID: uint32(n),
				Status:    model.DispositionIncluded,
				Reason:    fmt.Sprintf("writer %d", n),
			})
		}(i)
		go func() {
			defer wg.Done()
			_ = l.Snapshot()
			_ = l.Counts()
		}()
	}
	wg.Wait()

	if l.Len() != 10 {
		t.Fatalf("Len = %d, want 10", l.Len())
	}
}
