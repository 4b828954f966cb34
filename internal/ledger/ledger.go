// Package ledger tracks the terminal disposition of every catalog entry a
// run has seen. Every satellite that enters the pipeline leaves exactly one
// record here; the run report reconciles the ledger against the input count.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/dynpool/model"
)

// Ledger is an in-memory, thread-safe disposition store. Stages record
// exclusions and failures as they happen; the runner marks survivors
// included at the end.
type Ledger struct {
	mu sync.RWMutex

	entries map[uint32]model.Disposition

	subs    map[int]func(model.Disposition)
	nextSub int
}

// New constructs an empty ledger.
func New() *Ledger {
	return &Ledger{
		entries: make(map[uint32]model.Disposition),
		subs:    make(map[int]func(model.Disposition)),
	}
}

// Observe records a disposition. A satellite already excluded or failed
// keeps its original record: early terminal decisions win, so a later
// blanket inclusion pass cannot mask a drop.
func (l *Ledger) Observe(d model.Disposition) {
	l.mu.Lock()
	if prev, ok := l.entries[d.CatalogID]; ok &&
		prev.Status != model.DispositionIncluded && d.Status == model.DispositionIncluded {
		l.mu.Unlock()
		return
	}
	l.entries[d.CatalogID] = d
	ids := make([]int, 0, len(l.subs))
	for id := range l.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(model.Disposition), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, l.subs[id])
	}
	l.mu.Unlock()

	// Notify subscribers outside the lock, in registration order, to
	// avoid deadlocks.
	for _, sub := range subs {
		sub(d)
	}
}

// Get returns the disposition for a catalog ID.
func (l *Ledger) Get(id uint32) (model.Disposition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.entries[id]
	return d, ok
}

// Len returns the number of satellites with a recorded disposition.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Snapshot returns all dispositions ordered by catalog ID, so exports are
// deterministic.
func (l *Ledger) Snapshot() []model.Disposition {
	l.mu.RLock()
	defer l.mu.RUnlock()

	res := make([]model.Disposition, 0, len(l.entries))
	for _, d := range l.entries {
		res = append(res, d)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CatalogID < res[j].CatalogID })
	return res
}

// Counts tallies dispositions by status.
func (l *Ledger) Counts() map[model.DispositionStatus]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[model.DispositionStatus]int, 3)
	for _, d := range l.entries {
		counts[d.Status]++
	}
	return counts
}

// Subscribe registers a callback invoked for every observed disposition.
// It returns an unsubscribe function; calling it more than once is a no-op
// and never affects other subscribers.
func (l *Ledger) Subscribe(fn func(model.Disposition)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

// Reconcile verifies that every input satellite has exactly one terminal
// disposition.
func (l *Ledger) Reconcile(inputCount int) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) != inputCount {
		return fmt.Errorf("%w: ledger holds %d dispositions for %d inputs",
			model.ErrValidation, len(l.entries), inputCount)
	}
	return nil
}
