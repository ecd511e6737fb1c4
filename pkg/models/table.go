package models

import (
	"cmp"
	"slices"
	"sync"
)

// Result is the outcome of fitting one candidate.
type Result struct {
	// Coefficients has one value per feature column, in column order.
	Coefficients []float64 `json:"coefficients"`
	// Intercept is zero for families fitted without intercept.
	Intercept float64 `json:"intercept"`
	// R2 is the in-sample coefficient of determination and the ranking metric.
	R2 float64 `json:"r2"`
	// Score is R2 squared. It is reported alongside R2 but never ranked on.
	Score float64 `json:"score"`
	// N is the number of rows the candidate was fitted on.
	N int `json:"n"`
}

// Entry is one row of the candidate table.
type Entry struct {
	Key    string `json:"key"`
	Spec   Spec   `json:"-"`
	Result Result `json:"result"`
}

// Table holds fitted candidates in insertion order. It only grows; putting an
// existing key overwrites it in place. Table is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]Entry
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]Entry)}
}

// Put stores e under e.Key.
func (t *Table) Put(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[e.Key]; !ok {
		t.order = append(t.order, e.Key)
	}
	t.entries[e.Key] = e
}

// Get returns the entry for key.
func (t *Table) Get(key string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[key]
	return e, ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Entries returns a snapshot of the table in insertion order.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, len(t.order))
	for i, k := range t.order {
		out[i] = t.entries[k]
	}
	return out
}

// Best returns the entry chosen by Select.
func (t *Table) Best() (Entry, error) {
	return Select(t.Entries())
}

// Top returns up to n entries ranked by R2, highest first. Equal R2 keeps
// insertion order. n <= 0 returns every entry.
func (t *Table) Top(n int) []Entry {
	entries := t.Entries()
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(b.Result.R2, a.Result.R2)
	})
	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}
	return entries
}

// Select returns the entry with the highest R2.
//
// The running maximum starts at 0, so entries with R2 <= 0 are never chosen.
// A later entry wins only with a strictly greater R2; ties keep the earlier
// entry. ErrNoUsableModel is returned when nothing qualifies.
func Select(entries []Entry) (Entry, error) {
	best := -1
	bestR2 := 0.0
	for i, e := range entries {
		if e.Result.R2 > bestR2 {
			best, bestR2 = i, e.Result.R2
		}
	}
	if best < 0 {
		return Entry{}, ErrNoUsableModel
	}
	return entries[best], nil
}
