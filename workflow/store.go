package workflow

import (
	"errors"
	"fmt"
	"sync"
)

// ErrIndexOutOfRange is returned when a client index does not address a pair.
var ErrIndexOutOfRange = errors.New("workflow: index out of range")

// Store 是并发安全的 Pair 有序集合（存储顺序：最新录制在前）。
type Store struct {
	mu    sync.RWMutex
	pairs Workflow
}

// NewStore creates a store seeded with a copy of wf.
func NewStore(wf Workflow) *Store {
	return &Store{pairs: wf.Clone()}
}

// Len returns the number of pairs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pairs)
}

// Pairs returns a deep copy of the pairs in storage order.
func (s *Store) Pairs() Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pairs.Clone()
}

// Prepend inserts p at storage position 0.
func (s *Store) Prepend(p Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = append(Workflow{p.Clone()}, s.pairs...)
}

// FindExactSelector returns the storage position of the first pair whose
// selector set is exactly {selector}, or -1.
func (s *Store) FindExactSelector(selector string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findExactLocked(selector)
}

func (s *Store) findExactLocked(selector string) int {
	for i, p := range s.pairs {
		if p.Where.IsExactSelector(selector) {
			return i
		}
	}
	return -1
}

// MergeInto appends actions to the pair whose selector set is exactly
// {selector}. Actions land before the target's trailing waitForLoadState,
// so the pair keeps ending with its wait. Reports whether a target existed.
func (s *Store) MergeInto(selector string, actions []Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.findExactLocked(selector)
	if pos < 0 {
		return false
	}
	target := &s.pairs[pos]
	added := make([]Action, len(actions))
	for i, a := range actions {
		added[i] = a.Clone()
	}

	n := len(target.What)
	if n > 0 && target.What[n-1].IsWaitForIdle() {
		tail := target.What[n-1]
		what := make([]Action, 0, n+len(added))
		what = append(what, target.What[:n-1]...)
		what = append(what, added...)
		target.What = append(what, tail)
		return true
	}
	target.What = append(target.What, added...)
	return true
}

// storagePos maps a chronological client index to a storage position for
// remove/replace. Valid for 0 <= i < n.
func storagePos(i, n int) (int, bool) {
	if i < 0 || i >= n {
		return 0, false
	}
	return n - 1 - i, true
}

// insertPos maps a chronological client index to an insertion position.
// Valid for 0 <= i <= n; i == n prepends.
func insertPos(i, n int) (int, bool) {
	if i < 0 || i > n {
		return 0, false
	}
	return n - i, true
}

// StoragePos exposes the remove/replace mapping from a chronological client
// index to a storage position.
func StoragePos(clientIndex, length int) (int, bool) {
	return storagePos(clientIndex, length)
}

// RemoveAt removes the pair at client index i.
func (s *Store) RemoveAt(i int) (Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := storagePos(i, len(s.pairs))
	if !ok {
		return Pair{}, fmt.Errorf("%w: remove %d of %d", ErrIndexOutOfRange, i, len(s.pairs))
	}
	removed := s.pairs[pos]
	s.pairs = append(s.pairs[:pos:pos], s.pairs[pos+1:]...)
	return removed, nil
}

// InsertAt inserts p so that it becomes the pair at client index i.
func (s *Store) InsertAt(i int, p Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := insertPos(i, len(s.pairs))
	if !ok {
		return fmt.Errorf("%w: insert %d of %d", ErrIndexOutOfRange, i, len(s.pairs))
	}
	out := make(Workflow, 0, len(s.pairs)+1)
	out = append(out, s.pairs[:pos]...)
	out = append(out, p.Clone())
	out = append(out, s.pairs[pos:]...)
	s.pairs = out
	return nil
}

// ReplaceAt replaces the pair at client index i.
func (s *Store) ReplaceAt(i int, p Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := storagePos(i, len(s.pairs))
	if !ok {
		return fmt.Errorf("%w: replace %d of %d", ErrIndexOutOfRange, i, len(s.pairs))
	}
	s.pairs[pos] = p.Clone()
	return nil
}

// Replace swaps the whole content.
func (s *Store) Replace(wf Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = wf.Clone()
}
