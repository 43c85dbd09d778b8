package gallery

import "sync"

// Selection is an ordered set of gallery item ids.
// Order is that of first insertion; ids are never duplicated.
type Selection struct {
	mu  sync.RWMutex
	ids []string
}

// NewSelection creates an empty selection
func NewSelection() *Selection {
	return &Selection{}
}

// Toggle adds the id if absent or removes it if present
func (s *Selection) Toggle(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		s.ids = append(s.ids[:i], s.ids[i+1:]...)
	} else {
		s.ids = append(s.ids, id)
	}
	return s.snapshot()
}

// Prune drops every id that is not in existing
func (s *Selection) Prune(existing []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		live[id] = struct{}{}
	}

	kept := s.ids[:0]
	for _, id := range s.ids {
		if _, ok := live[id]; ok {
			kept = append(kept, id)
		}
	}
	s.ids = kept
	return s.snapshot()
}

// Replace swaps old for replacement in place, keeping the selection order.
// If old is not selected, replacement is appended unless already present.
func (s *Selection) Replace(old, replacement string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(replacement) >= 0 {
		if i := s.indexOf(old); i >= 0 {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
		}
		return s.snapshot()
	}
	if i := s.indexOf(old); i >= 0 {
		s.ids[i] = replacement
	} else {
		s.ids = append(s.ids, replacement)
	}
	return s.snapshot()
}

// Clear empties the selection
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = nil
}

// IDs returns a copy of the selected ids
func (s *Selection) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Contains reports whether the id is selected
func (s *Selection) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(id) >= 0
}

// Len returns the number of selected ids
func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func (s *Selection) indexOf(id string) int {
	for i, existing := range s.ids {
		if existing == id {
			return i
		}
	}
	return -1
}

func (s *Selection) snapshot() []string {
	return append([]string{}, s.ids...)
}
