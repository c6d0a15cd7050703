package targets

// Set is an ordered collection of targets without duplicate endpoints.
// It is not safe for concurrent mutation; share it read-only or behind a lock.
type Set struct {
	index map[string]int
	items []Target
}

// NewSet builds a set from ts. A repeated endpoint keeps its first position and the last name.
func NewSet(ts ...Target) *Set {
	s := &Set{index: make(map[string]int, len(ts))}
	s.Merge(ts...)

	return s
}

// Merge adds targets; known endpoints only get the new name.
func (s *Set) Merge(ts ...Target) {
	for _, t := range ts {
		s.Add(t)
	}
}

// Add inserts t and reports whether its endpoint was new.
func (s *Set) Add(t Target) bool {
	key := t.Key()
	if i, ok := s.index[key]; ok {
		s.items[i].Name = t.Name
		return false
	}

	s.index[key] = len(s.items)
	s.items = append(s.items, t)

	return true
}

// Remove drops the target with key and reports whether it was present.
func (s *Set) Remove(key string) bool {
	i, ok := s.index[key]
	if !ok {
		return false
	}

	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, key)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].Key()] = j
	}

	return true
}

// Contains reports whether key is in the set.
func (s *Set) Contains(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Len returns the number of targets.
func (s *Set) Len() int {
	return len(s.items)
}

// Keys returns the keys in set order.
func (s *Set) Keys() []string {
	keys := make([]string, len(s.items))
	for i, t := range s.items {
		keys[i] = t.Key()
	}

	return keys
}

// Slice returns a copy of the targets in set order.
func (s *Set) Slice() []Target {
	out := make([]Target, len(s.items))
	copy(out, s.items)

	return out
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	return NewSet(s.items...)
}
