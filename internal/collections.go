package internal

// Set is a collection of unique items that remembers insertion order.
type Set[T comparable] struct {
	items map[T]struct{}
	order []T
}

// NewSet creates a set holding items.
func NewSet[T comparable](items ...T) *Set[T] {
	s := &Set[T]{items: make(map[T]struct{}, len(items))}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add inserts item and reports whether it was new.
func (s *Set[T]) Add(item T) bool {
	if _, exists := s.items[item]; exists {
		return false
	}
	s.items[item] = struct{}{}
	s.order = append(s.order, item)
	return true
}

// Contains checks if an item exists in the set.
func (s *Set[T]) Contains(item T) bool {
	_, exists := s.items[item]
	return exists
}

// Size returns the number of items in the set.
func (s *Set[T]) Size() int {
	return len(s.items)
}

// ToSlice returns the items in the order they were first added.
func (s *Set[T]) ToSlice() []T {
	out := make([]T, len(s.order))
	copy(out, s.order)
	return out
}

// Distinct returns items without duplicates, keeping first occurrences.
func Distinct[T comparable](items []T) []T {
	return NewSet(items...).ToSlice()
}

// GroupBy buckets items by key. Keys are returned in first-seen order.
func GroupBy[K comparable, V any](items []V, key func(V) K) (map[K][]V, []K) {
	groups := make(map[K][]V)
	keys := NewSet[K]()
	for _, item := range items {
		k := key(item)
		keys.Add(k)
		groups[k] = append(groups[k], item)
	}
	return groups, keys.ToSlice()
}
