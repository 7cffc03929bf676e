package registry

// BoundedSet is a FIFO membership set with a hard capacity: inserting past
// capacity evicts the oldest member. Used for processed-post ids and
// posted-content hashes, both of which must survive restarts.
type BoundedSet struct {
	capacity int
	order    []string
	members  map[string]struct{}
}

// NewBoundedSet creates a set that holds at most capacity members.
func NewBoundedSet(capacity int) *BoundedSet {
	if capacity < 1 {
		capacity = 1
	}
	return &BoundedSet{
		capacity: capacity,
		members:  make(map[string]struct{}),
	}
}

// Add inserts the key, evicting the oldest member when full. Re-adding an
// existing key is a no-op (its position does not refresh).
func (s *BoundedSet) Add(key string) {
	if _, ok := s.members[key]; ok {
		return
	}
	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.members, oldest)
	}
	s.order = append(s.order, key)
	s.members[key] = struct{}{}
}

// Contains reports membership.
func (s *BoundedSet) Contains(key string) bool {
	_, ok := s.members[key]
	return ok
}

// Len returns the current member count.
func (s *BoundedSet) Len() int { return len(s.order) }

// Items returns the members oldest-first, for snapshotting.
func (s *BoundedSet) Items() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Restore refills the set from a snapshot, keeping only the newest entries
// if the snapshot exceeds capacity.
func (s *BoundedSet) Restore(items []string) {
	s.order = s.order[:0]
	s.members = make(map[string]struct{})
	start := 0
	if len(items) > s.capacity {
		start = len(items) - s.capacity
	}
	for _, k := range items[start:] {
		s.Add(k)
	}
}
