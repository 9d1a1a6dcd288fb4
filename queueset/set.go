package queueset

// Element is one merged iteration result: the member it came from and
// that member's "bucket/name" for it. Lock/Get/Remove/Touch are called
// on Element.Member directly, the same way they would be on a bare
// Normal or Simple handle.
type Element struct {
	Member Member
	Name   string
}

// Set merges the live elements of several members into one lexical
// iteration order. Each member keeps its own independent cursor
// (obtained via Copy when the Set is built or Reset), so advancing
// through the Set never disturbs a caller iterating a member directly.
type Set struct {
	roots   []Member
	cursors []Member
	heads   []string
}

// New builds a Set over members. Membership is fixed for the lifetime
// of the Set; construct a new one to add or remove members. Reset only
// re-copies the cursors of the same members.
func New(members ...Member) *Set {
	s := &Set{roots: members}
	s.Reset()
	return s
}

// Reset re-copies every member's cursor, discarding any iteration
// progress made so far. Call it after a member's own membership (its
// bucket contents) has changed out from under an in-progress merge.
func (s *Set) Reset() {
	s.cursors = make([]Member, len(s.roots))
	s.heads = make([]string, len(s.roots))
	for i, m := range s.roots {
		s.cursors[i] = m.Copy()
	}
}

// First resets the merged cursor to the first live element across all
// members, and returns it. A zero Element with a nil error means every
// member is currently empty.
func (s *Set) First() (Element, error) {
	for i, c := range s.cursors {
		name, err := c.First()
		if err != nil {
			return Element{}, err
		}
		s.heads[i] = name
	}
	return s.pick()
}

// Next advances the merged cursor and returns the next live element.
// A zero Element with a nil error means iteration is exhausted.
func (s *Set) Next() (Element, error) {
	return s.pick()
}

// pick returns the member whose cached pending head sorts lexically
// smallest, then refills that member's head from its own cursor. Ties
// between members holding equal names are broken by member order,
// arbitrarily but deterministically.
func (s *Set) pick() (Element, error) {
	best := -1
	for i, name := range s.heads {
		if name == "" {
			continue
		}
		if best == -1 || name < s.heads[best] {
			best = i
		}
	}
	if best == -1 {
		return Element{}, nil
	}

	elem := Element{Member: s.roots[best], Name: s.heads[best]}
	next, err := s.cursors[best].Next()
	if err != nil {
		return Element{}, err
	}
	s.heads[best] = next
	return elem, nil
}

// Count returns the sum of every member's current element count.
func (s *Set) Count() (int, error) {
	total := 0
	for _, m := range s.roots {
		n, err := m.Count()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
