package schema

// DependencyOrder returns the table names ordered so that every referenced
// table precedes the tables referencing it. Among tables whose parents are
// already placed, the one declared first in the schema goes first.
//
// Self references are not ordering edges. A cycle fails with a
// CyclicDependencyError naming every table left unplaced.
func (s *Schema) DependencyOrder() ([]string, error) {
	position := make(map[string]int, len(s.tables))
	for i, t := range s.tables {
		position[t.Name] = i
	}

	pending := make([]int, len(s.tables))    // unplaced parents per table
	children := make([][]int, len(s.tables)) // parent position -> child positions
	for i, t := range s.tables {
		for _, parent := range t.Parents() {
			p, ok := position[parent]
			if !ok {
				continue
			}
			pending[i]++
			children[p] = append(children[p], i)
		}
	}

	placed := make([]bool, len(s.tables))
	order := make([]string, 0, len(s.tables))
	for len(order) < len(s.tables) {
		next := -1
		for i := range s.tables {
			if !placed[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i, t := range s.tables {
				if !placed[i] {
					stuck = append(stuck, t.Name)
				}
			}
			return nil, &CyclicDependencyError{Tables: stuck}
		}

		placed[next] = true
		order = append(order, s.tables[next].Name)
		for _, child := range children[next] {
			pending[child]--
		}
	}

	return order, nil
}

// Reverse returns a reversed copy of names, turning a parent-first order into
// a child-first one.
func Reverse(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[len(names)-1-i] = name
	}
	return out
}
