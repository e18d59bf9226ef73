package role

// The management chain is ordered. Finance and marcom sit beside it and
// cannot be compared with any other role.
var rank = map[Role]int{
	Owner:   5,
	Admin:   4,
	Manager: 3,
	Member:  2,
	Viewer:  1,
}

func Rank(r Role) (int, bool) {
	v, ok := rank[r]
	return v, ok
}

func Lateral(r Role) bool {
	if !Valid(r) {
		return false
	}
	_, ok := rank[r]
	return !ok
}

func Comparable(a, b Role) bool {
	_, okA := rank[a]
	_, okB := rank[b]
	return okA && okB
}

// Outranks reports whether a sits strictly above b in the management chain.
func Outranks(a, b Role) bool {
	ra, okA := rank[a]
	rb, okB := rank[b]
	if !okA || !okB {
		return false
	}
	return ra > rb
}
