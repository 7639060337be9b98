package calendar

// Range is an inclusive span of calendar days. A nil End means the range has
// no fixed end.
type Range struct {
	Start Date
	End   *Date
}

func (r Range) IsOpenEnded() bool {
	return r.End == nil
}

// Contains reports whether d falls inside r, endpoints included.
func (r Range) Contains(d Date) bool {
	if d.Before(r.Start) {
		return false
	}
	return r.End == nil || !d.After(*r.End)
}

// Overlaps reports whether two inclusive ranges share at least one day:
// s1 <= e2 && s2 <= e1. Sharing a single endpoint counts as an overlap.
func Overlaps(a, b Range) bool {
	if b.End != nil && a.Start.After(*b.End) {
		return false
	}
	if a.End != nil && b.Start.After(*a.End) {
		return false
	}
	return true
}
