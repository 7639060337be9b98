package vehicle

import "github.com/semanticallynull/rentaldesk-backend/calendar"

// Window decides whether the vehicle list must be narrowed to vehicles
// available in a period, and which period. filtered is false when the list
// cannot or should not be narrowed: the user asked to see everything, there
// is no start date yet, or a dated reservation is still missing its end date.
// For open-ended reservations the returned range has a nil End.
func Window(showAll bool, start, end *calendar.Date, openEnded bool) (r calendar.Range, filtered bool) {
	if showAll || start == nil || start.IsZero() {
		return calendar.Range{}, false
	}
	if openEnded {
		return calendar.Range{Start: *start}, true
	}
	if end == nil || end.IsZero() {
		return calendar.Range{}, false
	}
	return calendar.Range{Start: *start, End: end}, true
}

// Selectable computes the vehicles offered to the user. When filtered is
// true the result is drawn from available, otherwise from all. Vehicles
// blacklisted for the selected customer are always removed. Order of the
// source list is preserved.
func Selectable(all, available []Vehicle, blacklisted map[int64]struct{}, filtered bool) []Vehicle {
	source := all
	if filtered {
		source = available
	}

	out := make([]Vehicle, 0, len(source))
	for _, v := range source {
		if _, ok := blacklisted[v.ID]; ok {
			continue
		}
		out = append(out, v)
	}
	return out
}
